// Package crypto 提供缓存目录名与内容校验使用的摘要函数。
package crypto

import (
	"crypto/md5"
	"encoding/hex"
)

// DigestString 返回字符串的 MD5 十六进制值，用作缓存目录名。
func DigestString(s string) string {
	return DigestBytes([]byte(s))
}

// DigestBytes 返回数据的 MD5 十六进制值。
func DigestBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// SameContent 判断两段数据摘要是否一致。
func SameContent(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return DigestBytes(a) == DigestBytes(b)
}
