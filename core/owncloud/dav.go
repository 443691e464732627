package owncloud

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const quotaPropfindBody = `<?xml version="1.0" encoding="UTF-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:quota-available-bytes/>
    <d:quota-used-bytes/>
  </d:prop>
</d:propfind>`

type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"DAV: response"`
}

type davResponse struct {
	Href      string        `xml:"DAV: href"`
	Propstats []davPropstat `xml:"DAV: propstat"`
}

type davPropstat struct {
	Prop   davProp `xml:"DAV: prop"`
	Status string  `xml:"DAV: status"`
}

type davProp struct {
	QuotaAvailable string `xml:"DAV: quota-available-bytes"`
	QuotaUsed      string `xml:"DAV: quota-used-bytes"`
}

// parseQuota 从 207 响应中读取状态为 200 的配额属性。
func parseQuota(body []byte) (available, used int64, err error) {
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return 0, 0, fmt.Errorf("解析 multistatus 失败: %w", err)
	}
	for _, r := range ms.Responses {
		for _, ps := range r.Propstats {
			if !strings.Contains(ps.Status, " 200 ") {
				continue
			}
			if ps.Prop.QuotaAvailable == "" && ps.Prop.QuotaUsed == "" {
				continue
			}
			if available, err = parseBytes(ps.Prop.QuotaAvailable); err != nil {
				return 0, 0, err
			}
			if used, err = parseBytes(ps.Prop.QuotaUsed); err != nil {
				return 0, 0, err
			}
			return available, used, nil
		}
	}
	return 0, 0, fmt.Errorf("响应中没有配额属性")
}

// parseBytes 兼容整数与科学计数法（部分服务端以浮点返回大数值）。
func parseBytes(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("无效的字节数 %q", v)
	}
	return int64(math.Round(f)), nil
}
