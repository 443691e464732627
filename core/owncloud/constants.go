package owncloud

// 服务端接口路径与客户端标识。
const (
	UserInfoPath = "/ocs/v2.php/cloud/user"
	DAVFilesPath = "/remote.php/dav/files/"
	AvatarPath   = "/index.php/avatar/"

	UserAgent = "Mozilla/5.0 (Linux) owncloud-desktop/1.0"
)
