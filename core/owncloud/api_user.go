package owncloud

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dnslin/owncloud-desktop/core/model"
)

type userInfoData struct {
	ID          string `json:"id"`
	DisplayName string `json:"display-name"`
	Email       string `json:"email"`
}

// GetUserInfo 获取当前账号的用户信息。
func (c *Client) GetUserInfo(ctx context.Context) (*model.UserInfo, error) {
	if c == nil {
		return nil, WrapOwnCloudError(ErrCodeInvalidRequest, "客户端未初始化", errors.New("owncloud: Client 未初始化"))
	}
	req, err := buildRequest(ctx, http.MethodGet, c.base(), UserInfoPath, map[string]string{"format": "json"}, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	var rsp OCSResponse[userInfoData]
	if err := c.doJSON(req, &rsp); err != nil {
		return nil, err
	}
	data := rsp.OCS.Data
	if data.ID == "" {
		return nil, NewOwnCloudError(ErrCodeInvalidResponse, "owncloud: 用户信息缺少 id")
	}
	return &model.UserInfo{
		ID:          data.ID,
		DisplayName: data.DisplayName,
		Email:       data.Email,
	}, nil
}

// GetUserQuota 通过 WebDAV PROPFIND 获取账号根目录的配额。
func (c *Client) GetUserQuota(ctx context.Context, accountName string) (*model.UserQuota, error) {
	if c == nil {
		return nil, WrapOwnCloudError(ErrCodeInvalidRequest, "客户端未初始化", errors.New("owncloud: Client 未初始化"))
	}
	userID := c.userID(accountName)
	if userID == "" {
		return nil, NewOwnCloudError(ErrCodeInvalidRequest, "owncloud: 用户 ID 为空")
	}
	path := DAVFilesPath + url.PathEscape(userID) + "/"
	req, err := buildRequest(ctx, "PROPFIND", c.base(), path, nil, strings.NewReader(quotaPropfindBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", "0")
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	rsp, err := c.fetch(req)
	if err != nil {
		return nil, err
	}
	available, used, err := parseQuota(rsp.Body)
	if err != nil {
		return nil, WrapOwnCloudError(ErrCodeInvalidResponse, "", err)
	}
	q := model.NewUserQuota(available, used)
	return &q, nil
}

// GetAvatar 获取指定像素尺寸的头像；etag 非空时发送 If-None-Match。
// 未设置头像返回 ErrNotFound，未修改返回 ErrNotModified。
func (c *Client) GetAvatar(ctx context.Context, dimension int, etag string) (*model.Avatar, error) {
	if c == nil {
		return nil, WrapOwnCloudError(ErrCodeInvalidRequest, "客户端未初始化", errors.New("owncloud: Client 未初始化"))
	}
	if dimension <= 0 {
		return nil, NewOwnCloudError(ErrCodeInvalidRequest, "owncloud: 头像尺寸必须为正数")
	}
	userID := c.userID("")
	if userID == "" {
		return nil, NewOwnCloudError(ErrCodeInvalidRequest, "owncloud: 用户 ID 为空")
	}
	path := AvatarPath + url.PathEscape(userID) + "/" + strconv.Itoa(dimension)
	req, err := buildRequest(ctx, http.MethodGet, c.base(), path, nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	if etag != "" {
		req.Header.Set("If-None-Match", quoteETag(etag))
	}
	rsp, err := c.fetch(req)
	if err != nil {
		return nil, err
	}
	if len(rsp.Body) == 0 {
		return nil, NewOwnCloudError(ErrCodeInvalidResponse, "owncloud: 头像内容为空")
	}
	mimeType := avatarMimeType(rsp.Header.Get("Content-Type"), rsp.Body)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, NewOwnCloudError(ErrCodeInvalidResponse, "owncloud: 头像不是图片: "+mimeType)
	}
	return &model.Avatar{
		Data:     rsp.Body,
		MimeType: mimeType,
		ETag:     unquoteETag(rsp.Header.Get("ETag")),
	}, nil
}

// avatarMimeType 优先使用响应头，缺失或为通用类型时按内容探测。
func avatarMimeType(header string, body []byte) string {
	ct := strings.TrimSpace(strings.SplitN(header, ";", 2)[0])
	if ct != "" && ct != "application/octet-stream" {
		return strings.ToLower(ct)
	}
	return mimetype.Detect(body).String()
}

func unquoteETag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

func quoteETag(etag string) string {
	if strings.HasPrefix(etag, `"`) || strings.HasPrefix(etag, "W/") {
		return etag
	}
	return `"` + etag + `"`
}
