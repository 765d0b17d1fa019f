// Package dto 定义 HTTP 接口的请求与响应结构
package dto

import (
	"time"

	"github.com/haierkeys/doc-link-service/internal/domain"
)

// LinkIssueRequest 签发文档链接请求
// 主体与角色始终取调用方身份
type LinkIssueRequest struct {
	DocumentPath string `json:"document_path" binding:"required,max=1024" example:"/manuals/engine.pdf"` // 文档路径
	TTL          string `json:"ttl" binding:"omitempty,max=16" example:"30m"`                            // 有效期，为空时使用默认值
	Page         *int   `json:"page" binding:"omitempty,min=1"`                                          // 页码锚点
}

// LinkIssueResponse 签发文档链接响应
type LinkIssueResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LinkRefreshRequest 刷新单个链接请求
type LinkRefreshRequest struct {
	Link domain.DocumentLink `json:"link"`
}

// LinksRefreshRequest 批量刷新链接请求
type LinksRefreshRequest struct {
	Links []domain.DocumentLink `json:"links" binding:"required,max=500"`
}

// LinksRefreshResponse 批量刷新链接响应
type LinksRefreshResponse struct {
	Results   []domain.RefreshResult `json:"results"`
	Refreshed int                    `json:"refreshed"`
}

// LinkInspectRequest 查看链接声明请求
type LinkInspectRequest struct {
	URL    string `json:"url" binding:"required"`
	Verify bool   `json:"verify"` // 同时校验签名
}

// LinkInspectResponse 查看链接声明响应
type LinkInspectResponse struct {
	Expired  bool               `json:"expired"`
	Claims   *domain.LinkClaims `json:"claims,omitempty"`
	Page     *int               `json:"page,omitempty"`
	Verified *bool              `json:"verified,omitempty"`
}

// ConversationRefreshRequest 刷新请求体中的会话
type ConversationRefreshRequest struct {
	Conversation domain.Conversation `json:"conversation"`
}

// ConversationSaveRequest 保存会话请求
type ConversationSaveRequest struct {
	Title    string           `json:"title" binding:"max=255"`
	Messages []domain.Message `json:"messages"`
}

// ConversationListRequest 会话列表请求
type ConversationListRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}
