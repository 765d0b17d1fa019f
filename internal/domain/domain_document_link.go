// Package domain defines domain models and interfaces
// Package domain 定义领域模型和接口
package domain

import "time"

// DocumentLink a signed document link attached to a message
// DocumentLink 消息中携带的签名文档链接
type DocumentLink struct {
	URL          string     `json:"url"`                    // Signed fetch URL // 带签名的下载链接
	DocumentPath string     `json:"document_path"`          // Stable across reissue // 文档路径，刷新前后不变
	Page         *int       `json:"page,omitempty"`         // Position anchor, kept verbatim // 页码锚点，刷新时原样保留
	Title        string     `json:"title,omitempty"`        // Display title // 展示标题
	RefreshedAt  *time.Time `json:"refreshed_at,omitempty"` // Set when the URL was replaced // URL 被替换时写入
}

// LinkClaims the inputs needed to reissue a link
// LinkClaims 重新签发链接所需的声明
type LinkClaims struct {
	DocumentPath string    `json:"document_path"`
	SubjectID    string    `json:"subject_id"`
	Role         string    `json:"role"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// RefreshResult outcome of refreshing a single link
// RefreshResult 单个链接的刷新结果
type RefreshResult struct {
	Success      bool   `json:"success"`
	Refreshed    bool   `json:"refreshed"` // A new URL was minted // 是否签发了新链接
	OriginalURL  string `json:"original_url"`
	RefreshedURL string `json:"refreshed_url,omitempty"`
	DocumentPath string `json:"document_path,omitempty"`
	Page         *int   `json:"page,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	Error        string `json:"error,omitempty"`
}

// URL returns the URL callers should keep: the new one on success, the original otherwise
// URL 返回调用方应保留的链接：成功时为新链接，否则为原链接
func (r RefreshResult) URL() string {
	if r.Success && r.RefreshedURL != "" {
		return r.RefreshedURL
	}
	return r.OriginalURL
}

// Changed reports whether the kept URL differs from the original
func (r RefreshResult) Changed() bool {
	return r.URL() != r.OriginalURL
}
