package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
)

// Message 会话中的单条消息
type Message struct {
	ID            string          `json:"id,omitempty"`
	Role          string          `json:"role"`
	Content       string          `json:"content"`
	CreatedAt     time.Time       `json:"created_at,omitzero"`
	DocumentLinks []DocumentLink  `json:"document_links,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"` // 原样透传
}

// Conversation 会话记录，由外部持久化层持有
type Conversation struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// LinkCount 统计会话中的链接数量
func (c *Conversation) LinkCount() int {
	n := 0
	for i := range c.Messages {
		n += len(c.Messages[i].DocumentLinks)
	}
	return n
}

// RefreshStats 会话刷新统计
type RefreshStats struct {
	Total     int `json:"total"`
	Refreshed int `json:"refreshed"`
	Unchanged int `json:"unchanged"` // 未到刷新窗口
	Skipped   int `json:"skipped"`   // 无法解析，原样保留
	Failed    int `json:"failed"`    // 签发失败或已取消，保留原链接
}

// ConversationRefresh 会话刷新结果
type ConversationRefresh struct {
	Conversation Conversation `json:"conversation"`
	Refreshed    bool         `json:"refreshed"`
	Stats        RefreshStats `json:"stats"`
}

// ConversationRepository 会话持久化接口
type ConversationRepository interface {
	Get(ctx context.Context, id string) (*Conversation, error)
	Save(ctx context.Context, conversation *Conversation) error
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]*Conversation, error)
	// DeleteUpdatedBefore 删除在 before 之前最后更新的会话，返回删除数量
	DeleteUpdatedBefore(ctx context.Context, before time.Time) (int64, error)
}
