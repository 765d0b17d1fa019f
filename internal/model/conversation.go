package model

import "time"

// Conversation 会话表
// 消息及其携带的文档链接以 JSON 文本整体存储
type Conversation struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(64)" json:"id" form:"id"`
	SubjectID string    `gorm:"column:subject_id;index:idx_conversation_subject;type:varchar(128)" json:"subjectId" form:"subjectId"`
	Title     string    `gorm:"column:title;type:varchar(255)" json:"title" form:"title"`
	Messages  string    `gorm:"column:messages;type:text" json:"messages" form:"messages"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime:false" json:"createdAt" form:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;index:idx_conversation_subject;autoUpdateTime:false" json:"updatedAt" form:"updatedAt"`
}
