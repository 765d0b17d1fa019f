package dao

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haierkeys/doc-link-service/internal/domain"
	"github.com/haierkeys/doc-link-service/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// conversationRepository 实现 domain.ConversationRepository 接口
type conversationRepository struct {
	dao *Dao
	now func() time.Time
}

// NewConversationRepository 创建 ConversationRepository 实例
func NewConversationRepository(dao *Dao) domain.ConversationRepository {
	return &conversationRepository{dao: dao, now: time.Now}
}

// conversation 获取会话表，首次使用时迁移
func (r *conversationRepository) conversation(ctx context.Context) *gorm.DB {
	return r.dao.UseWithOnceFunc("Conversation").WithContext(ctx)
}

func (r *conversationRepository) toDomain(m *model.Conversation) (*domain.Conversation, error) {
	if m == nil {
		return nil, nil
	}
	var messages []domain.Message
	if m.Messages != "" {
		if err := json.Unmarshal([]byte(m.Messages), &messages); err != nil {
			return nil, errors.Wrapf(err, "decode messages of conversation %s", m.ID)
		}
	}

	return &domain.Conversation{
		ID:        m.ID,
		SubjectID: m.SubjectID,
		Title:     m.Title,
		Messages:  messages,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func (r *conversationRepository) toModel(d *domain.Conversation) (*model.Conversation, error) {
	messages := d.Messages
	if messages == nil {
		messages = []domain.Message{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return nil, errors.Wrap(err, "encode messages")
	}

	return &model.Conversation{
		ID:        d.ID,
		SubjectID: d.SubjectID,
		Title:     d.Title,
		Messages:  string(raw),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// Get 根据 ID 获取会话
func (r *conversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	var m model.Conversation
	err := r.conversation(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return r.toDomain(&m)
}

// Save 新建或覆盖会话，ID 为空时生成 UUID
func (r *conversationRepository) Save(ctx context.Context, conversation *domain.Conversation) error {
	now := r.now()
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = now
	}
	conversation.UpdatedAt = now

	m, err := r.toModel(conversation)
	if err != nil {
		return err
	}

	return r.conversation(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"subject_id", "title", "messages", "updated_at"}),
	}).Create(m).Error
}

// ListBySubject 按更新时间倒序列出会话
func (r *conversationRepository) ListBySubject(ctx context.Context, subjectID string, limit int) ([]*domain.Conversation, error) {
	var rows []*model.Conversation
	err := r.conversation(ctx).
		Where("subject_id = ?", subjectID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	list := make([]*domain.Conversation, 0, len(rows))
	for _, m := range rows {
		c, err := r.toDomain(m)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, nil
}

// DeleteUpdatedBefore 删除过期会话
func (r *conversationRepository) DeleteUpdatedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.conversation(ctx).Where("updated_at < ?", before).Delete(&model.Conversation{})
	return result.RowsAffected, result.Error
}
