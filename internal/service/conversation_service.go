package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haierkeys/doc-link-service/internal/domain"
	"github.com/haierkeys/doc-link-service/pkg/code"
	"github.com/haierkeys/doc-link-service/pkg/logger"
	"github.com/haierkeys/doc-link-service/pkg/writequeue"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultConversationListLimit 列表默认返回数量
	DefaultConversationListLimit = 50
	// StoredRefreshTimeout 调用方未设置截止时间时，单次已保存会话刷新的上限
	StoredRefreshTimeout = 30 * time.Second
	// WriteBackTimeout 刷新结果写回的上限
	WriteBackTimeout = 5 * time.Second
)

// ConversationService defines the stored conversation interface
// ConversationService 定义已持久化会话的业务接口
type ConversationService interface {
	// Get loads a conversation owned by the subject
	// Get 获取调用方拥有的会话
	Get(ctx context.Context, id, subjectID string) (*domain.Conversation, error)

	// Save creates or replaces a conversation, assigning an ID when empty
	// Save 保存会话，ID 为空时自动分配
	Save(ctx context.Context, conversation *domain.Conversation) (*domain.Conversation, error)

	// List lists the subject's conversations, newest first
	// List 按更新时间倒序列出调用方的会话
	List(ctx context.Context, subjectID string, limit int) ([]*domain.Conversation, error)

	// RefreshStored reloads a conversation, refreshes its links and writes it back when any link changed
	// RefreshStored 重新加载会话并刷新链接，有变化时写回
	RefreshStored(ctx context.Context, id, subjectID, role string) (*domain.ConversationRefresh, error)

	// Cleanup deletes conversations not updated within retention, retention <= 0 disables it
	// Cleanup 删除超过保留时长未更新的会话，retention <= 0 时不执行
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// conversationService 实现 ConversationService 接口
type conversationService struct {
	repo   domain.ConversationRepository
	links  DocumentLinkService
	logger *zap.Logger
	sf     *singleflight.Group
	queue  *writequeue.Manager
}

// NewConversationService 创建 ConversationService 实例
// queue 为 nil 时写操作直接执行，不做串行化
func NewConversationService(repo domain.ConversationRepository, links DocumentLinkService, queue *writequeue.Manager, lg *zap.Logger) ConversationService {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &conversationService{
		repo:   repo,
		links:  links,
		logger: lg,
		sf:     &singleflight.Group{},
		queue:  queue,
	}
}

// serialize 同一会话的写操作按顺序执行
func (s *conversationService) serialize(ctx context.Context, id string, fn func() error) error {
	if s.queue == nil || id == "" {
		return fn()
	}
	err := s.queue.Execute(ctx, id, fn)
	switch {
	case errors.Is(err, writequeue.ErrWriteQueueFull), errors.Is(err, writequeue.ErrWriteTimeout):
		return code.ErrorTooManyRequests.WithDetails(err.Error())
	case errors.Is(err, writequeue.ErrWriteQueueClosed):
		return code.ErrorServerInternal.WithDetails(err.Error())
	}
	return err
}

// Get 获取会话
func (s *conversationService) Get(ctx context.Context, id, subjectID string) (*domain.Conversation, error) {
	conversation, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return nil, code.ErrorConversationNotFound
		}
		return nil, code.ErrorDBQuery.WithDetails(err.Error())
	}

	if !owns(conversation, subjectID) {
		return nil, code.ErrorConversationForbidden
	}
	return conversation, nil
}

// Save 保存会话
func (s *conversationService) Save(ctx context.Context, conversation *domain.Conversation) (*domain.Conversation, error) {
	err := s.serialize(ctx, conversation.ID, func() error {
		if conversation.ID != "" {
			existing, err := s.repo.Get(ctx, conversation.ID)
			switch {
			case err == nil:
				if !owns(existing, conversation.SubjectID) {
					return code.ErrorConversationForbidden
				}
				// 公共会话被覆盖后仍为公共会话，写入方不能借此占有
				if existing.SubjectID == "" {
					conversation.SubjectID = ""
				}
				if conversation.CreatedAt.IsZero() {
					conversation.CreatedAt = existing.CreatedAt
				}
			case !errors.Is(err, domain.ErrConversationNotFound):
				return code.ErrorDBQuery.WithDetails(err.Error())
			}
		}

		if err := s.repo.Save(ctx, conversation); err != nil {
			return code.ErrorDBQuery.WithDetails(err.Error())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conversation, nil
}

// List 列出会话
func (s *conversationService) List(ctx context.Context, subjectID string, limit int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		limit = DefaultConversationListLimit
	}
	list, err := s.repo.ListBySubject(ctx, subjectID, limit)
	if err != nil {
		return nil, code.ErrorDBQuery.WithDetails(err.Error())
	}
	return list, nil
}

// RefreshStored 刷新已持久化的会话
// 同一会话的并发刷新通过 Singleflight 合并，读取与写回在该会话的写队列中执行
// 只有链接变化时才写回存储
func (s *conversationService) RefreshStored(ctx context.Context, id, subjectID, role string) (*domain.ConversationRefresh, error) {
	key := fmt.Sprintf("conversation_refresh_%s_%s_%s", id, subjectID, role)

	result, err, shared := s.sf.Do(key, func() (interface{}, error) {
		// 合并的调用方共享这次刷新，发起方取消不影响其他调用方，截止时间仍然有效
		base := context.WithoutCancel(ctx)
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(StoredRefreshTimeout)
		}
		refreshCtx, cancel := context.WithDeadline(base, deadline)
		defer cancel()

		var out domain.ConversationRefresh
		err := s.serialize(refreshCtx, id, func() error {
			conversation, err := s.Get(refreshCtx, id, subjectID)
			if err != nil {
				return err
			}

			out = s.links.RefreshConversation(refreshCtx, *conversation, subjectID, role)
			if !out.Refreshed {
				return nil
			}

			// 截止时间到达时已刷新的部分同样写回
			saveCtx, cancelSave := context.WithTimeout(base, WriteBackTimeout)
			defer cancelSave()
			if err := s.repo.Save(saveCtx, &out.Conversation); err != nil {
				s.logger.Error("conversation write back failed",
					zap.String(logger.FieldConversation, id),
					zap.String(logger.FieldSubject, subjectID),
					zap.Error(err))
				return code.ErrorDBQuery.WithDetails(err.Error())
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		s.logger.Debug("conversation refresh coalesced", zap.String(logger.FieldConversation, id))
	}
	return result.(*domain.ConversationRefresh), nil
}

// Cleanup 清理过期会话
func (s *conversationService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}

	before := time.Now().Add(-retention)
	n, err := s.repo.DeleteUpdatedBefore(ctx, before)
	if err != nil {
		return 0, code.ErrorDBQuery.WithDetails(err.Error())
	}
	if n > 0 {
		s.logger.Info("expired conversations deleted",
			zap.Int64("count", n),
			zap.Time("updatedBefore", before))
	}
	return n, nil
}

// owns 会话未绑定调用方时视为公共会话
func owns(conversation *domain.Conversation, subjectID string) bool {
	return conversation.SubjectID == "" || conversation.SubjectID == subjectID
}
