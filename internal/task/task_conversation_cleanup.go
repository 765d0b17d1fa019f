package task

import (
	"context"
	"time"

	"github.com/haierkeys/doc-link-service/internal/app"
	"github.com/haierkeys/doc-link-service/internal/service"

	"go.uber.org/zap"
)

// conversationCleanupInterval 清理任务执行间隔
const conversationCleanupInterval = time.Hour

// ConversationCleanupTask 删除超过保留时长的会话
type ConversationCleanupTask struct {
	svc       service.ConversationService
	retention time.Duration
	logger    *zap.Logger
}

// Name 返回任务名称
func (t *ConversationCleanupTask) Name() string {
	return "ConversationCleanup"
}

// LoopInterval 返回执行间隔
func (t *ConversationCleanupTask) LoopInterval() time.Duration {
	return conversationCleanupInterval
}

// IsStartupRun 是否立即执行一次
func (t *ConversationCleanupTask) IsStartupRun() bool {
	return true
}

// Run 执行清理任务
func (t *ConversationCleanupTask) Run(ctx context.Context) error {
	n, err := t.svc.Cleanup(ctx, t.retention)
	if err != nil {
		return err
	}

	t.logger.Info("task log",
		zap.String("task", t.Name()),
		zap.Int64("deleted", n),
		zap.Duration("retention", t.retention))
	return nil
}

// NewConversationCleanupTask 创建会话清理任务，未配置保留时长时返回 nil
func NewConversationCleanupTask(a *app.App) (Task, error) {
	retention := a.Config().GetConversationRetention()
	if retention <= 0 {
		a.Logger().Info("conversation cleanup task is disabled (retention not configured)")
		return nil, nil
	}

	return &ConversationCleanupTask{
		svc:       a.ConversationService,
		retention: retention,
		logger:    a.Logger(),
	}, nil
}

func init() {
	Register(NewConversationCleanupTask)
}
