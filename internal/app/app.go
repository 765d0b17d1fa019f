package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haierkeys/doc-link-service/internal/dao"
	"github.com/haierkeys/doc-link-service/internal/domain"
	"github.com/haierkeys/doc-link-service/internal/service"
	pkgapp "github.com/haierkeys/doc-link-service/pkg/app"
	"github.com/haierkeys/doc-link-service/pkg/doclink"
	"github.com/haierkeys/doc-link-service/pkg/metrics"
	"github.com/haierkeys/doc-link-service/pkg/workerpool"
	"github.com/haierkeys/doc-link-service/pkg/writequeue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultShutdownTimeout 默认关闭超时时间
const DefaultShutdownTimeout = 30 * time.Second

// App 应用容器，封装所有依赖和服务
type App struct {
	// 基础设施（注入的依赖）
	config *AppConfig
	logger *zap.Logger
	DB     *gorm.DB
	Dao    *dao.Dao

	// 指标
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// 并发控制组件
	workerPool *workerpool.Pool
	writeQueue *writequeue.Manager

	// 签名器
	Signer doclink.Signer

	// Repository 层
	ConversationRepo domain.ConversationRepository

	// Service 层
	DocumentLinkService service.DocumentLinkService
	ConversationService service.ConversationService

	// StartTime 启动时间
	StartTime time.Time

	// 关闭控制
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	wg           sync.WaitGroup
}

// NewApp 创建应用容器实例
// cfg: 应用配置（必须）
// logger: zap 日志器（必须）
// db: 数据库连接（必须）
func NewApp(cfg *AppConfig, logger *zap.Logger, db *gorm.DB) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	a := &App{
		config:     cfg,
		logger:     logger,
		DB:         db,
		StartTime:  time.Now(),
		shutdownCh: make(chan struct{}),
	}

	// 初始化指标
	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	// 初始化 Worker Pool
	wpConfig := cfg.GetWorkerPoolConfig()
	a.workerPool = workerpool.New(&wpConfig, logger)
	a.Registry.MustRegister(a.workerPool)

	// 初始化会话写队列
	a.writeQueue = writequeue.New(nil, logger)

	// 初始化 DAO
	a.Dao = dao.New(db, cfg.Database, logger)
	a.ConversationRepo = dao.NewConversationRepository(a.Dao)

	// 初始化签名器，密钥在构造后只读
	a.Signer = doclink.NewSigner(cfg.GetSignerConfig())

	// 初始化 Service 层
	a.DocumentLinkService = service.NewDocumentLinkService(a.Signer, logger, a.Metrics, cfg.GetServiceConfig())
	a.ConversationService = service.NewConversationService(a.ConversationRepo, a.DocumentLinkService, a.writeQueue, logger)

	logger.Info("App container initialized successfully",
		zap.Int("workerPoolMaxWorkers", wpConfig.MaxWorkers),
		zap.String("linkTTL", a.Signer.DefaultTTL().String()),
		zap.String("refreshWindow", cfg.Link.RefreshWindow))

	return a, nil
}

// Close 释放应用容器持有的资源
func (a *App) Close() error {
	if a.Dao != nil {
		if err := a.Dao.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		a.logger.Info("Database connection closed")
	}
	return nil
}

// Config 获取应用配置
func (a *App) Config() *AppConfig {
	return a.config
}

// Logger 获取日志器
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// SubmitTask 提交任务到 Worker Pool 并等待完成
// 返回错误如果池已满或已关闭
func (a *App) SubmitTask(ctx context.Context, task func(context.Context) error) error {
	return a.workerPool.Submit(ctx, task)
}

// WorkerPool 获取 Worker Pool
func (a *App) WorkerPool() *workerpool.Pool {
	return a.workerPool
}

// Version 获取版本信息
func (a *App) Version() pkgapp.VersionInfo {
	return pkgapp.VersionInfo{
		Version:   Version,
		GitTag:    GitTag,
		BuildTime: BuildTime,
	}
}

// Shutdown 优雅关闭应用容器
// 按顺序关闭：Worker Pool -> 后台操作 -> Write Queue -> Database
func (a *App) Shutdown(ctx context.Context) error {
	first := false
	a.shutdownOnce.Do(func() {
		first = true
		close(a.shutdownCh)
	})
	if !first {
		return nil
	}

	a.logger.Info("App container shutting down...")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
	}

	var errs []error

	// 1. 关闭 Worker Pool（停止接受新任务，等待现有任务完成）
	if a.workerPool != nil {
		if err := a.workerPool.Shutdown(ctx); err != nil {
			a.logger.Warn("Worker pool shutdown error", zap.Error(err))
			errs = append(errs, fmt.Errorf("worker pool shutdown: %w", err))
		}
	}

	// 2. 等待所有后台操作完成
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("All background operations completed")
	case <-ctx.Done():
		a.logger.Warn("Shutdown timeout waiting for background operations")
		errs = append(errs, fmt.Errorf("background operations timeout: %w", ctx.Err()))
	}

	// 3. 关闭写队列，等待排队中的写操作完成
	if a.writeQueue != nil {
		if err := a.writeQueue.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("write queue shutdown: %w", err))
		}
	}

	// 4. 关闭数据库连接
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors: %v", len(errs), errs)
	}

	a.logger.Info("App container shutdown completed successfully")
	return nil
}

// IsShuttingDown 检查应用是否正在关闭
func (a *App) IsShuttingDown() bool {
	select {
	case <-a.shutdownCh:
		return true
	default:
		return false
	}
}

// TrackOperation 跟踪后台操作（用于优雅关闭时等待）
// 返回一个函数，在操作完成时调用
func (a *App) TrackOperation() func() {
	a.wg.Add(1)
	return a.wg.Done
}
