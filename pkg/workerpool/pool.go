// Package workerpool 提供有界的后台任务池
// 会话刷新等较重的任务通过此池执行，限制同时进行的签发批次数量
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrWorkerPoolFull 任务队列已满
	ErrWorkerPoolFull = errors.New("worker pool queue is full")
	// ErrWorkerPoolClosed Worker Pool 已关闭
	ErrWorkerPoolClosed = errors.New("worker pool is closed")
	// ErrTaskCancelled 任务在执行前已被取消
	ErrTaskCancelled = errors.New("task was cancelled")
)

// Config Worker Pool 配置
type Config struct {
	// MaxWorkers 最大并发 worker 数量，默认 16
	MaxWorkers int
	// QueueSize 任务队列大小，默认 256
	QueueSize int
	// WarningPercent 告警阈值百分比，默认 0.8
	WarningPercent float64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxWorkers:     16,
		QueueSize:      256,
		WarningPercent: 0.8,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = def.MaxWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.WarningPercent <= 0 || c.WarningPercent > 1 {
		c.WarningPercent = def.WarningPercent
	}
}

// 任务状态，worker 与等待方通过 CAS 决定任务归属
const (
	taskQueued int32 = iota
	taskStarted
	taskAbandoned
)

type task struct {
	ctx   context.Context
	fn    func(context.Context) error
	done  chan error
	state *atomic.Int32
}

// start 标记任务开始执行，等待方已放弃时返回 false
func (t task) start() bool {
	return t.state == nil || t.state.CompareAndSwap(taskQueued, taskStarted)
}

// Pool 固定数量 worker 的任务池
type Pool struct {
	config Config
	logger *zap.Logger

	tasks chan task
	wg    sync.WaitGroup

	active    atomic.Int64
	completed atomic.Uint64
	rejected  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	activeDesc   *prometheus.Desc
	queuedDesc   *prometheus.Desc
	doneDesc     *prometheus.Desc
	rejectedDesc *prometheus.Desc
}

// New 创建并启动 Worker Pool
// cfg 为 nil 时使用默认配置，logger 为 nil 时使用 nop logger
func New(cfg *Config, logger *zap.Logger) *Pool {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	c.applyDefaults()

	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		config: c,
		logger: logger,
		tasks:  make(chan task, c.QueueSize),
		ctx:    ctx,
		cancel: cancel,

		activeDesc:   prometheus.NewDesc("doclink_worker_pool_active", "Tasks currently executing.", nil, nil),
		queuedDesc:   prometheus.NewDesc("doclink_worker_pool_queued", "Tasks waiting in the queue.", nil, nil),
		doneDesc:     prometheus.NewDesc("doclink_worker_pool_completed_total", "Tasks finished.", nil, nil),
		rejectedDesc: prometheus.NewDesc("doclink_worker_pool_rejected_total", "Tasks rejected because the queue was full or closed.", nil, nil),
	}

	for i := 0; i < c.MaxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	p.logger.Info("worker pool started",
		zap.Int("maxWorkers", c.MaxWorkers),
		zap.Int("queueSize", c.QueueSize))

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(t)
		}
	}
}

func (p *Pool) run(t task) {
	active := p.active.Add(1)
	defer p.active.Add(-1)
	defer p.completed.Add(1)

	if threshold := int64(float64(p.config.MaxWorkers) * p.config.WarningPercent); active >= threshold {
		p.logger.Warn("worker pool approaching capacity",
			zap.Int64("activeCount", active),
			zap.Int("maxWorkers", p.config.MaxWorkers))
	}

	var err error
	if t.ctx.Err() != nil || !t.start() {
		err = ErrTaskCancelled
	} else {
		err = t.fn(t.ctx)
	}

	if t.done != nil {
		t.done <- err
	}
}

func (p *Pool) enqueue(t task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.rejected.Add(1)
		return ErrWorkerPoolClosed
	}

	select {
	case p.tasks <- t:
		return nil
	default:
		p.rejected.Add(1)
		return ErrWorkerPoolFull
	}
}

// Submit 提交任务并等待完成
// ctx 在任务开始前取消时返回 ctx.Err() 且任务不会执行
// 任务已开始时等待其自身返回，由任务决定如何处理已取消的 ctx
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	state := new(atomic.Int32)
	if err := p.enqueue(task{ctx: ctx, fn: fn, done: done, state: state}); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if state.CompareAndSwap(taskQueued, taskAbandoned) {
			return ctx.Err()
		}
	case <-p.ctx.Done():
		return ErrWorkerPoolClosed
	}

	select {
	case err := <-done:
		return err
	case <-p.ctx.Done():
		return ErrWorkerPoolClosed
	}
}

// SubmitAsync 异步提交任务，不等待结果
func (p *Pool) SubmitAsync(ctx context.Context, fn func(context.Context) error) error {
	return p.enqueue(task{ctx: ctx, fn: fn})
}

// Shutdown 停止接收任务并等待队列中的任务完成
// ctx 到期时强制取消剩余任务
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.logger.Info("worker pool shutting down",
		zap.Int64("activeCount", p.active.Load()),
		zap.Int("queuedCount", len(p.tasks)))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool shutdown completed")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("worker pool shutdown timeout, forcing cancellation")
		return ctx.Err()
	}
}

// Metrics Worker Pool 运行指标
type Metrics struct {
	MaxWorkers    int    `json:"maxWorkers"`
	ActiveCount   int64  `json:"activeCount"`
	QueuedCount   int    `json:"queuedCount"`
	QueueCapacity int    `json:"queueCapacity"`
	Completed     uint64 `json:"completed"`
	Rejected      uint64 `json:"rejected"`
	IsClosed      bool   `json:"isClosed"`
}

// GetMetrics 获取当前指标
func (p *Pool) GetMetrics() Metrics {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	return Metrics{
		MaxWorkers:    p.config.MaxWorkers,
		ActiveCount:   p.active.Load(),
		QueuedCount:   len(p.tasks),
		QueueCapacity: p.config.QueueSize,
		Completed:     p.completed.Load(),
		Rejected:      p.rejected.Load(),
		IsClosed:      closed,
	}
}

// Describe 实现 prometheus.Collector
func (p *Pool) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.activeDesc
	ch <- p.queuedDesc
	ch <- p.doneDesc
	ch <- p.rejectedDesc
}

// Collect 实现 prometheus.Collector
func (p *Pool) Collect(ch chan<- prometheus.Metric) {
	m := p.GetMetrics()
	ch <- prometheus.MustNewConstMetric(p.activeDesc, prometheus.GaugeValue, float64(m.ActiveCount))
	ch <- prometheus.MustNewConstMetric(p.queuedDesc, prometheus.GaugeValue, float64(m.QueuedCount))
	ch <- prometheus.MustNewConstMetric(p.doneDesc, prometheus.CounterValue, float64(m.Completed))
	ch <- prometheus.MustNewConstMetric(p.rejectedDesc, prometheus.CounterValue, float64(m.Rejected))
}
