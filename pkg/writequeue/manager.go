// Package writequeue serializes writes that target the same key
// Package writequeue 按 key 串行化写操作
// Used so a stored conversation is never written by two callers at once
// 同一会话的读改写不会交错执行，SQLite 下也避免 "database is locked"
package writequeue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrWriteQueueFull 队列已满
	ErrWriteQueueFull = errors.New("write queue is full")
	// ErrWriteQueueClosed 管理器已关闭
	ErrWriteQueueClosed = errors.New("write queue is closed")
	// ErrWriteTimeout 等待写操作超时
	ErrWriteTimeout = errors.New("write operation timeout")
)

// Config write queue configuration
// Config 写队列配置
type Config struct {
	QueueCapacity int           // 每个 key 的队列容量，默认 64
	WriteTimeout  time.Duration // 单次等待上限，默认 30 秒
	IdleTimeout   time.Duration // 空闲队列回收时间，默认 10 分钟
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 64,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   10 * time.Minute,
	}
}

// 操作状态，worker 与等待方通过 CAS 决定操作是否执行
const (
	opQueued int32 = iota
	opStarted
	opAbandoned
)

type writeOp struct {
	ctx    context.Context
	fn     func() error
	result chan error
	state  *atomic.Int32
}

// keyQueue 单个 key 的队列，由一个 worker 顺序消费
type keyQueue struct {
	key      string
	ch       chan writeOp
	lastUsed atomic.Int64
	closed   atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func (q *keyQueue) stop() {
	q.stopOnce.Do(func() {
		q.closed.Store(true)
		close(q.stopCh)
	})
}

// Manager 管理所有 key 的写队列
type Manager struct {
	config Config
	logger *zap.Logger

	queues sync.Map // map[string]*keyQueue

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	janitorDone chan struct{}
	janitorWg   sync.WaitGroup
}

// New 创建写队列管理器，cfg 为 nil 时使用默认配置
func New(cfg *Config, logger *zap.Logger) *Manager {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.QueueCapacity > 0 {
			c.QueueCapacity = cfg.QueueCapacity
		}
		if cfg.WriteTimeout > 0 {
			c.WriteTimeout = cfg.WriteTimeout
		}
		if cfg.IdleTimeout > 0 {
			c.IdleTimeout = cfg.IdleTimeout
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:      c,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		janitorDone: make(chan struct{}),
	}

	m.janitorWg.Add(1)
	go m.janitor()

	return m
}

// Execute 在 key 对应的队列中执行 fn，同一 key 按 FIFO 顺序逐个执行
// fn 开始前 ctx 取消或等待超时则放弃执行；fn 已开始时总是等待其返回
// fn 内不能再对同一 key 调用 Execute
func (m *Manager) Execute(ctx context.Context, key string, fn func() error) error {
	queue := m.queueFor(key)
	if queue == nil {
		return ErrWriteQueueClosed
	}

	op := writeOp{ctx: ctx, fn: fn, result: make(chan error, 1), state: new(atomic.Int32)}
	select {
	case queue.ch <- op:
	default:
		return ErrWriteQueueFull
	}

	timeout := m.config.WriteTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var abandonErr error
	select {
	case err := <-op.result:
		return err
	case <-ctx.Done():
		abandonErr = ctx.Err()
	case <-timer.C:
		abandonErr = ErrWriteTimeout
	case <-m.ctx.Done():
		abandonErr = ErrWriteQueueClosed
	}

	if op.state.CompareAndSwap(opQueued, opAbandoned) {
		return abandonErr
	}
	return <-op.result
}

// queueFor 获取或懒加载 key 的队列，管理器关闭后返回 nil
func (m *Manager) queueFor(key string) *keyQueue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil
	}

	for {
		if v, ok := m.queues.Load(key); ok {
			q := v.(*keyQueue)
			if !q.closed.Load() {
				q.lastUsed.Store(time.Now().UnixNano())
				return q
			}
			// 已被回收的队列，替换为新队列
			m.queues.CompareAndDelete(key, q)
			continue
		}

		q := &keyQueue{
			key:    key,
			ch:     make(chan writeOp, m.config.QueueCapacity),
			stopCh: make(chan struct{}),
			done:   make(chan struct{}),
		}
		q.lastUsed.Store(time.Now().UnixNano())
		if _, loaded := m.queues.LoadOrStore(key, q); loaded {
			continue
		}

		go m.worker(q)
		return q
	}
}

func (m *Manager) worker(q *keyQueue) {
	defer close(q.done)
	for {
		select {
		case <-q.stopCh:
			m.drain(q)
			return
		case op := <-q.ch:
			m.executeOp(q, op)
		}
	}
}

func (m *Manager) executeOp(q *keyQueue, op writeOp) {
	q.lastUsed.Store(time.Now().UnixNano())
	if !op.state.CompareAndSwap(opQueued, opStarted) {
		op.result <- ErrWriteTimeout
		return
	}
	if err := op.ctx.Err(); err != nil {
		op.result <- err
		return
	}
	op.result <- op.fn()
}

// drain 执行队列中剩余的操作
func (m *Manager) drain(q *keyQueue) {
	for {
		select {
		case op := <-q.ch:
			m.executeOp(q, op)
		default:
			return
		}
	}
}

// janitor 定期回收空闲队列
func (m *Manager) janitor() {
	defer m.janitorWg.Done()

	ticker := time.NewTicker(m.config.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.janitorDone:
			return
		case <-ticker.C:
			m.reapIdle(time.Now())
		}
	}
}

func (m *Manager) reapIdle(now time.Time) {
	threshold := m.config.IdleTimeout.Nanoseconds()
	m.queues.Range(func(key, value any) bool {
		q := value.(*keyQueue)
		if now.UnixNano()-q.lastUsed.Load() > threshold && len(q.ch) == 0 {
			q.stop()
			m.queues.CompareAndDelete(key, q)
			m.logger.Debug("idle write queue released", zap.String("key", q.key))
		}
		return true
	})
}

// Shutdown 停止接收新操作并等待已排队的操作完成
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.janitorDone)

	done := make(chan struct{})
	go func() {
		m.queues.Range(func(_, value any) bool {
			q := value.(*keyQueue)
			q.stop()
			<-q.done
			return true
		})
		m.janitorWg.Wait()
		close(done)
	}()

	defer m.cancel()
	select {
	case <-done:
		m.logger.Info("write queue manager shutdown completed")
		return nil
	case <-ctx.Done():
		m.logger.Warn("write queue manager shutdown timeout")
		return ctx.Err()
	}
}

// QueueCount 返回活跃队列数量
func (m *Manager) QueueCount() int {
	n := 0
	m.queues.Range(func(_, value any) bool {
		if !value.(*keyQueue).closed.Load() {
			n++
		}
		return true
	})
	return n
}

// IsClosed 返回管理器是否已关闭
func (m *Manager) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
