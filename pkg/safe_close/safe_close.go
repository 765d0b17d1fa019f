// Package safe_close 协调多个后台组件的统一关闭
package safe_close

import (
	"sync"
)

// SafeClose 关闭协调器
// 任一组件调用 SendCloseSignal 或外部触发关闭后，所有已注册的组件都会收到关闭信号
type SafeClose struct {
	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup

	mu  sync.Mutex
	err error
}

// NewSafeClose 创建关闭协调器
func NewSafeClose() *SafeClose {
	return &SafeClose{closeCh: make(chan struct{})}
}

// Attach 注册一个后台组件
// fn 在独立的 goroutine 中运行，结束前必须调用 done
func (s *SafeClose) Attach(fn func(done func(), closeSignal <-chan struct{})) {
	s.wg.Add(1)
	go fn(s.wg.Done, s.closeCh)
}

// SendCloseSignal 触发关闭，只有第一次调用的 err 会被保留
func (s *SafeClose) SendCloseSignal(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.closeCh)
	})
}

// Done 返回关闭信号通道
func (s *SafeClose) Done() <-chan struct{} {
	return s.closeCh
}

// WaitClosed 等待所有已注册组件退出，返回触发关闭的错误
func (s *SafeClose) WaitClosed() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
