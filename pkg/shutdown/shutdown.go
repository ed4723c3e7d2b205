// Package shutdown 在收到退出信号后按超时并发执行注册的关闭回调。
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

// Handler 关闭回调
type Handler func(ctx context.Context) error

type namedHandler struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器
type Manager struct {
	mu        sync.Mutex
	callbacks []namedHandler
	log       logrus.FieldLogger
}

// NewManager 创建关闭管理器
func NewManager(log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{log: log.WithField("component", "shutdown")}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// Shutdown 并发执行所有回调，直到全部完成或 ctx 超时。返回失败的回调数。
func (m *Manager) Shutdown(ctx context.Context) int {
	m.mu.Lock()
	callbacks := append([]namedHandler(nil), m.callbacks...)
	m.mu.Unlock()

	if len(callbacks) == 0 {
		m.log.Info("没有注册的关闭回调")
		return 0
	}
	m.log.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		failed int
	)
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(h namedHandler) {
			defer wg.Done()
			if err := h.fn(ctx); err != nil {
				m.log.Warnf("关闭 %s 失败: %v", h.name, err)
				failMu.Lock()
				failed++
				failMu.Unlock()
			}
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("所有关闭回调已完成")
	case <-ctx.Done():
		m.log.Warnf("关闭超时: %v", ctx.Err())
		failMu.Lock()
		defer failMu.Unlock()
		return failed + 1
	}
	return failed
}

// WaitForSignal 阻塞直到 SIGINT/SIGTERM 或 ctx 结束
func WaitForSignal(ctx context.Context) os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ch)
	select {
	case sig := <-ch:
		return sig
	case <-ctx.Done():
		return nil
	}
}
