package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/betbot/gorouter/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type named struct {
	name string
	fn   Handler
}

// Manager 按注册的逆序释放资源（后打开的先关闭）
type Manager struct {
	mu        sync.Mutex
	callbacks []named
	done      bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, named{name: name, fn: handler})
}

// Closer 注册 Close() error 风格的资源
func (m *Manager) Closer(name string, close func() error) {
	m.OnShutdown(name, func(context.Context) error { return close() })
}

// Shutdown 执行所有关闭回调，只生效一次；
// ctx 超时后不再执行剩余回调
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	callbacks := m.callbacks
	m.callbacks = nil
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return nil
	}
	logger.Debugf("开始关闭，共 %d 个回调", len(callbacks))

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		cb := callbacks[i]
		if err := ctx.Err(); err != nil {
			logger.Warnf("关闭超时，跳过 %s: %v", cb.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", cb.name, err))
			continue
		}
		if err := cb.fn(ctx); err != nil {
			logger.Warnf("关闭 %s 失败: %v", cb.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", cb.name, err))
		}
	}
	return errors.Join(errs...)
}
