package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/betbot/perpsession/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type entry struct {
	name    string
	handler Handler
}

// Manager 收尾管理器：按注册的逆序串行执行（后打开的资源先关闭）
type Manager struct {
	mu       sync.Mutex
	handlers []entry
	done     bool
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, entry{name: name, handler: handler})
}

// Shutdown 执行所有回调，只执行一次；ctx 应带超时。
// 单个回调失败不影响后续回调，所有错误合并返回。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	handlers := m.handlers
	m.mu.Unlock()

	var errs []error
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if err := ctx.Err(); err != nil {
			logger.Warnf("关闭超时，跳过 %s: %v", h.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		if err := h.handler(ctx); err != nil {
			logger.Warnf("关闭 %s 失败: %v", h.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		logger.Debugf("已关闭 %s", h.name)
	}
	return errors.Join(errs...)
}
