package shutdown

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "shutdown")

// Handler 关闭回调
type Handler func(ctx context.Context) error

type entry struct {
	name    string
	handler Handler
}

// Manager 优雅关闭管理器。
// 回调按注册的相反顺序串行执行（后启动的先关闭），与 defer 语义一致。
type Manager struct {
	mu        sync.Mutex
	callbacks []entry
	done      bool
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, entry{name: name, handler: handler})
}

// Shutdown 执行所有回调；ctx 超时后剩余回调仍会执行，但会收到已取消的 ctx。
// 只执行一次，返回失败的回调数量。
func (m *Manager) Shutdown(ctx context.Context) int {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return 0
	}
	m.done = true
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		log.Info("没有注册的关闭回调")
		return 0
	}
	log.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	failed := 0
	for i := len(callbacks) - 1; i >= 0; i-- {
		cb := callbacks[i]
		if err := cb.handler(ctx); err != nil {
			failed++
			log.Errorf("关闭回调失败: %s: %v", cb.name, err)
			continue
		}
		log.Debugf("关闭回调完成: %s", cb.name)
	}
	if ctx.Err() != nil {
		log.Warnf("关闭超时: %v", ctx.Err())
	}
	log.Infof("优雅关闭结束，失败 %d 个", failed)
	return failed
}
