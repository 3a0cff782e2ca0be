package syncgroup

import (
	"sync"
)

// SyncGroup 包装 sync.WaitGroup：先 Add 注册函数，再 Run 统一启动，Wait 等待全部退出
type SyncGroup struct {
	wg sync.WaitGroup

	mu  sync.Mutex
	fns []func()
}

// NewSyncGroup 创建 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 注册一个 goroutine 函数（Run 之前调用）
func (g *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.fns = append(g.fns, fn)
	g.mu.Unlock()
}

// Run 启动已注册的函数并清空注册列表
func (g *SyncGroup) Run() {
	g.mu.Lock()
	fns := g.fns
	g.fns = nil
	g.mu.Unlock()

	for _, fn := range fns {
		g.wg.Add(1)
		go func(f func()) {
			defer g.wg.Done()
			f()
		}(fn)
	}
}

// Wait 等待所有已启动的 goroutine 退出
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}
