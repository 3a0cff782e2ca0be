package notify

import (
	"context"
	"sync"

	"github.com/betbot/nftmarket/internal/events"
	"github.com/betbot/nftmarket/internal/ports"
)

// HandlerList 事件处理器列表
type HandlerList struct {
	mu       sync.RWMutex
	handlers []ports.EventHandler
}

func NewHandlerList() *HandlerList {
	return &HandlerList{handlers: make([]ports.EventHandler, 0)}
}

// Add 添加处理器
func (h *HandlerList) Add(handler ports.EventHandler) {
	if handler == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append(h.handlers, handler)
}

// Snapshot 返回处理器快照，遍历时不持锁
func (h *HandlerList) Snapshot() []ports.EventHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ports.EventHandler, len(h.handlers))
	copy(out, h.handlers)
	return out
}

// Emit 串行调用所有处理器。单个处理器出错或 panic 只记录，不影响其他处理器。
func (h *HandlerList) Emit(ctx context.Context, evt events.Envelope) {
	for i, handler := range h.Snapshot() {
		func(idx int, hd ports.EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("事件处理器 %d panic: seq=%d %v", idx, evt.Seq, r)
				}
			}()
			if err := hd.OnEvent(ctx, evt); err != nil {
				log.Errorf("事件处理器 %d 执行失败: seq=%d type=%s err=%v", idx, evt.Seq, evt.Type, err)
			}
		}(i, handler)
	}
}

// Count 处理器数量
func (h *HandlerList) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers)
}
