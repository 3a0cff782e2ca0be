// Package notify 事件总线、事件日志与 websocket 推送。
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nftmarket/internal/events"
	"github.com/betbot/nftmarket/internal/metrics"
	"github.com/betbot/nftmarket/internal/ports"
	"github.com/betbot/nftmarket/pkg/sigchan"
)

var log = logrus.WithField("component", "notify")

// Bus 事件总线：分配 Seq、写日志、串行投递给处理器、唤醒 websocket 订阅者。
//
// 处理器在总线锁内被调用，不得在 OnEvent 中再次 Publish。
type Bus struct {
	mu       sync.Mutex
	journal  Journal
	handlers *HandlerList
	now      func() time.Time

	subsMu sync.Mutex
	subs   map[*sigchan.Chan]struct{}
}

var _ ports.EventPublisher = (*Bus)(nil)

// NewBus 创建总线；journal 为 nil 时使用内存日志
func NewBus(journal Journal) *Bus {
	if journal == nil {
		journal = NewMemoryJournal()
	}
	return &Bus{
		journal:  journal,
		handlers: NewHandlerList(),
		now:      time.Now,
		subs:     make(map[*sigchan.Chan]struct{}),
	}
}

// Journal 底层事件日志
func (b *Bus) Journal() Journal { return b.journal }

// Register 注册处理器
func (b *Bus) Register(h ports.EventHandler) {
	b.handlers.Add(h)
}

// Subscribe 订阅“有新事件”信号，返回取消函数
func (b *Bus) Subscribe() (*sigchan.Chan, func()) {
	sig := sigchan.New(1)
	b.subsMu.Lock()
	b.subs[sig] = struct{}{}
	b.subsMu.Unlock()
	return sig, func() {
		b.subsMu.Lock()
		delete(b.subs, sig)
		b.subsMu.Unlock()
	}
}

// Subscribers 当前订阅者数量
func (b *Bus) Subscribers() int {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	return len(b.subs)
}

// Publish 实现 ports.EventPublisher
func (b *Bus) Publish(ctx context.Context, evt events.Envelope) (events.Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	last, err := b.journal.Last(ctx)
	if err != nil {
		return events.Envelope{}, fmt.Errorf("journal last: %w", err)
	}
	if evt.At.IsZero() {
		evt.At = b.now()
	}
	evt.At = evt.At.UTC()
	evt.Seq = last + 1
	evt.ID = ulid.MustNew(ulid.Timestamp(evt.At), ulid.DefaultEntropy()).String()

	if err := b.journal.Append(ctx, evt); err != nil {
		return events.Envelope{}, fmt.Errorf("journal append: %w", err)
	}
	metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
	log.Debugf("事件已发布: seq=%d type=%s itemID=%d", evt.Seq, evt.Type, evt.ItemID())

	b.handlers.Emit(ctx, evt)
	b.wake()
	return evt, nil
}

func (b *Bus) wake() {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for sig := range b.subs {
		sig.Emit()
	}
}
