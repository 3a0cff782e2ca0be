package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/nftmarket/internal/events"
)

// EventHandler 处理市场事件（串行投递，每个状态迁移恰好一次）。
//
// NOTE: 定义在“中立”包中，避免 market / notify / api 之间的循环依赖。
type EventHandler interface {
	OnEvent(ctx context.Context, evt events.Envelope) error
}

// EventHandlerFunc 函数适配器
type EventHandlerFunc func(ctx context.Context, evt events.Envelope) error

func (f EventHandlerFunc) OnEvent(ctx context.Context, evt events.Envelope) error {
	return f(ctx, evt)
}

// EventPublisher 引擎提交后发布事件
type EventPublisher interface {
	Publish(ctx context.Context, evt events.Envelope) (events.Envelope, error)
}

// Bank 原生币支付通道。
//
// Atomic 内用其 ctx 发起的转账同属一个事务，要么全部落账，要么全部丢弃。
type Bank interface {
	BalanceOf(addr common.Address) *big.Int
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
	OnRollback(ctx context.Context, fn func())
	AfterCommit(ctx context.Context, fn func())
}
