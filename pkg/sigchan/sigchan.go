// Package sigchan 非阻塞、可合并的唤醒信号。
//
// 多次 Emit 在消费者醒来前会合并成一次，适合“有新数据，去拉取”这类通知。
package sigchan

import "context"

// Chan 信号 channel，不携带数据
type Chan struct {
	c chan struct{}
}

// New 创建信号 channel；bufferSize<1 时按 1 处理
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 发送信号；缓冲已满时直接丢弃
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 用于 select
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Wait 阻塞到收到信号或 ctx 结束
func (c *Chan) Wait(ctx context.Context) error {
	select {
	case <-c.c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
