package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/betbot/nftmarket/pkg/cache"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
	GetResetTime() time.Time
}

// TokenBucket 令牌桶：容量 capacity，每秒补充 refillRate 个
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	now        func() time.Time
}

var _ RateLimiter = (*TokenBucket)(nil)

// NewTokenBucket 创建令牌桶（初始为满）
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate int, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastRefill: now(),
		now:        now,
	}
}

// refill 按经过的时间补充令牌（允许小数，避免整秒取整导致的突发）
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// Allow 尝试取一个令牌
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 阻塞直到取得令牌或 ctx 结束
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}
		wait := time.Second
		if tb.refillRate > 0 {
			wait = time.Duration(float64(time.Second) / tb.refillRate)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// GetRemaining 剩余整令牌数
func (tb *TokenBucket) GetRemaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return int(tb.tokens)
}

// GetResetTime 桶重新填满的时间
func (tb *TokenBucket) GetResetTime() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	now := tb.now()
	if tb.tokens >= tb.capacity || tb.refillRate <= 0 {
		return now
	}
	secs := (tb.capacity - tb.tokens) / tb.refillRate
	return now.Add(time.Duration(secs * float64(time.Second)))
}

// Keyed 按 key（调用方地址 / IP）分桶；空闲超过 idleTTL 的桶自动回收
type Keyed struct {
	mu         sync.Mutex
	capacity   int
	refillRate int
	buckets    *cache.InMemoryCache[string, *TokenBucket]
}

// NewKeyed 创建分桶限流器
func NewKeyed(capacity, refillRate int, idleTTL time.Duration) *Keyed {
	return &Keyed{
		capacity:   capacity,
		refillRate: refillRate,
		buckets:    cache.NewInMemoryCache[string, *TokenBucket](idleTTL, idleTTL),
	}
}

// Limiter 取得（必要时创建）key 对应的桶，并刷新其存活时间
func (k *Keyed) Limiter(key string) *TokenBucket {
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.buckets.Get(key)
	if !ok {
		b = NewTokenBucket(k.capacity, k.refillRate)
	}
	k.buckets.Set(key, b, 0)
	return b
}

// Allow key 对应的桶是否放行
func (k *Keyed) Allow(key string) bool {
	return k.Limiter(key).Allow()
}

// Size 当前桶数量
func (k *Keyed) Size() int {
	return k.buckets.Size()
}

// Stop 停止后台回收
func (k *Keyed) Stop() {
	k.buckets.Stop()
}
