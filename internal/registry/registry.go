package registry

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nftmarket/internal/domain"
	"github.com/betbot/nftmarket/internal/ports"
	"github.com/betbot/nftmarket/pkg/cache"
)

var log = logrus.WithField("component", "registry")

// ListRequest 挂单请求
type ListRequest struct {
	TokenContract common.Address
	TokenID       *big.Int
	Price         *big.Int
	Seller        common.Address
}

// Registry 挂单登记簿
//
// 挂单时把 token 从卖家转入 holder（引擎托管地址），之后卖家无法在引擎外重复出售。
// Registry 本身不加锁：调用方（market.Engine）负责串行化写操作。
type Registry struct {
	store  Store
	tokens ports.TokenDirectory
	holder common.Address
	cache  *cache.InMemoryCache[uint64, domain.Item]
	now    func() time.Time
}

// Option 可选项
type Option func(*Registry)

// WithReadCache 为持久化后端开启读缓存
func WithReadCache(ttl time.Duration) Option {
	return func(r *Registry) {
		r.cache = cache.NewInMemoryCache[uint64, domain.Item](ttl, time.Minute)
	}
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New 创建登记簿
func New(store Store, tokens ports.TokenDirectory, holder common.Address, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		tokens: tokens,
		holder: holder,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Holder 引擎托管地址
func (r *Registry) Holder() common.Address {
	return r.holder
}

// Tokens 合约目录
func (r *Registry) Tokens() ports.TokenDirectory {
	return r.tokens
}

// List 校验价格、托管 token、分配新 id 并写入 sold=false 的记录
func (r *Registry) List(ctx context.Context, req ListRequest) (domain.Item, error) {
	if req.Price == nil || req.Price.Sign() <= 0 {
		return domain.Item{}, domain.ErrInvalidPrice
	}
	if req.TokenID == nil || req.TokenID.Sign() < 0 {
		return domain.Item{}, fmt.Errorf("%w: token id", domain.ErrInvalidInput)
	}
	if req.Seller == (common.Address{}) {
		return domain.Item{}, fmt.Errorf("%w: seller", domain.ErrInvalidInput)
	}

	token, err := r.tokens.Lookup(req.TokenContract)
	if err != nil {
		return domain.Item{}, err
	}
	if err := token.TransferFrom(ctx, r.holder, req.Seller, r.holder, req.TokenID); err != nil {
		return domain.Item{}, fmt.Errorf("acquire token %s#%s: %w", req.TokenContract.Hex(), req.TokenID, err)
	}

	item, err := r.store.Append(ctx, domain.Item{
		TokenContract: req.TokenContract,
		TokenID:       new(big.Int).Set(req.TokenID),
		Price:         new(big.Int).Set(req.Price),
		Seller:        req.Seller,
		ListedAt:      r.now().UTC(),
	})
	if err != nil {
		// 存储失败：把 token 还给卖家，保证无部分副作用
		if rbErr := token.TransferFrom(ctx, r.holder, r.holder, req.Seller, req.TokenID); rbErr != nil {
			log.Errorf("归还 token 失败: contract=%s tokenID=%s seller=%s err=%v",
				req.TokenContract.Hex(), req.TokenID, req.Seller.Hex(), rbErr)
		}
		return domain.Item{}, fmt.Errorf("append item: %w", err)
	}
	log.Debugf("挂单已写入: itemID=%d contract=%s tokenID=%s price=%s",
		item.ID, item.TokenContract.Hex(), item.TokenID, item.Price)
	return item, nil
}

// Get 读取挂单
func (r *Registry) Get(ctx context.Context, id uint64) (domain.Item, error) {
	if r.cache == nil {
		return r.store.Get(ctx, id)
	}
	it, err := r.cache.GetOrLoad(id, func(id uint64) (domain.Item, error) {
		return r.store.Get(ctx, id)
	})
	if err != nil {
		return domain.Item{}, err
	}
	// 缓存中的值不外借
	return it.Clone(), nil
}

// MarkSold 置为已售（调用方保证 id 已校验且未售）
func (r *Registry) MarkSold(ctx context.Context, id uint64, buyer common.Address, at time.Time) error {
	r.invalidate(id)
	return r.store.MarkSold(ctx, id, buyer, at)
}

// RevertSold 回滚一次失败的购买
func (r *Registry) RevertSold(ctx context.Context, id uint64) error {
	r.invalidate(id)
	return r.store.RevertSold(ctx, id)
}

// Count 当前最大 id（即历史挂单总数）
func (r *Registry) Count(ctx context.Context) (uint64, error) {
	return r.store.Count(ctx)
}

// Close 关闭缓存与存储
func (r *Registry) Close() error {
	if r.cache != nil {
		r.cache.Stop()
	}
	return r.store.Close()
}

func (r *Registry) invalidate(id uint64) {
	if r.cache != nil {
		r.cache.Delete(id)
	}
}
