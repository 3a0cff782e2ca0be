// Package market 市场引擎：挂单与购买协议。
//
// 所有检查与状态变更在 mu 内完成；付款、转 token 等外部交互在锁外执行。
// 一次购买的全部付款同属一个余额事务，失败时整体作废，保证“要么全部生效，要么全部不生效”。
package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nftmarket/internal/domain"
	"github.com/betbot/nftmarket/internal/events"
	"github.com/betbot/nftmarket/internal/fee"
	"github.com/betbot/nftmarket/internal/ledger"
	"github.com/betbot/nftmarket/internal/metrics"
	"github.com/betbot/nftmarket/internal/ports"
	"github.com/betbot/nftmarket/internal/registry"
)

var log = logrus.WithField("component", "market")

// PurchaseRequest 购买请求
type PurchaseRequest struct {
	ItemID  uint64
	Buyer   common.Address
	Payment *big.Int // 随调用附带的金额（wei）
}

// Config 引擎依赖
type Config struct {
	Registry  *registry.Registry
	Bank      ports.Bank
	Policy    *fee.Policy
	Publisher ports.EventPublisher // 可为 nil
	Now       func() time.Time
}

// Engine 市场引擎
type Engine struct {
	mu sync.Mutex

	registry  *registry.Registry
	bank      ports.Bank
	policy    *fee.Policy
	publisher ports.EventPublisher
	now       func() time.Time
}

// NewEngine 创建引擎。引擎地址即登记簿的托管地址。
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, errors.New("market: registry is required")
	}
	if cfg.Bank == nil {
		return nil, errors.New("market: bank is required")
	}
	if cfg.Policy == nil {
		return nil, errors.New("market: fee policy is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		registry:  cfg.Registry,
		bank:      cfg.Bank,
		policy:    cfg.Policy,
		publisher: cfg.Publisher,
		now:       now,
	}, nil
}

// Address 引擎托管账户
func (e *Engine) Address() common.Address { return e.registry.Holder() }

// FeePercent 手续费比例
func (e *Engine) FeePercent() uint64 { return e.policy.Percent() }

// FeeAccount 手续费收款账户
func (e *Engine) FeeAccount() common.Address { return e.policy.Account() }

// ItemCount 历史挂单总数（= 最大 item id）
func (e *Engine) ItemCount(ctx context.Context) (uint64, error) {
	return e.registry.Count(ctx)
}

// GetItem 查询挂单；id 越界返回 ErrItemNotFound
func (e *Engine) GetItem(ctx context.Context, itemID uint64) (domain.Item, error) {
	return e.registry.Get(ctx, itemID)
}

// TotalPayable 买家需支付的总额（价格 + 手续费）
func (e *Engine) TotalPayable(ctx context.Context, itemID uint64) (*big.Int, error) {
	item, err := e.registry.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return e.policy.TotalPayable(item.Price), nil
}

// List 挂单：托管 token 并记录，成功后发布 Offered。
// 发布在 mu 内完成，同一 item 的 Offered 一定排在 Sold 之前。
func (e *Engine) List(ctx context.Context, req registry.ListRequest) (domain.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	item, err := e.registry.List(ctx, req)
	if err != nil {
		return domain.Item{}, err
	}
	metrics.ItemsListed.Inc()

	log.Infof("新挂单: itemID=%d contract=%s tokenID=%s price=%s seller=%s",
		item.ID, item.TokenContract.Hex(), item.TokenID, item.Price, item.Seller.Hex())

	e.publish(ctx, events.NewOffered(events.OfferedEvent{
		ItemID:        item.ID,
		TokenContract: item.TokenContract,
		TokenID:       new(big.Int).Set(item.TokenID),
		Price:         new(big.Int).Set(item.Price),
		Seller:        item.Seller,
	}, item.ListedAt))
	return item, nil
}

// reservation 锁内阶段的结果
type reservation struct {
	item   domain.Item
	split  fee.Split
	soldAt time.Time
}

// Purchase 购买挂单。
//
// 校验顺序：id 越界 -> 已售 -> 付款不足 -> 买家余额不足。
// 整个购买在一个余额事务里执行：锁内收款并标记已售，锁外向卖家/手续费账户付款
// 并把 token 转给买家。任一步失败则所有付款一并丢弃、已售标记回滚，
// 收款方回调里转走的钱也不会落账。
func (e *Engine) Purchase(ctx context.Context, req PurchaseRequest) (domain.Receipt, error) {
	if req.Payment == nil || req.Payment.Sign() < 0 {
		return domain.Receipt{}, fmt.Errorf("%w: payment", domain.ErrInvalidInput)
	}
	if req.Buyer == (common.Address{}) {
		return domain.Receipt{}, fmt.Errorf("%w: buyer", domain.ErrInvalidInput)
	}

	var res reservation
	err := e.bank.Atomic(ctx, func(ctx context.Context) error {
		var err error
		if res, err = e.reserve(ctx, req); err != nil {
			return err
		}
		return e.settle(ctx, req, res)
	})
	if err != nil {
		metrics.PurchaseFailures.WithLabelValues(failureReason(err)).Inc()
		return domain.Receipt{}, err
	}
	metrics.Purchases.Inc()

	item := res.item
	return domain.Receipt{
		ID:            uuid.NewString(),
		ItemID:        item.ID,
		TokenContract: item.TokenContract,
		TokenID:       new(big.Int).Set(item.TokenID),
		Seller:        item.Seller,
		Buyer:         req.Buyer,
		FeeAccount:    e.policy.Account(),
		Price:         res.split.Seller,
		Fee:           res.split.Fee,
		Excess:        res.split.Excess,
		Paid:          new(big.Int).Set(req.Payment),
		SoldAt:        res.soldAt,
	}, nil
}

// reserve 锁内：校验、收款、标记已售
func (e *Engine) reserve(ctx context.Context, req PurchaseRequest) (reservation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	count, err := e.registry.Count(ctx)
	if err != nil {
		return reservation{}, fmt.Errorf("count items: %w", err)
	}
	if req.ItemID < 1 || req.ItemID > count {
		return reservation{}, domain.ErrInvalidItemID
	}

	item, err := e.registry.Get(ctx, req.ItemID)
	if err != nil {
		return reservation{}, err
	}
	if item.Sold {
		return reservation{}, domain.ErrItemAlreadySold
	}

	split, ok := e.policy.Split(item.Price, req.Payment)
	if !ok {
		return reservation{}, domain.ErrInsufficientPayment
	}

	if err := e.bank.Transfer(ctx, req.Buyer, e.Address(), req.Payment); err != nil {
		return reservation{}, fmt.Errorf("collect payment: %w", err)
	}
	e.bank.OnRollback(ctx, func() {
		metrics.Refunds.Inc()
		log.Warnf("购买失败已退款: itemID=%d buyer=%s amount=%s",
			req.ItemID, req.Buyer.Hex(), req.Payment)
	})

	soldAt := e.now().UTC()
	if err := e.registry.MarkSold(ctx, item.ID, req.Buyer, soldAt); err != nil {
		return reservation{}, fmt.Errorf("mark sold: %w", err)
	}
	e.bank.OnRollback(ctx, func() {
		if err := e.registry.RevertSold(context.WithoutCancel(ctx), item.ID); err != nil {
			log.Errorf("回滚已售标记失败: itemID=%d err=%v", item.ID, err)
		}
	})
	return reservation{item: item, split: split, soldAt: soldAt}, nil
}

// settle 锁外交互：卖家收款 -> 手续费账户收款 -> token 转给买家。
// 付款都记在购买事务里，返回错误即全部作废。
func (e *Engine) settle(ctx context.Context, req PurchaseRequest, res reservation) error {
	item := res.item
	engine := e.Address()

	if err := e.bank.Transfer(ctx, engine, item.Seller, res.split.Seller); err != nil {
		return fmt.Errorf("pay seller: %w", err)
	}
	feeTotal := new(big.Int).Add(res.split.Fee, res.split.Excess)
	if err := e.bank.Transfer(ctx, engine, e.policy.Account(), feeTotal); err != nil {
		return fmt.Errorf("pay fee account: %w", err)
	}

	token, err := e.registry.Tokens().Lookup(item.TokenContract)
	if err != nil {
		return fmt.Errorf("lookup token: %w", err)
	}
	if err := token.TransferFrom(ctx, engine, engine, req.Buyer, item.TokenID); err != nil {
		return fmt.Errorf("deliver token: %w", err)
	}
	// 外层事务失败（嵌套购买或落账冲突）时买家把 token 交还托管
	e.bank.OnRollback(ctx, func() {
		if err := token.TransferFrom(context.WithoutCancel(ctx), req.Buyer, req.Buyer, engine, item.TokenID); err != nil {
			log.Errorf("收回 token 失败: itemID=%d buyer=%s err=%v", item.ID, req.Buyer.Hex(), err)
		}
	})

	e.bank.AfterCommit(ctx, func() {
		log.Infof("成交: itemID=%d buyer=%s price=%s fee=%s excess=%s",
			item.ID, req.Buyer.Hex(), res.split.Seller, res.split.Fee, res.split.Excess)
		e.publish(ctx, events.NewSold(events.SoldEvent{
			ItemID:        item.ID,
			TokenContract: item.TokenContract,
			TokenID:       new(big.Int).Set(item.TokenID),
			Price:         new(big.Int).Set(item.Price),
			Seller:        item.Seller,
			Buyer:         req.Buyer,
		}, res.soldAt))
	})
	return nil
}

func (e *Engine) publish(ctx context.Context, evt events.Envelope) {
	if e.publisher == nil {
		return
	}
	if _, err := e.publisher.Publish(ctx, evt); err != nil {
		// 状态已提交，事件失败只记录
		log.Errorf("发布事件失败: type=%s itemID=%d err=%v", evt.Type, evt.ItemID(), err)
	}
}

// failureReason 购买失败的指标标签
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidItemID):
		return "invalid_item_id"
	case errors.Is(err, domain.ErrItemAlreadySold):
		return "item_already_sold"
	case errors.Is(err, domain.ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case domain.IsRejection(err):
		return "rejected"
	default:
		return "settlement"
	}
}
