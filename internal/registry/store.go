// Package registry 挂单登记簿：item_id -> Item 的持久映射与自增 id 计数器。
package registry

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/nftmarket/internal/domain"
)

// Store 挂单存储后端
//
// 所有实现都必须满足：
//   - Append 分配 id = Count()+1，id 连续、从 1 开始、永不复用
//   - Get 对 0 / 超出计数的 id 返回 domain.ErrItemNotFound
//   - MarkSold 只允许 false -> true；已售返回 domain.ErrItemAlreadySold
//   - RevertSold 只用于回滚失败的购买，不是一次业务状态迁移
type Store interface {
	Append(ctx context.Context, item domain.Item) (domain.Item, error)
	Get(ctx context.Context, id uint64) (domain.Item, error)
	MarkSold(ctx context.Context, id uint64, buyer common.Address, at time.Time) error
	RevertSold(ctx context.Context, id uint64) error
	Count(ctx context.Context) (uint64, error)
	Close() error
}

// itemRecord 序列化格式（big.Int 统一存十进制字符串）
type itemRecord struct {
	ID            uint64 `json:"item_id"`
	TokenContract string `json:"token_contract"`
	TokenID       string `json:"token_id"`
	Price         string `json:"price"`
	Seller        string `json:"seller"`
	Sold          bool   `json:"sold"`
	Buyer         string `json:"buyer,omitempty"`
	ListedAt      string `json:"listed_at"`
	SoldAt        string `json:"sold_at,omitempty"`
}

func toRecord(item domain.Item) itemRecord {
	rec := itemRecord{
		ID:            item.ID,
		TokenContract: item.TokenContract.Hex(),
		TokenID:       bigString(item.TokenID),
		Price:         bigString(item.Price),
		Seller:        item.Seller.Hex(),
		Sold:          item.Sold,
		ListedAt:      item.ListedAt.UTC().Format(time.RFC3339Nano),
	}
	if item.Sold {
		rec.Buyer = item.Buyer.Hex()
	}
	if item.SoldAt != nil {
		rec.SoldAt = item.SoldAt.UTC().Format(time.RFC3339Nano)
	}
	return rec
}

func (r itemRecord) toItem() (domain.Item, error) {
	tokenID, ok := new(big.Int).SetString(r.TokenID, 10)
	if !ok {
		return domain.Item{}, fmt.Errorf("item %d: bad token_id %q", r.ID, r.TokenID)
	}
	price, ok := new(big.Int).SetString(r.Price, 10)
	if !ok {
		return domain.Item{}, fmt.Errorf("item %d: bad price %q", r.ID, r.Price)
	}
	item := domain.Item{
		ID:            r.ID,
		TokenContract: common.HexToAddress(r.TokenContract),
		TokenID:       tokenID,
		Price:         price,
		Seller:        common.HexToAddress(r.Seller),
		Sold:          r.Sold,
	}
	if r.Buyer != "" {
		item.Buyer = common.HexToAddress(r.Buyer)
	}
	item.ListedAt, _ = time.Parse(time.RFC3339Nano, r.ListedAt)
	if r.SoldAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, r.SoldAt); err == nil {
			item.SoldAt = &t
		}
	}
	return item, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
