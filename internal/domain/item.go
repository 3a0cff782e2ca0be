package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Item 挂单记录（一次挂单对应一个 Item）
//
// ID 从 1 开始连续分配，永不复用；TokenContract/TokenID/Price/Seller 创建后不可变；
// Sold 只会 false -> true 一次。
type Item struct {
	ID            uint64         `json:"item_id"`
	TokenContract common.Address `json:"token_contract"`
	TokenID       *big.Int       `json:"token_id"`
	Price         *big.Int       `json:"price"` // wei
	Seller        common.Address `json:"seller"`
	Sold          bool           `json:"sold"`
	Buyer         common.Address `json:"buyer"` // 未成交时为零地址
	ListedAt      time.Time      `json:"listed_at"`
	SoldAt        *time.Time     `json:"sold_at,omitempty"` // 成交时间（可选）
}

// IsListed 是否仍在售
func (i *Item) IsListed() bool {
	return i != nil && !i.Sold
}

// Clone 深拷贝（big.Int 是指针，避免调用方修改存储内的值）
func (i Item) Clone() Item {
	out := i
	if i.TokenID != nil {
		out.TokenID = new(big.Int).Set(i.TokenID)
	}
	if i.Price != nil {
		out.Price = new(big.Int).Set(i.Price)
	}
	if i.SoldAt != nil {
		t := *i.SoldAt
		out.SoldAt = &t
	}
	return out
}

// Receipt 成交回执
type Receipt struct {
	ID            string         `json:"receipt_id"`
	ItemID        uint64         `json:"item_id"`
	TokenContract common.Address `json:"token_contract"`
	TokenID       *big.Int       `json:"token_id"`
	Seller        common.Address `json:"seller"`
	Buyer         common.Address `json:"buyer"`
	FeeAccount    common.Address `json:"fee_account"`
	Price         *big.Int       `json:"price"`  // 卖家实收
	Fee           *big.Int       `json:"fee"`    // 手续费
	Excess        *big.Int       `json:"excess"` // 超付部分（归手续费账户）
	Paid          *big.Int       `json:"paid"`   // 买家实际支付
	SoldAt        time.Time      `json:"sold_at"`
}
