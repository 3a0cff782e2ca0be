package events

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Type 事件类型
type Type string

const (
	TypeOffered Type = "offered"
	TypeSold    Type = "sold"
)

// OfferedEvent 挂单事件
type OfferedEvent struct {
	ItemID        uint64         `json:"item_id"`
	TokenContract common.Address `json:"token_contract"`
	TokenID       *big.Int       `json:"token_id"`
	Price         *big.Int       `json:"price"`
	Seller        common.Address `json:"seller"`
}

// SoldEvent 成交事件
type SoldEvent struct {
	ItemID        uint64         `json:"item_id"`
	TokenContract common.Address `json:"token_contract"`
	TokenID       *big.Int       `json:"token_id"`
	Price         *big.Int       `json:"price"`
	Seller        common.Address `json:"seller"`
	Buyer         common.Address `json:"buyer"`
}

// Envelope 事件信封
// Seq 由总线分配：全局单调、无空洞、从 1 开始。Offered/Sold 二者恰有其一。
type Envelope struct {
	Seq     uint64        `json:"seq"`
	ID      string        `json:"id"`
	Type    Type          `json:"type"`
	At      time.Time     `json:"at"`
	Offered *OfferedEvent `json:"offered,omitempty"`
	Sold    *SoldEvent    `json:"sold,omitempty"`
}

// ItemID 返回事件关联的 item id
func (e Envelope) ItemID() uint64 {
	switch {
	case e.Offered != nil:
		return e.Offered.ItemID
	case e.Sold != nil:
		return e.Sold.ItemID
	}
	return 0
}

// NewOffered 构造挂单事件（Seq/ID 由总线填充）
func NewOffered(e OfferedEvent, at time.Time) Envelope {
	return Envelope{Type: TypeOffered, At: at, Offered: &e}
}

// NewSold 构造成交事件（Seq/ID 由总线填充）
func NewSold(e SoldEvent, at time.Time) Envelope {
	return Envelope{Type: TypeSold, At: at, Sold: &e}
}
