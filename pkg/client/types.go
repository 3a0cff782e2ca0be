package client

import (
	"time"

	"github.com/betbot/nftmarket/internal/events"
)

// Event 市场事件，与 /api/events 及 websocket 推送的 JSON 一致
type Event = events.Envelope

// EventType 事件类型
type EventType = events.Type

type (
	OfferedEvent = events.OfferedEvent
	SoldEvent    = events.SoldEvent
)

const (
	EventOffered = events.TypeOffered
	EventSold    = events.TypeSold
)

// MarketInfo /api/market
type MarketInfo struct {
	Address    string `json:"address"`
	FeePercent uint64 `json:"fee_percent"`
	FeeAccount string `json:"fee_account"`
	ItemCount  uint64 `json:"item_count"`
}

// Item 挂单（金额为 wei 十进制字符串）
type Item struct {
	ItemID        uint64     `json:"item_id"`
	TokenContract string     `json:"token_contract"`
	TokenID       string     `json:"token_id"`
	Price         string     `json:"price"`
	PriceEth      string     `json:"price_eth"`
	Seller        string     `json:"seller"`
	Sold          bool       `json:"sold"`
	Buyer         string     `json:"buyer,omitempty"`
	ListedAt      time.Time  `json:"listed_at"`
	SoldAt        *time.Time `json:"sold_at,omitempty"`
}

// Receipt 成交回执
type Receipt struct {
	ReceiptID     string    `json:"receipt_id"`
	ItemID        uint64    `json:"item_id"`
	TokenContract string    `json:"token_contract"`
	TokenID       string    `json:"token_id"`
	Seller        string    `json:"seller"`
	Buyer         string    `json:"buyer"`
	FeeAccount    string    `json:"fee_account"`
	Price         string    `json:"price"`
	Fee           string    `json:"fee"`
	Excess        string    `json:"excess"`
	Paid          string    `json:"paid"`
	PaidEth       string    `json:"paid_eth"`
	SoldAt        time.Time `json:"sold_at"`
}

// Amount wei + ether 表示
type Amount struct {
	Wei string `json:"wei"`
	Eth string `json:"eth"`
}

// Token NFT 归属
type Token struct {
	TokenContract string `json:"token_contract"`
	TokenID       string `json:"token_id"`
	Owner         string `json:"owner"`
	URI           string `json:"uri"`
	Approved      string `json:"approved,omitempty"`
}
