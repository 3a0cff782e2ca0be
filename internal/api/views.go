package api

import (
	"math/big"
	"time"

	"github.com/betbot/nftmarket/internal/domain"
	"github.com/betbot/nftmarket/pkg/units"
)

// 金额一律用 wei 十进制字符串，附带 ether 表示，避免 JSON number 精度丢失

type itemView struct {
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

func newItemView(it domain.Item) itemView {
	v := itemView{
		ItemID:        it.ID,
		TokenContract: it.TokenContract.Hex(),
		TokenID:       bigStr(it.TokenID),
		Price:         bigStr(it.Price),
		PriceEth:      units.FormatEther(it.Price),
		Seller:        it.Seller.Hex(),
		Sold:          it.Sold,
		ListedAt:      it.ListedAt,
		SoldAt:        it.SoldAt,
	}
	if it.Sold {
		v.Buyer = it.Buyer.Hex()
	}
	return v
}

type receiptView struct {
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

func newReceiptView(r domain.Receipt) receiptView {
	return receiptView{
		ReceiptID:     r.ID,
		ItemID:        r.ItemID,
		TokenContract: r.TokenContract.Hex(),
		TokenID:       bigStr(r.TokenID),
		Seller:        r.Seller.Hex(),
		Buyer:         r.Buyer.Hex(),
		FeeAccount:    r.FeeAccount.Hex(),
		Price:         bigStr(r.Price),
		Fee:           bigStr(r.Fee),
		Excess:        bigStr(r.Excess),
		Paid:          bigStr(r.Paid),
		PaidEth:       units.FormatEther(r.Paid),
		SoldAt:        r.SoldAt,
	}
}

type amountView struct {
	Wei string `json:"wei"`
	Eth string `json:"eth"`
}

func newAmountView(v *big.Int) amountView {
	return amountView{Wei: bigStr(v), Eth: units.FormatEther(v)}
}

func bigStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
