// Package fee 手续费策略：把挂单价格换算成买家应付总额与分账金额。
//
// 纯整数运算（wei），手续费向下取整：卖家所得 + 手续费 永远不超过买家支付。
package fee

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxPercent 手续费比例上限
const MaxPercent = 100

var hundred = big.NewInt(100)

// Policy 手续费配置，构造后不可变，可并发读取
type Policy struct {
	percent *big.Int
	account common.Address
}

// Split 一笔成交的分账结果
type Split struct {
	Seller *big.Int // 卖家所得（= 挂单价）
	Fee    *big.Int // 手续费
	Excess *big.Int // 超付部分
}

// NewPolicy 创建手续费策略
func NewPolicy(percent uint64, account common.Address) (*Policy, error) {
	if percent > MaxPercent {
		return nil, fmt.Errorf("fee percent must be <= %d, got %d", MaxPercent, percent)
	}
	if account == (common.Address{}) {
		return nil, fmt.Errorf("fee account is required")
	}
	return &Policy{
		percent: new(big.Int).SetUint64(percent),
		account: account,
	}, nil
}

// MustPolicy 同 NewPolicy，出错时 panic（测试/常量配置用）
func MustPolicy(percent uint64, account common.Address) *Policy {
	p, err := NewPolicy(percent, account)
	if err != nil {
		panic(err)
	}
	return p
}

// Percent 手续费比例（整数百分比）
func (p *Policy) Percent() uint64 {
	return p.percent.Uint64()
}

// Account 手续费收款账户
func (p *Policy) Account() common.Address {
	return p.account
}

// Fee price * percent / 100，截断取整
func (p *Policy) Fee(price *big.Int) *big.Int {
	if price == nil || price.Sign() <= 0 {
		return new(big.Int)
	}
	f := new(big.Int).Mul(price, p.percent)
	return f.Quo(f, hundred)
}

// TotalPayable price + Fee(price)
func (p *Policy) TotalPayable(price *big.Int) *big.Int {
	if price == nil {
		return new(big.Int)
	}
	return new(big.Int).Add(price, p.Fee(price))
}

// SellerPayout 卖家收到的正好是挂单价；手续费由买家额外承担
func (p *Policy) SellerPayout(price *big.Int) *big.Int {
	if price == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(price)
}

// Split 计算分账。paid 必须 >= TotalPayable(price)，否则返回 false。
func (p *Policy) Split(price, paid *big.Int) (Split, bool) {
	total := p.TotalPayable(price)
	if paid == nil || paid.Cmp(total) < 0 {
		return Split{}, false
	}
	return Split{
		Seller: p.SellerPayout(price),
		Fee:    p.Fee(price),
		Excess: new(big.Int).Sub(paid, total),
	}, true
}
