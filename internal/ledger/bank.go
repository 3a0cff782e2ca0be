// Package ledger 原生币余额账本（开发节点的支付通道）。
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nftmarket/internal/ports"
)

var log = logrus.WithField("component", "ledger")

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidAmount     = errors.New("ledger: invalid amount")
)

// ReceiveHook 收款回调（对应合约的 receive/fallback）。
// 在本次转账的事务内、锁外调用：回调内要转出刚收到的钱必须使用传入的 ctx；
// BalanceOf 只反映已提交余额。返回错误则本次转账连同回调内的转账一起回滚。
type ReceiveHook func(ctx context.Context, from common.Address, amount *big.Int) error

// Bank 余额账本，goroutine 安全
type Bank struct {
	commitMu sync.Mutex // 串行化根事务的落账与提交后回调
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	hooks    map[common.Address]ReceiveHook
}

var _ ports.Bank = (*Bank)(nil)

func NewBank() *Bank {
	return &Bank{
		balances: make(map[common.Address]*big.Int),
		hooks:    make(map[common.Address]ReceiveHook),
	}
}

// BalanceOf 返回余额副本
func (b *Bank) BalanceOf(addr common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.balances[addr]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Deposit 凭空增发到 addr（faucet / 创世资金）
func (b *Bank) Deposit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(addr, amount)
	return nil
}

// OnReceive 注册收款回调；hook 为 nil 时移除
func (b *Bank) OnReceive(addr common.Address, hook ReceiveHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if hook == nil {
		delete(b.hooks, addr)
		return
	}
	b.hooks[addr] = hook
}

// Transfer from -> to。余额不足返回 ErrInsufficientFunds；收款回调失败则整笔回滚，
// 回调里用同一 ctx 发起的后续转账一并回滚。
func (b *Bank) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	return b.Atomic(ctx, func(ctx context.Context) error {
		if err := b.move(b.txFrom(ctx), from, to, amount); err != nil {
			return err
		}

		b.mu.Lock()
		hook := b.hooks[to]
		b.mu.Unlock()
		if hook == nil {
			return nil
		}
		if err := hook(ctx, from, amount); err != nil {
			log.WithFields(logrus.Fields{
				"from": from.Hex(), "to": to.Hex(), "amount": amount.String(),
			}).Warnf("receive hook rejected: %v", err)
			return fmt.Errorf("receive hook %s: %w", to.Hex(), err)
		}
		return nil
	})
}

// Total 全部余额之和
func (b *Bank) Total() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	sum := new(big.Int)
	for _, v := range b.balances {
		sum.Add(sum, v)
	}
	return sum
}

// Snapshot 已提交余额快照（wei 十进制字符串），零余额省略
func (b *Bank) Snapshot() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.balances))
	for addr, v := range b.balances {
		if v.Sign() == 0 {
			continue
		}
		out[addr.Hex()] = v.String()
	}
	return out
}

// Restore 用快照覆盖余额；回调注册不受影响
func (b *Bank) Restore(snap map[string]string) error {
	balances := make(map[common.Address]*big.Int, len(snap))
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !common.IsHexAddress(k) {
			return fmt.Errorf("restore: bad address %q", k)
		}
		v, ok := new(big.Int).SetString(snap[k], 10)
		if !ok || v.Sign() < 0 {
			return fmt.Errorf("restore %s: %w", k, ErrInvalidAmount)
		}
		balances[common.HexToAddress(k)] = v
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = balances
	return nil
}

func (b *Bank) balanceLocked(addr common.Address) *big.Int {
	if v, ok := b.balances[addr]; ok {
		return v
	}
	return new(big.Int)
}

func (b *Bank) credit(addr common.Address, amount *big.Int) {
	v, ok := b.balances[addr]
	if !ok {
		v = new(big.Int)
		b.balances[addr] = v
	}
	v.Add(v, amount)
}
