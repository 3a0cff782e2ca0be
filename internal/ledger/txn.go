package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// txKey 按 Bank 区分事务，避免两个账本共用 ctx 时串线
type txKey struct{ bank *Bank }

// txn 未提交的余额变更。
//
// 事务内的转账只记入 delta，根事务返回前在 b.mu 下一次性落账；
// 子事务成功时并入父事务，失败时整体丢弃。事务 ctx 不可跨 goroutine 使用。
type txn struct {
	parent      *txn
	delta       map[common.Address]*big.Int
	onRollback  []func()
	afterCommit []func()
}

func newTxn(parent *txn) *txn {
	return &txn{parent: parent, delta: make(map[common.Address]*big.Int)}
}

func (b *Bank) txFrom(ctx context.Context) *txn {
	tx, _ := ctx.Value(txKey{b}).(*txn)
	return tx
}

// pending addr 在整条事务链上的未提交变更
func (tx *txn) pending(addr common.Address) *big.Int {
	sum := new(big.Int)
	for t := tx; t != nil; t = t.parent {
		if d, ok := t.delta[addr]; ok {
			sum.Add(sum, d)
		}
	}
	return sum
}

func (tx *txn) add(addr common.Address, amount *big.Int) {
	d, ok := tx.delta[addr]
	if !ok {
		d = new(big.Int)
		tx.delta[addr] = d
	}
	d.Add(d, amount)
}

func (tx *txn) merge(child *txn) {
	for addr, d := range child.delta {
		tx.add(addr, d)
	}
	tx.onRollback = append(tx.onRollback, child.onRollback...)
	tx.afterCommit = append(tx.afterCommit, child.afterCommit...)
}

func (tx *txn) rollback() {
	for i := len(tx.onRollback) - 1; i >= 0; i-- {
		tx.onRollback[i]()
	}
}

// Atomic 在一个余额事务中执行 fn。
//
// fn 内用传入的 ctx 发起的转账（包括收款回调里再转出的）同属本事务：
// fn 返回错误时全部丢弃并按注册的逆序执行 OnRollback；成功时根事务一次性落账，
// 随后在提交锁内按注册顺序执行 AfterCommit。已在事务中时嵌套为子事务。
func (b *Bank) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	parent := b.txFrom(ctx)
	tx := newTxn(parent)
	if err := fn(context.WithValue(ctx, txKey{b}, tx)); err != nil {
		tx.rollback()
		return err
	}
	if parent != nil {
		parent.merge(tx)
		return nil
	}

	b.commitMu.Lock()
	defer b.commitMu.Unlock()
	if err := b.commit(tx); err != nil {
		tx.rollback()
		return err
	}
	for _, f := range tx.afterCommit {
		f()
	}
	return nil
}

// OnRollback 登记事务回滚时的补偿动作；ctx 不在事务中时忽略
func (b *Bank) OnRollback(ctx context.Context, fn func()) {
	if tx := b.txFrom(ctx); tx != nil {
		tx.onRollback = append(tx.onRollback, fn)
	}
}

// AfterCommit 登记根事务落账后的动作；ctx 不在事务中时立即执行。
// 回调在提交锁内运行，不能再开启新的根事务。
func (b *Bank) AfterCommit(ctx context.Context, fn func()) {
	tx := b.txFrom(ctx)
	if tx == nil {
		fn()
		return
	}
	tx.afterCommit = append(tx.afterCommit, fn)
}

// move 事务内记一笔 from -> to，按“已提交余额 + 未提交变更”校验余额
func (b *Bank) move(tx *txn, from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	avail := new(big.Int).Add(b.balanceLocked(from), tx.pending(from))
	b.mu.Unlock()

	if avail.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s from %s: %w", amount, from.Hex(), ErrInsufficientFunds)
	}
	tx.add(from, new(big.Int).Neg(amount))
	tx.add(to, amount)
	return nil
}

// commit 根事务落账；期间已提交余额被别的事务花掉时整体拒绝
func (b *Bank) commit(tx *txn) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for addr, d := range tx.delta {
		if d.Sign() < 0 && new(big.Int).Add(b.balanceLocked(addr), d).Sign() < 0 {
			return fmt.Errorf("commit %s: %w", addr.Hex(), ErrInsufficientFunds)
		}
	}
	for addr, d := range tx.delta {
		if d.Sign() != 0 {
			b.credit(addr, d)
		}
	}
	return nil
}
