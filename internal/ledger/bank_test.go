package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	carol = common.HexToAddress("0x9965507D1a55bcC2695C58ba16FB37d819B0A4dc")
)

func TestBank_Transfer(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Deposit(alice, big.NewInt(100)))

	require.NoError(t, b.Transfer(ctx, alice, bob, big.NewInt(30)))
	assert.Equal(t, int64(70), b.BalanceOf(alice).Int64())
	assert.Equal(t, int64(30), b.BalanceOf(bob).Int64())

	err := b.Transfer(ctx, bob, alice, big.NewInt(31))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(30), b.BalanceOf(bob).Int64())

	assert.ErrorIs(t, b.Transfer(ctx, alice, bob, big.NewInt(-1)), ErrInvalidAmount)
	assert.ErrorIs(t, b.Transfer(ctx, alice, bob, nil), ErrInvalidAmount)
	assert.NoError(t, b.Transfer(ctx, bob, alice, new(big.Int)))
	assert.Equal(t, int64(100), b.Total().Int64())
}

func TestBank_BalanceIsCopy(t *testing.T) {
	b := NewBank()
	require.NoError(t, b.Deposit(alice, big.NewInt(5)))
	v := b.BalanceOf(alice)
	v.SetInt64(1000)
	assert.Equal(t, int64(5), b.BalanceOf(alice).Int64())
}

func TestBank_HookRejectReverts(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Deposit(alice, big.NewInt(10)))

	rejected := errors.New("no thanks")
	var seen *big.Int
	b.OnReceive(bob, func(_ context.Context, from common.Address, amount *big.Int) error {
		seen = amount
		assert.Equal(t, alice, from)
		return rejected
	})

	err := b.Transfer(ctx, alice, bob, big.NewInt(4))
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, int64(4), seen.Int64())
	assert.Equal(t, int64(10), b.BalanceOf(alice).Int64())
	assert.Equal(t, int64(0), b.BalanceOf(bob).Int64())

	b.OnReceive(bob, nil)
	require.NoError(t, b.Transfer(ctx, alice, bob, big.NewInt(4)))
	assert.Equal(t, int64(4), b.BalanceOf(bob).Int64())
}

func TestBank_HookMayReenter(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Deposit(alice, big.NewInt(10)))

	b.OnReceive(bob, func(ctx context.Context, _ common.Address, amount *big.Int) error {
		return b.Transfer(ctx, bob, alice, big.NewInt(1))
	})
	require.NoError(t, b.Transfer(ctx, alice, bob, big.NewInt(5)))
	assert.Equal(t, int64(6), b.BalanceOf(alice).Int64())
	assert.Equal(t, int64(4), b.BalanceOf(bob).Int64())
}

func TestBank_RejectRevertsFundsForwardedByHook(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Deposit(alice, big.NewInt(10)))

	// bob 收到后立即转给 carol，然后拒收
	rejected := errors.New("no thanks")
	b.OnReceive(bob, func(ctx context.Context, _ common.Address, amount *big.Int) error {
		if err := b.Transfer(ctx, bob, carol, amount); err != nil {
			return err
		}
		return rejected
	})

	err := b.Transfer(ctx, alice, bob, big.NewInt(4))
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, int64(10), b.BalanceOf(alice).Int64())
	assert.Equal(t, int64(0), b.BalanceOf(bob).Int64())
	assert.Equal(t, int64(0), b.BalanceOf(carol).Int64())
}

func TestBank_AtomicAllOrNothing(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Deposit(alice, big.NewInt(10)))

	rejected := errors.New("carol refuses")
	b.OnReceive(carol, func(context.Context, common.Address, *big.Int) error { return rejected })

	var undone []string
	committed := false
	err := b.Atomic(ctx, func(ctx context.Context) error {
		require.NoError(t, b.Transfer(ctx, alice, bob, big.NewInt(6)))
		b.OnRollback(ctx, func() { undone = append(undone, "first") })
		b.OnRollback(ctx, func() { undone = append(undone, "second") })
		b.AfterCommit(ctx, func() { committed = true })

		// 未提交前外部只看到旧余额
		assert.Equal(t, int64(0), b.BalanceOf(bob).Int64())
		return b.Transfer(ctx, bob, carol, big.NewInt(6))
	})
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, []string{"second", "first"}, undone)
	assert.False(t, committed)
	assert.Equal(t, int64(10), b.BalanceOf(alice).Int64())
	assert.Equal(t, int64(0), b.BalanceOf(bob).Int64())

	b.OnReceive(carol, nil)
	err = b.Atomic(ctx, func(ctx context.Context) error {
		if err := b.Transfer(ctx, alice, bob, big.NewInt(6)); err != nil {
			return err
		}
		b.AfterCommit(ctx, func() { committed = true })
		return b.Transfer(ctx, bob, carol, big.NewInt(2))
	})
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, int64(4), b.BalanceOf(alice).Int64())
	assert.Equal(t, int64(4), b.BalanceOf(bob).Int64())
	assert.Equal(t, int64(2), b.BalanceOf(carol).Int64())
}

func TestBank_NestedFailureKeepsOuter(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Deposit(alice, big.NewInt(10)))

	err := b.Atomic(ctx, func(ctx context.Context) error {
		require.NoError(t, b.Transfer(ctx, alice, bob, big.NewInt(3)))
		inner := b.Atomic(ctx, func(ctx context.Context) error {
			require.NoError(t, b.Transfer(ctx, alice, carol, big.NewInt(3)))
			return errors.New("inner fails")
		})
		assert.Error(t, inner)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.BalanceOf(alice).Int64())
	assert.Equal(t, int64(3), b.BalanceOf(bob).Int64())
	assert.Equal(t, int64(0), b.BalanceOf(carol).Int64())
}

func TestBank_CommitConflictRejected(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Deposit(alice, big.NewInt(10)))

	rolledBack := false
	err := b.Atomic(ctx, func(ctx context.Context) error {
		b.OnRollback(ctx, func() { rolledBack = true })
		if err := b.Transfer(ctx, alice, bob, big.NewInt(8)); err != nil {
			return err
		}
		// 事务外的转账先落账，花掉了 alice 的钱
		return b.Transfer(context.Background(), alice, carol, big.NewInt(5))
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, rolledBack)
	assert.Equal(t, int64(5), b.BalanceOf(alice).Int64())
	assert.Equal(t, int64(0), b.BalanceOf(bob).Int64())
	assert.Equal(t, int64(5), b.BalanceOf(carol).Int64())
	assert.Equal(t, int64(10), b.Total().Int64())
}

func TestBank_AfterCommitOutsideTxnRunsNow(t *testing.T) {
	b := NewBank()
	ran := false
	b.AfterCommit(context.Background(), func() { ran = true })
	b.OnRollback(context.Background(), func() { t.Fatal("no transaction to roll back") })
	assert.True(t, ran)
}

func TestBank_SnapshotRestore(t *testing.T) {
	b := NewBank()
	require.NoError(t, b.Deposit(alice, big.NewInt(7)))
	require.NoError(t, b.Deposit(bob, new(big.Int)))

	snap := b.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, "7", snap[alice.Hex()])

	r := NewBank()
	require.NoError(t, r.Restore(snap))
	assert.Equal(t, int64(7), r.BalanceOf(alice).Int64())

	assert.Error(t, r.Restore(map[string]string{"nope": "1"}))
	assert.ErrorIs(t, r.Restore(map[string]string{alice.Hex(): "-3"}), ErrInvalidAmount)
}
