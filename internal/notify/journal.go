package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/betbot/nftmarket/internal/events"
	"github.com/betbot/nftmarket/pkg/kvstore"
)

// DefaultPageSize Since 未指定 limit 时的默认页大小
const DefaultPageSize = 100

// Journal 事件日志：按 Seq 追加，按游标回放
type Journal interface {
	// Append 写入事件；evt.Seq 必须等于 Last()+1
	Append(ctx context.Context, evt events.Envelope) error
	// Since 返回 Seq > seq 的事件（升序，最多 limit 条）
	Since(ctx context.Context, seq uint64, limit int) ([]events.Envelope, error)
	// Last 最新的 Seq，空日志为 0
	Last(ctx context.Context) (uint64, error)
	Close() error
}

// MemoryJournal 内存日志
type MemoryJournal struct {
	mu   sync.RWMutex
	evts []events.Envelope
}

var _ Journal = (*MemoryJournal)(nil)

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Append(_ context.Context, evt events.Envelope) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if want := uint64(len(j.evts)) + 1; evt.Seq != want {
		return fmt.Errorf("journal: seq %d out of order, want %d", evt.Seq, want)
	}
	j.evts = append(j.evts, evt)
	return nil
}

func (j *MemoryJournal) Since(_ context.Context, seq uint64, limit int) ([]events.Envelope, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if seq >= uint64(len(j.evts)) {
		return nil, nil
	}
	end := seq + uint64(limit)
	if end > uint64(len(j.evts)) {
		end = uint64(len(j.evts))
	}
	out := make([]events.Envelope, end-seq)
	copy(out, j.evts[seq:end])
	return out, nil
}

func (j *MemoryJournal) Last(_ context.Context) (uint64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return uint64(len(j.evts)), nil
}

func (j *MemoryJournal) Close() error { return nil }

var (
	journalLastKey = []byte("events/last")
	journalPrefix  = "events/seq/"
)

// BadgerJournal 持久化日志，与登记簿可共用一个 Badger 实例
type BadgerJournal struct {
	kv    *kvstore.Store
	owned bool
}

var _ Journal = (*BadgerJournal)(nil)

// NewBadgerJournal 复用已打开的 kvstore（不负责关闭）
func NewBadgerJournal(kv *kvstore.Store) *BadgerJournal {
	return &BadgerJournal{kv: kv}
}

// OpenBadgerJournal 打开独立目录
func OpenBadgerJournal(opts kvstore.OpenOptions) (*BadgerJournal, error) {
	kv, err := kvstore.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerJournal{kv: kv, owned: true}, nil
}

func (j *BadgerJournal) Append(_ context.Context, evt events.Envelope) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return j.kv.Update(func(txn *badger.Txn) error {
		last, err := kvstore.TxnGetUint64(txn, journalLastKey)
		if err != nil {
			return err
		}
		if evt.Seq != last+1 {
			return fmt.Errorf("journal: seq %d out of order, want %d", evt.Seq, last+1)
		}
		if err := txn.Set(kvstore.SeqKey(journalPrefix, evt.Seq), b); err != nil {
			return err
		}
		return kvstore.TxnSetUint64(txn, journalLastKey, evt.Seq)
	})
}

func (j *BadgerJournal) Since(_ context.Context, seq uint64, limit int) ([]events.Envelope, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	var out []events.Envelope
	err := j.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(journalPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(kvstore.SeqKey(journalPrefix, seq+1)); it.ValidForPrefix(opts.Prefix); it.Next() {
			var evt events.Envelope
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &evt)
			}); err != nil {
				return err
			}
			out = append(out, evt)
			if len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (j *BadgerJournal) Last(_ context.Context) (uint64, error) {
	var last uint64
	err := j.kv.View(func(txn *badger.Txn) error {
		var e error
		last, e = kvstore.TxnGetUint64(txn, journalLastKey)
		return e
	})
	return last, err
}

func (j *BadgerJournal) Close() error {
	if j.owned {
		return j.kv.Close()
	}
	return nil
}
