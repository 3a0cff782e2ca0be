package registry

import (
	"context"
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/nftmarket/internal/domain"
	"github.com/betbot/nftmarket/pkg/kvstore"
)

var (
	badgerCountKey   = []byte("items/count")
	badgerItemPrefix = "items/id/"
)

// BadgerStore 基于 Badger 的存储：计数器与记录在同一事务内写入
type BadgerStore struct {
	kv    *kvstore.Store
	owned bool
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore 复用已打开的 kvstore（不负责关闭）
func NewBadgerStore(kv *kvstore.Store) *BadgerStore {
	return &BadgerStore{kv: kv}
}

// OpenBadgerStore 打开独立的 Badger 目录
func OpenBadgerStore(opts kvstore.OpenOptions) (*BadgerStore, error) {
	kv, err := kvstore.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{kv: kv, owned: true}, nil
}

func itemKey(id uint64) []byte {
	return kvstore.SeqKey(badgerItemPrefix, id)
}

func (s *BadgerStore) Append(_ context.Context, item domain.Item) (domain.Item, error) {
	item = item.Clone()
	item.Sold = false
	err := s.kv.Update(func(txn *badger.Txn) error {
		n, err := kvstore.TxnGetUint64(txn, badgerCountKey)
		if err != nil {
			return err
		}
		item.ID = n + 1
		b, err := json.Marshal(toRecord(item))
		if err != nil {
			return err
		}
		if err := txn.Set(itemKey(item.ID), b); err != nil {
			return err
		}
		return kvstore.TxnSetUint64(txn, badgerCountKey, item.ID)
	})
	if err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

func (s *BadgerStore) Get(_ context.Context, id uint64) (domain.Item, error) {
	var item domain.Item
	err := s.kv.View(func(txn *badger.Txn) error {
		var e error
		item, e = loadItem(txn, id)
		return e
	})
	return item, err
}

func loadItem(txn *badger.Txn, id uint64) (domain.Item, error) {
	if id == 0 {
		return domain.Item{}, domain.ErrItemNotFound
	}
	b, ok, err := kvstore.TxnGet(txn, itemKey(id))
	if err != nil {
		return domain.Item{}, err
	}
	if !ok {
		return domain.Item{}, domain.ErrItemNotFound
	}
	var rec itemRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.Item{}, err
	}
	return rec.toItem()
}

func (s *BadgerStore) update(id uint64, fn func(item *domain.Item) error) error {
	return s.kv.Update(func(txn *badger.Txn) error {
		item, err := loadItem(txn, id)
		if err != nil {
			return err
		}
		if err := fn(&item); err != nil {
			return err
		}
		b, err := json.Marshal(toRecord(item))
		if err != nil {
			return err
		}
		return txn.Set(itemKey(id), b)
	})
}

func (s *BadgerStore) MarkSold(_ context.Context, id uint64, buyer common.Address, at time.Time) error {
	return s.update(id, func(item *domain.Item) error {
		if item.Sold {
			return domain.ErrItemAlreadySold
		}
		item.Sold = true
		item.Buyer = buyer
		item.SoldAt = &at
		return nil
	})
}

func (s *BadgerStore) RevertSold(_ context.Context, id uint64) error {
	return s.update(id, func(item *domain.Item) error {
		item.Sold = false
		item.Buyer = common.Address{}
		item.SoldAt = nil
		return nil
	})
}

func (s *BadgerStore) Count(_ context.Context) (uint64, error) {
	var n uint64
	err := s.kv.View(func(txn *badger.Txn) error {
		var e error
		n, e = kvstore.TxnGetUint64(txn, badgerCountKey)
		return e
	})
	return n, err
}

func (s *BadgerStore) Close() error {
	if s.owned {
		return s.kv.Close()
	}
	return nil
}
