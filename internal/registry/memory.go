package registry

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/nftmarket/internal/domain"
)

// MemoryStore 追加式数组：items[i] 对应 id=i+1，Count 为 O(1)
type MemoryStore struct {
	mu    sync.RWMutex
	items []domain.Item
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make([]domain.Item, 0, 64)}
}

func (s *MemoryStore) Append(_ context.Context, item domain.Item) (domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item = item.Clone()
	item.ID = uint64(len(s.items)) + 1
	s.items = append(s.items, item)
	return item.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id uint64) (domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == 0 || id > uint64(len(s.items)) {
		return domain.Item{}, domain.ErrItemNotFound
	}
	return s.items[id-1].Clone(), nil
}

func (s *MemoryStore) MarkSold(_ context.Context, id uint64, buyer common.Address, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == 0 || id > uint64(len(s.items)) {
		return domain.ErrItemNotFound
	}
	it := &s.items[id-1]
	if it.Sold {
		return domain.ErrItemAlreadySold
	}
	it.Sold = true
	it.Buyer = buyer
	it.SoldAt = &at
	return nil
}

func (s *MemoryStore) RevertSold(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == 0 || id > uint64(len(s.items)) {
		return domain.ErrItemNotFound
	}
	it := &s.items[id-1]
	it.Sold = false
	it.Buyer = common.Address{}
	it.SoldAt = nil
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.items)), nil
}

func (s *MemoryStore) Close() error { return nil }
