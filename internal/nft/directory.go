package nft

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/nftmarket/internal/domain"
	"github.com/betbot/nftmarket/internal/ports"
)

// Directory 合约地址 -> Collection
type Directory struct {
	mu          sync.RWMutex
	collections map[common.Address]*Collection
}

var _ ports.TokenDirectory = (*Directory)(nil)

func NewDirectory(cols ...*Collection) *Directory {
	d := &Directory{collections: make(map[common.Address]*Collection)}
	for _, c := range cols {
		d.Register(c)
	}
	return d
}

// Register 注册合约（同地址覆盖）
func (d *Directory) Register(c *Collection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.collections[c.Address()] = c
}

// Collection 返回具体合约，供开发节点的铸造/授权接口使用
func (d *Directory) Collection(contract common.Address) (*Collection, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.collections[contract]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", contract.Hex(), domain.ErrUnknownCollection)
	}
	return c, nil
}

// Lookup 实现 ports.TokenDirectory
func (d *Directory) Lookup(contract common.Address) (ports.TokenRegistry, error) {
	c, err := d.Collection(contract)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// All 按地址排序返回全部合约
func (d *Directory) All() []*Collection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Collection, 0, len(d.collections))
	for _, c := range d.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address().Hex() < out[j].Address().Hex()
	})
	return out
}
