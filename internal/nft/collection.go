// Package nft 内存版 ERC-721 合约，实现 ports.TokenRegistry。
//
// 开发节点与测试使用；市场引擎只依赖 ports 接口，不依赖本包。
package nft

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/nftmarket/internal/domain"
	"github.com/betbot/nftmarket/internal/ports"
)

const (
	DefaultName   = "Sumit_NFT"
	DefaultSymbol = "SNFT"
)

var (
	ErrNotApproved   = fmt.Errorf("erc721: caller is not token owner or approved: %w", domain.ErrNotApproved)
	ErrNotTokenOwner = fmt.Errorf("erc721: transfer from incorrect owner: %w", domain.ErrNotTokenOwner)
	ErrTokenNotFound = fmt.Errorf("erc721: invalid token id: %w", domain.ErrInvalidInput)
	ErrZeroAddress   = fmt.Errorf("erc721: zero address: %w", domain.ErrInvalidInput)
	ErrApproveOwner  = fmt.Errorf("erc721: approval to current owner: %w", domain.ErrInvalidInput)
)

// Collection 单个 NFT 合约
type Collection struct {
	mu sync.RWMutex

	address common.Address
	name    string
	symbol  string

	counter   uint64 // 最近一次铸造的 tokenID（从 1 开始）
	owners    map[uint64]common.Address
	uris      map[uint64]string
	balances  map[common.Address]uint64
	approved  map[uint64]common.Address
	operators map[common.Address]map[common.Address]bool
}

var _ ports.TokenRegistry = (*Collection)(nil)

// NewCollection 创建合约；name/symbol 为空时使用默认值
func NewCollection(address common.Address, name, symbol string) *Collection {
	if name == "" {
		name = DefaultName
	}
	if symbol == "" {
		symbol = DefaultSymbol
	}
	return &Collection{
		address:   address,
		name:      name,
		symbol:    symbol,
		owners:    make(map[uint64]common.Address),
		uris:      make(map[uint64]string),
		balances:  make(map[common.Address]uint64),
		approved:  make(map[uint64]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
	}
}

func (c *Collection) Address() common.Address { return c.address }
func (c *Collection) Name() string            { return c.name }
func (c *Collection) Symbol() string          { return c.symbol }

// Mint 铸造新 token 给 owner，返回 tokenID（= 铸造后的计数器）
func (c *Collection) Mint(_ context.Context, owner common.Address, uri string) (*big.Int, error) {
	if owner == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter++
	id := c.counter
	c.owners[id] = owner
	c.uris[id] = uri
	c.balances[owner]++
	return new(big.Int).SetUint64(id), nil
}

// TokenCounter 最近一次铸造的 tokenID
func (c *Collection) TokenCounter(_ context.Context) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return new(big.Int).SetUint64(c.counter)
}

// OwnerOf 查询 owner
func (c *Collection) OwnerOf(_ context.Context, tokenID *big.Int) (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, owner, err := c.lookup(tokenID)
	return owner, err
}

// TokenURI 元数据 URI
func (c *Collection) TokenURI(tokenID *big.Int) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, _, err := c.lookup(tokenID)
	if err != nil {
		return "", err
	}
	return c.uris[id], nil
}

// BalanceOf 持有数量
func (c *Collection) BalanceOf(owner common.Address) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balances[owner]
}

// Approve 授权单个 token；caller 必须是 owner 或其全局授权的 operator
func (c *Collection) Approve(caller, to common.Address, tokenID *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, owner, err := c.lookup(tokenID)
	if err != nil {
		return err
	}
	if to == owner {
		return ErrApproveOwner
	}
	if caller != owner && !c.operators[owner][caller] {
		return ErrNotApproved
	}
	c.approved[id] = to
	return nil
}

// GetApproved 单个 token 的授权地址
func (c *Collection) GetApproved(tokenID *big.Int) (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, _, err := c.lookup(tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return c.approved[id], nil
}

// SetApprovalForAll owner 授权/撤销 operator 管理其全部 token
func (c *Collection) SetApprovalForAll(owner, operator common.Address, approved bool) error {
	if owner == operator {
		return fmt.Errorf("erc721: approve to caller: %w", domain.ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.operators[owner]
	if !ok {
		m = make(map[common.Address]bool)
		c.operators[owner] = m
	}
	if approved {
		m[operator] = true
	} else {
		delete(m, operator)
	}
	return nil
}

// IsApprovedForAll operator 是否被 owner 全局授权
func (c *Collection) IsApprovedForAll(_ context.Context, owner, operator common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.operators[owner][operator]
}

// TransferFrom operator 代 from 转出 tokenID。先校验授权，再校验 from 是否为 owner。
func (c *Collection) TransferFrom(_ context.Context, operator, from, to common.Address, tokenID *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	id, owner, err := c.lookup(tokenID)
	if err != nil {
		return err
	}
	if operator != owner && c.approved[id] != operator && !c.operators[owner][operator] {
		return ErrNotApproved
	}
	if owner != from {
		return ErrNotTokenOwner
	}

	delete(c.approved, id)
	c.balances[from]--
	if c.balances[from] == 0 {
		delete(c.balances, from)
	}
	c.balances[to]++
	c.owners[id] = to
	return nil
}

func (c *Collection) lookup(tokenID *big.Int) (uint64, common.Address, error) {
	if tokenID == nil || !tokenID.IsUint64() {
		return 0, common.Address{}, ErrTokenNotFound
	}
	id := tokenID.Uint64()
	owner, ok := c.owners[id]
	if !ok {
		return 0, common.Address{}, ErrTokenNotFound
	}
	return id, owner, nil
}
