package nft

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// TokenState 单个 token 的持久化形态
type TokenState struct {
	ID       uint64         `json:"id"`
	Owner    common.Address `json:"owner"`
	URI      string         `json:"uri"`
	Approved common.Address `json:"approved,omitempty"`
}

// Snapshot 合约全量状态（JSON 可序列化）
type Snapshot struct {
	Address   common.Address                      `json:"address"`
	Name      string                              `json:"name"`
	Symbol    string                              `json:"symbol"`
	Counter   uint64                              `json:"counter"`
	Tokens    []TokenState                        `json:"tokens"`
	Operators map[common.Address][]common.Address `json:"operators,omitempty"`
}

// Snapshot 导出状态，tokens 按 id 升序
func (c *Collection) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Address: c.address,
		Name:    c.name,
		Symbol:  c.symbol,
		Counter: c.counter,
		Tokens:  make([]TokenState, 0, len(c.owners)),
	}
	for id, owner := range c.owners {
		s.Tokens = append(s.Tokens, TokenState{ID: id, Owner: owner, URI: c.uris[id], Approved: c.approved[id]})
	}
	sort.Slice(s.Tokens, func(i, j int) bool { return s.Tokens[i].ID < s.Tokens[j].ID })

	for owner, ops := range c.operators {
		for op, ok := range ops {
			if !ok {
				continue
			}
			if s.Operators == nil {
				s.Operators = make(map[common.Address][]common.Address)
			}
			s.Operators[owner] = append(s.Operators[owner], op)
		}
	}
	return s
}

// Restore 用快照覆盖当前状态；地址不一致时拒绝
func (c *Collection) Restore(s Snapshot) error {
	if s.Address != c.address {
		return fmt.Errorf("erc721: snapshot address %s does not match collection %s", s.Address.Hex(), c.address.Hex())
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter = s.Counter
	c.owners = make(map[uint64]common.Address, len(s.Tokens))
	c.uris = make(map[uint64]string, len(s.Tokens))
	c.balances = make(map[common.Address]uint64)
	c.approved = make(map[uint64]common.Address)
	c.operators = make(map[common.Address]map[common.Address]bool)
	if s.Name != "" {
		c.name = s.Name
	}
	if s.Symbol != "" {
		c.symbol = s.Symbol
	}

	for _, t := range s.Tokens {
		c.owners[t.ID] = t.Owner
		c.uris[t.ID] = t.URI
		c.balances[t.Owner]++
		if t.Approved != (common.Address{}) {
			c.approved[t.ID] = t.Approved
		}
		if t.ID > c.counter {
			c.counter = t.ID
		}
	}
	for owner, ops := range s.Operators {
		m := make(map[common.Address]bool, len(ops))
		for _, op := range ops {
			m[op] = true
		}
		c.operators[owner] = m
	}
	return nil
}
