package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenRegistry 外部 NFT 合约（ERC-721 语义）
type TokenRegistry interface {
	// TransferFrom 由 operator 代为转移 tokenID：from 必须是当前 owner，
	// operator 必须是 owner 本人或已被授权。
	TransferFrom(ctx context.Context, operator, from, to common.Address, tokenID *big.Int) error
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) bool

	// 仅铸造流程使用，市场核心不依赖
	Mint(ctx context.Context, owner common.Address, uri string) (*big.Int, error)
	TokenCounter(ctx context.Context) *big.Int
}

// TokenDirectory 按合约地址查找 TokenRegistry
type TokenDirectory interface {
	Lookup(contract common.Address) (TokenRegistry, error)
}
