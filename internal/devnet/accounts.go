package devnet

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// Account 由助记词派生的开发账户
type Account struct {
	Index   int            `json:"index"`
	Path    string         `json:"path"`
	Address common.Address `json:"address"`
}

// DerivationPath BIP-44 以太坊路径 m/44'/60'/0'/0/i
func DerivationPath(i int) string {
	return fmt.Sprintf("m/44'/60'/0'/0/%d", i)
}

// DeriveAccounts 派生前 n 个账户
func DeriveAccounts(mnemonic string, n int) ([]Account, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return nil, fmt.Errorf("mnemonic is required")
	}
	if n < 1 {
		return nil, fmt.Errorf("account count must be >= 1, got %d", n)
	}
	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}

	out := make([]Account, 0, n)
	for i := 0; i < n; i++ {
		p := DerivationPath(i)
		path, err := hdwallet.ParseDerivationPath(p)
		if err != nil {
			return nil, fmt.Errorf("invalid derivation path %s: %w", p, err)
		}
		acct, err := w.Derive(path, false)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", p, err)
		}
		out = append(out, Account{Index: i, Path: p, Address: acct.Address})
	}
	return out, nil
}

// ContractAddress 部署者第 nonce 笔交易创建的合约地址
func ContractAddress(deployer common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(deployer, nonce)
}
