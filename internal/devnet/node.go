// Package devnet 本地开发节点：派生账户、部署 NFT 合约与市场、注资、导出地址、快照。
package devnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nftmarket/internal/ledger"
	"github.com/betbot/nftmarket/internal/metrics"
	"github.com/betbot/nftmarket/internal/nft"
	"github.com/betbot/nftmarket/pkg/persistence"
)

var log = logrus.WithField("component", "devnet")

// 部署顺序：先 NFT，后 Marketplace
const (
	nonceCollection = 0
	nonceMarket     = 1

	snapshotID = "devnet"
)

// Options 启动参数
type Options struct {
	Mnemonic         string
	Accounts         int
	InitialBalance   *big.Int
	CollectionName   string
	CollectionSymbol string
	ExportDir        string
	SnapshotDir      string
}

// Node 开发节点状态
type Node struct {
	Accounts      []Account
	Deployer      common.Address
	MarketAddress common.Address
	Bank          *ledger.Bank
	Collection    *nft.Collection
	Tokens        *nft.Directory

	snapshots *persistence.JSONFileService
}

// nodeState 快照内容，每个字段落一个文件
type nodeState struct {
	Balances    map[string]string `persistence:"balances"`
	Collections []nft.Snapshot    `persistence:"collections"`
}

// Bootstrap 启动节点。存在快照时恢复快照，否则给每个账户注入初始余额。
func Bootstrap(opts Options) (*Node, error) {
	accounts, err := DeriveAccounts(opts.Mnemonic, opts.Accounts)
	if err != nil {
		return nil, err
	}
	deployer := accounts[0].Address

	col := nft.NewCollection(ContractAddress(deployer, nonceCollection), opts.CollectionName, opts.CollectionSymbol)
	n := &Node{
		Accounts:      accounts,
		Deployer:      deployer,
		MarketAddress: ContractAddress(deployer, nonceMarket),
		Bank:          ledger.NewBank(),
		Collection:    col,
		Tokens:        nft.NewDirectory(col),
	}
	if opts.SnapshotDir != "" {
		n.snapshots = persistence.NewJSONFileService(opts.SnapshotDir)
	}

	restored, err := n.LoadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if !restored {
		if err := n.fund(opts.InitialBalance); err != nil {
			return nil, err
		}
	}

	if opts.ExportDir != "" {
		if err := n.ExportAddresses(opts.ExportDir); err != nil {
			return nil, fmt.Errorf("export addresses: %w", err)
		}
	}

	log.Infof("开发节点已就绪: deployer=%s nft=%s market=%s accounts=%d restored=%v",
		deployer.Hex(), col.Address().Hex(), n.MarketAddress.Hex(), len(accounts), restored)
	return n, nil
}

func (n *Node) fund(amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	for _, a := range n.Accounts {
		if err := n.Bank.Deposit(a.Address, amount); err != nil {
			return fmt.Errorf("fund %s: %w", a.Address.Hex(), err)
		}
	}
	return nil
}

// ExportAddresses 写出前端使用的 <Name>-address.json
func (n *Node) ExportAddresses(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := map[string]common.Address{
		"NFT":            n.Collection.Address(),
		"NFTMarketPlace": n.MarketAddress,
	}
	for name, addr := range files {
		b, err := json.MarshalIndent(map[string]string{"address": addr.Hex()}, "", "  ")
		if err != nil {
			return err
		}
		path := filepath.Join(dir, name+"-address.json")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return err
		}
		log.Debugf("已导出合约地址: %s", path)
	}
	return nil
}

// SaveSnapshot 保存余额与 NFT 状态；未配置快照目录时什么都不做
func (n *Node) SaveSnapshot() error {
	if n.snapshots == nil {
		return nil
	}
	state := nodeState{Balances: n.Bank.Snapshot()}
	for _, c := range n.Tokens.All() {
		state.Collections = append(state.Collections, c.Snapshot())
	}
	if err := persistence.SaveFields(&state, snapshotID, n.snapshots); err != nil {
		return err
	}
	metrics.SnapshotSaves.Inc()
	log.Infof("快照已保存: dir=%s accounts=%d collections=%d",
		n.snapshots.BaseDir(), len(state.Balances), len(state.Collections))
	return nil
}

// LoadSnapshot 恢复快照，返回是否恢复了余额
func (n *Node) LoadSnapshot() (bool, error) {
	if n.snapshots == nil {
		return false, nil
	}
	var state nodeState
	loaded, err := persistence.LoadFields(&state, snapshotID, n.snapshots)
	if err != nil || loaded == 0 {
		return false, err
	}

	for _, snap := range state.Collections {
		col, err := n.Tokens.Collection(snap.Address)
		if err != nil {
			return false, fmt.Errorf("snapshot references %w", err)
		}
		if err := col.Restore(snap); err != nil {
			return false, err
		}
	}
	if state.Balances == nil {
		return false, nil
	}
	if err := n.Bank.Restore(state.Balances); err != nil {
		return false, err
	}
	metrics.SnapshotLoads.Inc()
	return true, nil
}

// Signer 按序号取账户
func (n *Node) Signer(i int) (Account, error) {
	if i < 0 || i >= len(n.Accounts) {
		return Account{}, errors.New("signer index out of range")
	}
	return n.Accounts[i], nil
}
