package devnet

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hardhatMnemonic = "test test test test test test test test test test test junk"

func TestDeriveAccounts_HardhatDefaults(t *testing.T) {
	accts, err := DeriveAccounts(hardhatMnemonic, 3)
	require.NoError(t, err)
	require.Len(t, accts, 3)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), accts[0].Address)
	assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), accts[1].Address)
	assert.Equal(t, common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"), accts[2].Address)
	assert.Equal(t, "m/44'/60'/0'/0/2", accts[2].Path)

	_, err = DeriveAccounts("", 1)
	assert.Error(t, err)
	_, err = DeriveAccounts(hardhatMnemonic, 0)
	assert.Error(t, err)
}

func TestContractAddress_DeployOrder(t *testing.T) {
	deployer := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), ContractAddress(deployer, 0))
	assert.Equal(t, common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"), ContractAddress(deployer, 1))
}

func TestBootstrap_FundsAndExports(t *testing.T) {
	exportDir := t.TempDir()
	n, err := Bootstrap(Options{
		Mnemonic:       hardhatMnemonic,
		Accounts:       2,
		InitialBalance: big.NewInt(1000),
		ExportDir:      exportDir,
	})
	require.NoError(t, err)

	assert.Equal(t, "Sumit_NFT", n.Collection.Name())
	assert.Equal(t, int64(1000), n.Bank.BalanceOf(n.Deployer).Int64())
	assert.Equal(t, int64(2000), n.Bank.Total().Int64())

	b, err := os.ReadFile(filepath.Join(exportDir, "NFTMarketPlace-address.json"))
	require.NoError(t, err)
	var out map[string]string
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, n.MarketAddress.Hex(), out["address"])

	_, err = os.Stat(filepath.Join(exportDir, "NFT-address.json"))
	assert.NoError(t, err)

	_, err = n.Signer(5)
	assert.Error(t, err)
}

func TestBootstrap_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := Options{
		Mnemonic:       hardhatMnemonic,
		Accounts:       2,
		InitialBalance: big.NewInt(500),
		SnapshotDir:    dir,
	}

	n, err := Bootstrap(opts)
	require.NoError(t, err)
	seller := n.Accounts[1].Address
	_, err = n.Collection.Mint(ctx, seller, "ipfs://a")
	require.NoError(t, err)
	require.NoError(t, n.Bank.Transfer(ctx, seller, n.Deployer, big.NewInt(200)))
	require.NoError(t, n.SaveSnapshot())

	restored, err := Bootstrap(opts)
	require.NoError(t, err)
	assert.Equal(t, int64(300), restored.Bank.BalanceOf(seller).Int64(), "snapshot wins over initial funding")
	assert.Equal(t, int64(700), restored.Bank.BalanceOf(restored.Deployer).Int64())
	owner, err := restored.Collection.OwnerOf(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, seller, owner)
}
