package app

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/nftmarket/pkg/client"
	"github.com/betbot/nftmarket/pkg/config"
)

const (
	deployer = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	seller   = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	buyer    = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	nftAddr  = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	mktAddr  = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
)

func start(t *testing.T, cfg *config.Config) (*App, *client.Client) {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- a.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.Zero(t, a.Shutdown(ctx))
		assert.NoError(t, <-done)
	})
	c := client.New("http://"+ln.Addr().String(), client.WithRetry(0, 0))
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	return a, c
}

func trade(t *testing.T, c *client.Client) {
	t.Helper()
	ctx := context.Background()
	s := c.As(seller)
	tok, err := s.Mint(ctx, nftAddr, "ipfs://a")
	require.NoError(t, err)
	require.NoError(t, s.SetApprovalForAll(ctx, nftAddr, mktAddr, true))
	item, err := s.List(ctx, nftAddr, tok.TokenID, "0.01eth")
	require.NoError(t, err)
	_, err = c.As(buyer).Purchase(ctx, item.ItemID, "0.0101eth")
	require.NoError(t, err)
}

func TestAppDefaultsToHardhatLayout(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateLimit.Capacity = 0
	a, c := start(t, cfg)

	assert.Equal(t, mktAddr, a.Engine.Address().Hex())
	assert.Equal(t, deployer, a.Engine.FeeAccount().Hex())

	info, err := c.Market(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mktAddr, info.Address)

	trade(t, c)

	bal, err := c.Balance(context.Background(), deployer)
	require.NoError(t, err)
	assert.Equal(t, "10000000100000000000000", bal.Wei)
}

func TestAppSharedBadgerSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.RateLimit.Capacity = 0
	cfg.Store.Backend = "badger"
	cfg.Store.Path = filepath.Join(dir, "badger")
	cfg.Events.Journal = "badger"
	cfg.Devnet.SnapshotDir = filepath.Join(dir, "snapshots")

	a, err := New(cfg)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = a.Serve(ln) }()
	c := client.New("http://"+ln.Addr().String(), client.WithRetry(3, 20*time.Millisecond))
	trade(t, c)
	assert.Zero(t, a.Shutdown(context.Background()))

	_, c2 := start(t, cfg)
	ctx := context.Background()
	count, err := c2.ItemCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	item, err := c2.GetItem(ctx, 1)
	require.NoError(t, err)
	assert.True(t, item.Sold)

	tok, err := c2.Token(ctx, nftAddr, "1")
	require.NoError(t, err)
	assert.Equal(t, buyer, tok.Owner)

	page, err := c2.Events(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), page.Last)
}

func TestAppRejectsBadInitialBalance(t *testing.T) {
	cfg := config.Default()
	cfg.Devnet.InitialBalance = "lots"
	_, err := New(cfg)
	assert.Error(t, err)
}
