package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/nftmarket/internal/api"
	"github.com/betbot/nftmarket/internal/fee"
	"github.com/betbot/nftmarket/internal/ledger"
	"github.com/betbot/nftmarket/internal/market"
	"github.com/betbot/nftmarket/internal/nft"
	"github.com/betbot/nftmarket/internal/notify"
	"github.com/betbot/nftmarket/internal/registry"
)

var (
	feeAcct = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	seller  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	buyer   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	nftAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	mktAddr = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
)

func newNode(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	tokens := nft.NewDirectory(nft.NewCollection(nftAddr, "", ""))
	reg := registry.New(registry.NewMemoryStore(), tokens, mktAddr)
	bank := ledger.NewBank()
	bus := notify.NewBus(nil)
	hub := notify.NewHub(bus)
	engine, err := market.NewEngine(market.Config{
		Registry:  reg,
		Bank:      bank,
		Policy:    fee.MustPolicy(1, feeAcct),
		Publisher: bus,
	})
	require.NoError(t, err)
	s, err := api.New(api.Config{Engine: engine, Bank: bank, Tokens: tokens, Bus: bus, Hub: hub})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		_ = s.Close()
	})
	return srv, New(srv.URL, WithRetry(0, 0))
}

func listOne(t *testing.T, c *Client, price string) *Item {
	t.Helper()
	ctx := context.Background()
	s := c.As(seller.Hex())
	tok, err := s.Mint(ctx, nftAddr.Hex(), "ipfs://meta")
	require.NoError(t, err)
	require.NoError(t, s.SetApprovalForAll(ctx, nftAddr.Hex(), mktAddr.Hex(), true))
	item, err := s.List(ctx, nftAddr.Hex(), tok.TokenID, price)
	require.NoError(t, err)
	return item
}

func TestClientPurchaseFlow(t *testing.T) {
	_, c := newNode(t)
	ctx := context.Background()

	_, err := c.Faucet(ctx, buyer.Hex(), "1eth")
	require.NoError(t, err)

	info, err := c.Market(ctx)
	require.NoError(t, err)
	assert.Equal(t, mktAddr.Hex(), info.Address)
	assert.Equal(t, uint64(1), info.FeePercent)

	item := listOne(t, c, "0.01eth")
	assert.Equal(t, uint64(1), item.ItemID)
	assert.Equal(t, "10000000000000000", item.Price)

	tok, err := c.Token(ctx, nftAddr.Hex(), item.TokenID)
	require.NoError(t, err)
	assert.Equal(t, mktAddr.Hex(), tok.Owner)

	total, err := c.TotalPayable(ctx, item.ItemID)
	require.NoError(t, err)
	assert.Equal(t, "10100000000000000", total.Wei)

	receipt, err := c.As(buyer.Hex()).Purchase(ctx, item.ItemID, total.Wei)
	require.NoError(t, err)
	assert.Equal(t, "100000000000000", receipt.Fee)
	assert.Equal(t, buyer.Hex(), receipt.Buyer)
	assert.NotEmpty(t, receipt.ReceiptID)

	got, err := c.GetItem(ctx, item.ItemID)
	require.NoError(t, err)
	assert.True(t, got.Sold)

	bal, err := c.Balance(ctx, seller.Hex())
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", bal.Wei)

	count, err := c.ItemCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	page, err := c.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	assert.Equal(t, EventOffered, page.Events[0].Type)
	assert.Equal(t, EventSold, page.Events[1].Type)
	assert.Equal(t, uint64(2), page.Last)
}

func TestClientAPIErrors(t *testing.T) {
	_, c := newNode(t)
	ctx := context.Background()

	_, err := c.GetItem(ctx, 0)
	require.Error(t, err)
	assert.Equal(t, "invalid_item_id", ErrorCode(err))

	_, err = c.GetItem(ctx, 42)
	assert.Equal(t, "item_not_found", ErrorCode(err))

	item := listOne(t, c, "100")
	_, err = c.As(buyer.Hex()).Purchase(ctx, item.ItemID, "100")
	assert.Equal(t, "insufficient_payment", ErrorCode(err))

	_, err = c.As(buyer.Hex()).Purchase(ctx, item.ItemID, "101")
	assert.Equal(t, "insufficient_funds", ErrorCode(err))

	_, err = c.Faucet(ctx, buyer.Hex(), "1000")
	require.NoError(t, err)
	_, err = c.As(buyer.Hex()).Purchase(ctx, item.ItemID, "101")
	require.NoError(t, err)
	_, err = c.As(buyer.Hex()).Purchase(ctx, item.ItemID, "101")
	assert.Equal(t, "item_already_sold", ErrorCode(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestClientRetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"slow down","code":"rate_limited"}`))
			return
		}
		_, _ = w.Write([]byte(`{"count":7}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(2, 10*time.Millisecond))
	count, err := c.ItemCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), count)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEventStreamResumes(t *testing.T) {
	srv, c := newNode(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listOne(t, c, "1")

	var mu sync.Mutex
	var seqs []uint64
	stream := NewEventStream(srv.URL)
	stream.SetReconnectCoolDown(20 * time.Millisecond)
	stream.OnEvent(func(e Event) {
		mu.Lock()
		seqs = append(seqs, e.Seq)
		mu.Unlock()
	})
	require.NoError(t, stream.Connect(ctx, 0))
	defer stream.Close()

	require.Eventually(t, func() bool { return stream.LastSeq() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err := c.Faucet(ctx, buyer.Hex(), "1eth")
	require.NoError(t, err)
	_, err = c.As(buyer.Hex()).Purchase(ctx, 1, "2")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return stream.LastSeq() == 2 }, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []uint64{1, 2}, seqs)
	mu.Unlock()
}
