package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/nftmarket/internal/domain"
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

func newTestServer(t *testing.T, rateCapacity int) (http.Handler, *ledger.Bank) {
	t.Helper()
	tokens := nft.NewDirectory(nft.NewCollection(nftAddr, "", ""))
	reg := registry.New(registry.NewMemoryStore(), tokens, mktAddr)
	bank := ledger.NewBank()
	bus := notify.NewBus(nil)
	engine, err := market.NewEngine(market.Config{
		Registry:  reg,
		Bank:      bank,
		Policy:    fee.MustPolicy(1, feeAcct),
		Publisher: bus,
	})
	require.NoError(t, err)

	s, err := New(Config{
		Engine: engine, Bank: bank, Tokens: tokens, Bus: bus,
		RateCapacity: rateCapacity, RateRefill: 0,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s.Router(), bank
}

func do(t *testing.T, h http.Handler, method, path string, as common.Address, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if as != (common.Address{}) {
		req.Header.Set(AccountHeader, as.Hex())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

// listOne 铸造、授权并挂单，返回 item id
func listOne(t *testing.T, h http.Handler, price string) float64 {
	t.Helper()
	col := "/api/collections/" + nftAddr.Hex()

	code, minted := do(t, h, http.MethodPost, col+"/mint", seller, mintRequest{URI: "ipfs://meta"})
	require.Equal(t, http.StatusCreated, code)

	code, _ = do(t, h, http.MethodPost, col+"/approval", seller, approvalRequest{Operator: mktAddr.Hex(), Approved: true})
	require.Equal(t, http.StatusOK, code)

	code, item := do(t, h, http.MethodPost, "/api/items", seller, listRequest{
		TokenContract: nftAddr.Hex(), TokenID: minted["token_id"].(string), Price: price,
	})
	require.Equal(t, http.StatusCreated, code, item)
	return item["item_id"].(float64)
}

func TestAPI_ListAndPurchaseFlow(t *testing.T) {
	h, _ := newTestServer(t, 0)

	code, _ := do(t, h, http.MethodPost, "/api/accounts/"+buyer.Hex()+"/faucet", common.Address{}, faucetRequest{Value: "1000"})
	require.Equal(t, http.StatusOK, code)

	id := listOne(t, h, "100")
	assert.Equal(t, float64(1), id)

	code, item := do(t, h, http.MethodGet, "/api/items/1", common.Address{}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "100", item["price"])
	assert.Equal(t, false, item["sold"])

	code, total := do(t, h, http.MethodGet, "/api/items/1/total", common.Address{}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "101", total["total"].(map[string]interface{})["wei"])

	code, body := do(t, h, http.MethodPost, "/api/items/1/purchase", buyer, purchaseRequest{Value: "100"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "insufficient_payment", body["code"])

	code, receipt := do(t, h, http.MethodPost, "/api/items/1/purchase", buyer, purchaseRequest{Value: "101"})
	require.Equal(t, http.StatusOK, code, receipt)
	assert.Equal(t, "100", receipt["price"])
	assert.Equal(t, "1", receipt["fee"])
	assert.NotEmpty(t, receipt["receipt_id"])

	code, body = do(t, h, http.MethodPost, "/api/items/1/purchase", buyer, purchaseRequest{Value: "101"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "item_already_sold", body["code"])

	code, token := do(t, h, http.MethodGet, "/api/collections/"+nftAddr.Hex()+"/tokens/1", common.Address{}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, buyer.Hex(), token["owner"])

	code, bal := do(t, h, http.MethodGet, "/api/accounts/"+seller.Hex()+"/balance", common.Address{}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "100", bal["balance"].(map[string]interface{})["wei"])

	code, mkt := do(t, h, http.MethodGet, "/api/market", common.Address{}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), mkt["fee_percent"])
	assert.Equal(t, float64(1), mkt["item_count"])
	assert.Equal(t, mktAddr.Hex(), mkt["address"])

	code, page := do(t, h, http.MethodGet, "/api/events?since=0", common.Address{}, nil)
	require.Equal(t, http.StatusOK, code)
	evts := page["events"].([]interface{})
	require.Len(t, evts, 2)
	assert.Equal(t, "offered", evts[0].(map[string]interface{})["type"])
	assert.Equal(t, "sold", evts[1].(map[string]interface{})["type"])
	assert.Equal(t, float64(2), page["last"])
}

func TestAPI_ErrorStatuses(t *testing.T) {
	h, _ := newTestServer(t, 0)
	listOne(t, h, "0.01eth")
	col := "/api/collections/" + nftAddr.Hex()

	cases := []struct {
		name   string
		method string
		path   string
		as     common.Address
		body   interface{}
		status int
		code   string
	}{
		{"invalid item id zero", http.MethodPost, "/api/items/0/purchase", buyer, purchaseRequest{Value: "1eth"}, 400, "invalid_item_id"},
		{"invalid item id past count", http.MethodPost, "/api/items/2/purchase", buyer, purchaseRequest{Value: "1eth"}, 400, "invalid_item_id"},
		{"insufficient funds", http.MethodPost, "/api/items/1/purchase", buyer, purchaseRequest{Value: "1eth"}, 402, "insufficient_funds"},
		{"missing caller", http.MethodPost, "/api/items/1/purchase", common.Address{}, purchaseRequest{Value: "1"}, 400, "invalid_input"},
		{"bad amount", http.MethodPost, "/api/items/1/purchase", buyer, purchaseRequest{Value: "lots"}, 400, "invalid_input"},
		{"item not found", http.MethodGet, "/api/items/9", common.Address{}, nil, 404, "item_not_found"},
		{"bad item id", http.MethodGet, "/api/items/abc", common.Address{}, nil, 400, "invalid_input"},
		{"unknown collection", http.MethodPost, "/api/collections/" + buyer.Hex() + "/mint", seller, mintRequest{URI: "x"}, 404, "unknown_collection"},
		{"token not found", http.MethodGet, col + "/tokens/77", common.Address{}, nil, 404, "token_not_found"},
		{"zero price", http.MethodPost, "/api/items", seller, listRequest{TokenContract: nftAddr.Hex(), TokenID: "1", Price: "0"}, 400, "invalid_price"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := do(t, h, tc.method, tc.path, tc.as, tc.body)
			assert.Equal(t, tc.status, code, body)
			assert.Equal(t, tc.code, body["code"])
		})
	}

	// buyer 未授权引擎
	code, minted := do(t, h, http.MethodPost, col+"/mint", buyer, mintRequest{URI: "u"})
	require.Equal(t, http.StatusCreated, code)
	code, body := do(t, h, http.MethodPost, "/api/items", buyer, listRequest{
		TokenContract: nftAddr.Hex(), TokenID: minted["token_id"].(string), Price: "5",
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "not_approved", body["code"])
}

func TestAPI_RateLimit(t *testing.T) {
	h, _ := newTestServer(t, 2)
	for i := 0; i < 2; i++ {
		code, _ := do(t, h, http.MethodGet, "/api/market", buyer, nil)
		require.Equal(t, http.StatusOK, code)
	}
	code, body := do(t, h, http.MethodGet, "/api/market", buyer, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", body["code"])

	code, _ = do(t, h, http.MethodGet, "/api/market", seller, nil)
	assert.Equal(t, http.StatusOK, code, "separate bucket per caller")
}

func TestStatusFor_Wrapped(t *testing.T) {
	status, code := statusFor(fmt.Errorf("acquire token: %w", nft.ErrNotTokenOwner))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not_token_owner", code)

	status, _ = statusFor(fmt.Errorf("x: %w", domain.ErrItemAlreadySold))
	assert.Equal(t, http.StatusConflict, status)

	status, code = statusFor(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, 0)
	code, _ := do(t, h, http.MethodPost, "/api/accounts/"+buyer.Hex()+"/faucet", common.Address{}, faucetRequest{Value: "1000"})
	require.Equal(t, http.StatusOK, code)
	id := listOne(t, h, "100")
	code, _ = do(t, h, http.MethodPost, fmt.Sprintf("/api/items/%d/purchase", int(id)), buyer, purchaseRequest{Value: "101"})
	require.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nftmarket_purchases_total")
	assert.Contains(t, rec.Body.String(), `nftmarket_events_published_total{type="sold"}`)
}
