package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/nftmarket/internal/events"
	"github.com/betbot/nftmarket/internal/market"
	"github.com/betbot/nftmarket/internal/nft"
	"github.com/betbot/nftmarket/internal/notify"
	"github.com/betbot/nftmarket/internal/registry"
	"github.com/betbot/nftmarket/pkg/units"
)

const maxEventsPage = 500

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

// caller 从 X-Account 读取调用方地址
func caller(r *http.Request) (common.Address, error) {
	raw := r.Header.Get(AccountHeader)
	if raw == "" {
		return common.Address{}, fmt.Errorf("missing %s header", AccountHeader)
	}
	addr, err := parseAddress(raw)
	if err != nil || addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("invalid %s header", AccountHeader)
	}
	return addr, nil
}

// parseTokenID 十进制或 0x 十六进制
func parseTokenID(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	v, ok := new(big.Int).SetString(raw, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid token id %q", raw)
	}
	return v, nil
}

// parseItemID 路径中的 item id。非数字视为错误输入；数值越界交给引擎判断。
func parseItemID(r *http.Request) (uint64, error) {
	raw := pathParam(r, "itemID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q", raw)
	}
	return id, nil
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.ItemCount(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":     s.engine.Address().Hex(),
		"fee_percent": s.engine.FeePercent(),
		"fee_account": s.engine.FeeAccount().Hex(),
		"item_count":  count,
	})
}

type listRequest struct {
	TokenContract string `json:"token_contract"`
	TokenID       string `json:"token_id"`
	Price         string `json:"price"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	seller, err := caller(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req listRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	contract, err := parseAddress(req.TokenContract)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	tokenID, err := parseTokenID(req.TokenID)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	price, err := units.ParseAmount(req.Price)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	item, err := s.engine.List(r.Context(), registry.ListRequest{
		TokenContract: contract,
		TokenID:       tokenID,
		Price:         price,
		Seller:        seller,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newItemView(item))
}

func (s *Server) handleItemCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.ItemCount(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": count})
}

func (s *Server) handleItemGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseItemID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	item, err := s.engine.GetItem(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemView(item))
}

func (s *Server) handleItemTotal(w http.ResponseWriter, r *http.Request) {
	id, err := parseItemID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	total, err := s.engine.TotalPayable(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"item_id": id,
		"total":   newAmountView(total),
	})
}

type purchaseRequest struct {
	Value string `json:"value"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	buyer, err := caller(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	id, err := parseItemID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req purchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	value, err := units.ParseAmount(req.Value)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	receipt, err := s.engine.Purchase(r.Context(), market.PurchaseRequest{ItemID: id, Buyer: buyer, Payment: value})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReceiptView(receipt))
}

type eventsPage struct {
	Events []events.Envelope `json:"events"`
	Last   uint64            `json:"last"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var since uint64
	if raw := q.Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(w, "invalid since")
			return
		}
		since = v
	}
	limit := notify.DefaultPageSize
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			badRequest(w, "invalid limit")
			return
		}
		if v > maxEventsPage {
			v = maxEventsPage
		}
		limit = v
	}

	journal := s.bus.Journal()
	evts, err := journal.Since(r.Context(), since, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	last, err := journal.Last(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if evts == nil {
		evts = []events.Envelope{}
	}
	writeJSON(w, http.StatusOK, eventsPage{Events: evts, Last: last})
}

func (s *Server) collection(w http.ResponseWriter, r *http.Request) (*nft.Collection, bool) {
	contract, err := parseAddress(pathParam(r, "contract"))
	if err != nil {
		badRequest(w, err.Error())
		return nil, false
	}
	col, err := s.tokens.Collection(contract)
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return col, true
}

func (s *Server) handleCollectionGet(w http.ResponseWriter, r *http.Request) {
	col, ok := s.collection(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":       col.Address().Hex(),
		"name":          col.Name(),
		"symbol":        col.Symbol(),
		"token_counter": col.TokenCounter(r.Context()).String(),
	})
}

type mintRequest struct {
	URI string `json:"uri"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	col, ok := s.collection(w, r)
	if !ok {
		return
	}
	var req mintRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	id, err := col.Mint(r.Context(), owner, req.URI)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"token_contract": col.Address().Hex(),
		"token_id":       id.String(),
		"owner":          owner.Hex(),
		"uri":            req.URI,
	})
}

type approvalRequest struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	col, ok := s.collection(w, r)
	if !ok {
		return
	}
	var req approvalRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	operator, err := parseAddress(req.Operator)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := col.SetApprovalForAll(owner, operator, req.Approved); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":    owner.Hex(),
		"operator": operator.Hex(),
		"approved": col.IsApprovedForAll(r.Context(), owner, operator),
	})
}

func (s *Server) handleTokenGet(w http.ResponseWriter, r *http.Request) {
	col, ok := s.collection(w, r)
	if !ok {
		return
	}
	tokenID, err := parseTokenID(pathParam(r, "tokenID"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	owner, err := col.OwnerOf(r.Context(), tokenID)
	if err != nil {
		if errors.Is(err, nft.ErrTokenNotFound) {
			writeError(w, http.StatusNotFound, "token_not_found", err.Error())
			return
		}
		writeErr(w, err)
		return
	}
	uri, _ := col.TokenURI(tokenID)
	approved, _ := col.GetApproved(tokenID)
	resp := map[string]string{
		"token_contract": col.Address().Hex(),
		"token_id":       tokenID.String(),
		"owner":          owner.Hex(),
		"uri":            uri,
	}
	if approved != (common.Address{}) {
		resp["approved"] = approved.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(pathParam(r, "address"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr.Hex(),
		"balance": newAmountView(s.bank.BalanceOf(addr)),
	})
}

type faucetRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(pathParam(r, "address"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req faucetRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	value, err := units.ParseAmount(req.Value)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.bank.Deposit(addr, value); err != nil {
		writeErr(w, err)
		return
	}
	log.Infof("faucet: %s +%s wei", addr.Hex(), value)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr.Hex(),
		"balance": newAmountView(s.bank.BalanceOf(addr)),
	})
}
