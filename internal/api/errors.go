package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/betbot/nftmarket/internal/domain"
	"github.com/betbot/nftmarket/internal/ledger"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorMapping 按顺序匹配，先匹配到的生效
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidPrice, http.StatusBadRequest, "invalid_price"},
	{domain.ErrInvalidItemID, http.StatusBadRequest, "invalid_item_id"},
	{domain.ErrInsufficientPayment, http.StatusBadRequest, "insufficient_payment"},
	{domain.ErrNotApproved, http.StatusForbidden, "not_approved"},
	{domain.ErrNotTokenOwner, http.StatusForbidden, "not_token_owner"},
	{domain.ErrItemNotFound, http.StatusNotFound, "item_not_found"},
	{domain.ErrUnknownCollection, http.StatusNotFound, "unknown_collection"},
	{domain.ErrItemAlreadySold, http.StatusConflict, "item_already_sold"},
	{ledger.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "invalid_input"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
}

// statusFor 错误 -> HTTP 状态码与稳定的错误码
func statusFor(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeErr 按领域错误映射状态码；500 时记录日志
func writeErr(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("内部错误: %v", err)
	}
	writeError(w, status, code, err.Error())
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, "invalid_input", msg)
}
