package domain

import "errors"

// 市场引擎的拒绝原因。全部是调用方可修正的前置条件错误，失败时不产生任何状态变更。
var (
	ErrInvalidPrice        = errors.New("price must be greater than zero")
	ErrNotApproved         = errors.New("marketplace is not approved to transfer the token")
	ErrInvalidItemID       = errors.New("invalid item id")
	ErrItemAlreadySold     = errors.New("item already sold")
	ErrInsufficientPayment = errors.New("payment is less than price plus fee")
	ErrItemNotFound        = errors.New("item not found")

	ErrUnknownCollection = errors.New("unknown token collection")
	ErrNotTokenOwner     = errors.New("seller does not own the token")
	ErrInvalidInput      = errors.New("invalid input")
)

// IsRejection 是否为调用方可修正的拒绝（而不是引擎/存储故障）
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidPrice, ErrNotApproved, ErrInvalidItemID, ErrItemAlreadySold,
		ErrInsufficientPayment, ErrItemNotFound, ErrUnknownCollection,
		ErrNotTokenOwner, ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
