// Package units wei 与 ether 之间的换算。
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	EtherDecimals = 18
	GweiDecimals  = 9
)

// ParseEther "1.5" -> 1500000000000000000 wei。超过 18 位小数视为错误。
func ParseEther(s string) (*big.Int, error) {
	return parseScaled(s, EtherDecimals)
}

// ParseGwei "2" -> 2000000000 wei
func ParseGwei(s string) (*big.Int, error) {
	return parseScaled(s, GweiDecimals)
}

func parseScaled(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("parse amount %q: negative", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("parse amount %q: more than %d decimals", s, decimals)
	}
	return scaled.BigInt(), nil
}

// ParseAmount 解析请求中的金额：
//
//	"1000"      -> 1000 wei
//	"0.01eth"   -> 10^16 wei
//	"3 gwei"    -> 3*10^9 wei
func ParseAmount(s string) (*big.Int, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	switch {
	case raw == "":
		return nil, fmt.Errorf("empty amount")
	case strings.HasSuffix(raw, "gwei"):
		return ParseGwei(strings.TrimSuffix(raw, "gwei"))
	case strings.HasSuffix(raw, "ether"):
		return ParseEther(strings.TrimSuffix(raw, "ether"))
	case strings.HasSuffix(raw, "eth"):
		return ParseEther(strings.TrimSuffix(raw, "eth"))
	case strings.HasSuffix(raw, "wei"):
		raw = strings.TrimSpace(strings.TrimSuffix(raw, "wei"))
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("parse amount %q: not an integer wei value", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("parse amount %q: negative", s)
	}
	return v, nil
}

// FormatEther wei -> ether 十进制字符串（去掉尾随 0）
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}
