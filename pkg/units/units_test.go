package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEther(t *testing.T) {
	cases := map[string]string{
		"1":                    "1000000000000000000",
		"0.01":                 "10000000000000000",
		"1.5":                  "1500000000000000000",
		"0.000000000000000001": "1",
		"10000":                "10000000000000000000000",
	}
	for in, want := range cases {
		got, err := ParseEther(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}

	_, err := ParseEther("0.0000000000000000001")
	assert.Error(t, err)
	_, err = ParseEther("-1")
	assert.Error(t, err)
	_, err = ParseEther("abc")
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"101":     "101",
		"101wei":  "101",
		"0.01eth": "10000000000000000",
		"2 ETH":   "2000000000000000000",
		"1ether":  "1000000000000000000",
		"3gwei":   "3000000000",
		" 42 ":    "42",
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}
	for _, bad := range []string{"", "1.5", "-3", "x eth"} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatEther(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FormatEther(v))
	assert.Equal(t, "0.000000000000000101", FormatEther(big.NewInt(101)))
	assert.Equal(t, "0", FormatEther(nil))
	assert.Equal(t, "0", FormatEther(new(big.Int)))
}
