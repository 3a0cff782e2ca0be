package kvstore

import (
	"strings"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_StringRoundTrip(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.GetString("mnemonic")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetString("mnemonic", ""))
	v, ok, err := s.GetString("mnemonic")
	require.NoError(t, err)
	assert.True(t, ok, "empty value is still found")
	assert.Equal(t, "", v)

	_, _, err = s.GetString("  ")
	assert.Error(t, err)
}

func TestStore_Counter(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	key := []byte("c")
	require.NoError(t, s.Update(func(txn *badger.Txn) error {
		n, err := TxnGetUint64(txn, key)
		if err != nil {
			return err
		}
		assert.Equal(t, uint64(0), n)
		return TxnSetUint64(txn, key, n+41)
	}))
	require.NoError(t, s.View(func(txn *badger.Txn) error {
		n, err := TxnGetUint64(txn, key)
		assert.Equal(t, uint64(41), n)
		return err
	}))
}

func TestSeqKey_Ordering(t *testing.T) {
	a := string(SeqKey("evt/", 9))
	b := string(SeqKey("evt/", 10))
	assert.True(t, a < b)
	assert.True(t, strings.HasPrefix(a, "evt/"))
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("")
	require.NoError(t, err)
	assert.Nil(t, k)

	k, err = ParseKey("0x" + strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Len(t, k, 32)

	_, err = ParseKey("abcd")
	assert.Error(t, err)
}
