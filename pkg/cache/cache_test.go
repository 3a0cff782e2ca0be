package cache

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache_SetGetDelete(t *testing.T) {
	c := NewInMemoryCache[uint64, string](time.Minute, 0)
	defer c.Stop()

	c.Set(1, "a", 0)
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, c.Size())

	c.Delete(1)
	_, ok = c.Get(1)
	assert.False(t, ok)
}

func TestInMemoryCache_Expiry(t *testing.T) {
	c := NewInMemoryCache[string, int](time.Minute, 0)
	defer c.Stop()

	c.Set("k", 7, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestInMemoryCache_Clear(t *testing.T) {
	c := NewInMemoryCache[int, int](time.Minute, time.Hour)
	defer c.Stop()

	for i := 0; i < 10; i++ {
		c.Set(i, i, 0)
	}
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestInMemoryCache_GetOrLoad(t *testing.T) {
	c := NewInMemoryCache[uint64, string](time.Minute, 0)
	defer c.Stop()

	calls := 0
	load := func(k uint64) (string, error) {
		calls++
		if k == 0 {
			return "", errors.New("invalid")
		}
		return fmt.Sprintf("item-%d", k), nil
	}

	v, err := c.GetOrLoad(3, load)
	assert.NoError(t, err)
	assert.Equal(t, "item-3", v)
	v, err = c.GetOrLoad(3, load)
	assert.NoError(t, err)
	assert.Equal(t, "item-3", v)
	assert.Equal(t, 1, calls)

	_, err = c.GetOrLoad(0, load)
	assert.Error(t, err)
	assert.Equal(t, 1, c.Size(), "errors are not cached")
}
