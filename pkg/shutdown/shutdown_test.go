package shutdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManager_ReverseOrderOnce(t *testing.T) {
	m := NewManager()
	var order []string
	m.OnShutdown("http", func(context.Context) error { order = append(order, "http"); return nil })
	m.OnShutdown("hub", func(context.Context) error { order = append(order, "hub"); return errors.New("boom") })
	m.OnShutdown("snapshot", func(context.Context) error { order = append(order, "snapshot"); return nil })

	assert.Equal(t, 1, m.Shutdown(context.Background()))
	assert.Equal(t, []string{"snapshot", "hub", "http"}, order)

	assert.Equal(t, 0, m.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestManager_Empty(t *testing.T) {
	assert.Equal(t, 0, NewManager().Shutdown(context.Background()))
}
