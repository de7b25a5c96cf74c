package shutdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ReverseOrderOnce(t *testing.T) {
	m := NewManager()
	var order []string
	boom := errors.New("boom")
	m.OnShutdown("exchange", func(context.Context) error { order = append(order, "exchange"); return nil })
	m.OnShutdown("metrics", func(context.Context) error { order = append(order, "metrics"); return boom })
	m.OnShutdown("rpc", func(context.Context) error { order = append(order, "rpc"); return nil })

	err := m.Shutdown(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"rpc", "metrics", "exchange"}, order)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestManager_ExpiredContextSkips(t *testing.T) {
	m := NewManager()
	called := false
	m.OnShutdown("x", func(context.Context) error { called = true; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.Shutdown(ctx), context.Canceled)
	assert.False(t, called)
}
