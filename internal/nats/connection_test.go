package nats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConnectionConfig(t *testing.T) {
	cfg := DefaultConnectionConfig("nats://localhost:4222")
	assert.Equal(t, "nats://localhost:4222", cfg.URL)
	assert.Equal(t, "ce2ocf", cfg.Name)
	assert.Equal(t, 10, cfg.MaxReconnects)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestConnect_InvalidConfig(t *testing.T) {
	_, err := Connect(context.Background(), nil, nil)
	assert.Error(t, err)

	_, err = Connect(context.Background(), &ConnectionConfig{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL cannot be empty")
}

func TestConnect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConnectionConfig("nats://127.0.0.1:1")
	cfg.Timeout = 100 * time.Millisecond
	cfg.MaxReconnects = 0
	_, err := Connect(ctx, cfg, nil)
	assert.Error(t, err)
}

func TestCloseNil(t *testing.T) {
	assert.NoError(t, Close(nil))
	assert.False(t, IsConnected(nil))
}
