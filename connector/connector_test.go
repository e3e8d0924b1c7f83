package connector

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/videomoments/pipeline/kv"
	"github.com/videomoments/pipeline/modelconfig"
	"github.com/videomoments/pipeline/tunnel"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestConnector(t *testing.T) *Connector {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	registry := modelconfig.New(kv.NewFromRedisClient(rdb))
	return New(registry, tunnel.NewManager())
}

func TestGetServiceURLDirectMode(t *testing.T) {
	ctx := context.Background()
	c := newTestConnector(t)

	require.NoError(t, c.registry.Put(ctx, modelconfig.ModelConfig{
		ModelKey:       "minimax",
		ConnectionMode: modelconfig.ConnectionDirect,
		DirectHost:     "10.0.0.5",
		DirectPort:     9001,
	}))

	url, err := c.GetServiceURL(ctx, "minimax", false)
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.5:9001/v1/chat/completions", url)
}

func TestGetServiceURLTunnelMode(t *testing.T) {
	ctx := context.Background()
	c := newTestConnector(t)

	require.NoError(t, c.registry.Put(ctx, modelconfig.ModelConfig{
		ModelKey:       "transcription",
		ConnectionMode: modelconfig.ConnectionTunnel,
		SSHLocalPort:   18500,
	}))

	url, err := c.GetServiceURL(ctx, "transcription", true)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:18500/transcribe", url)
}

func TestGetServiceURLUnregisteredModelErrors(t *testing.T) {
	c := newTestConnector(t)
	_, err := c.GetServiceURL(context.Background(), "nope", false)
	require.Error(t, err)
}

func TestConnectDirectModeReleaseIsNoop(t *testing.T) {
	ctx := context.Background()
	c := newTestConnector(t)

	require.NoError(t, c.registry.Put(ctx, modelconfig.ModelConfig{
		ModelKey:       "minimax",
		ConnectionMode: modelconfig.ConnectionDirect,
		DirectHost:     "10.0.0.5",
		DirectPort:     9001,
	}))

	handle, err := c.Connect(ctx, "minimax", false, tunnel.ReuseIfAccessible)
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.5:9001/v1/chat/completions", handle.URL)
	require.NotPanics(t, func() { handle.Release() })
}
