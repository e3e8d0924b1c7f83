package tunnel

import (
	"context"
	"net"
	"testing"

	"github.com/videomoments/pipeline/modelconfig"
	"github.com/stretchr/testify/require"
)

func listenOnFreePort(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestPortReachableTrueForListeningPort(t *testing.T) {
	ln, port := listenOnFreePort(t)
	defer ln.Close()
	require.True(t, portReachable(port))
}

func TestPortReachableFalseForClosedPort(t *testing.T) {
	ln, port := listenOnFreePort(t)
	ln.Close()
	require.False(t, portReachable(port))
}

func TestEnsureReuseIfAccessibleSkipsLaunchWhenPortAlreadyLive(t *testing.T) {
	ln, port := listenOnFreePort(t)
	defer ln.Close()

	m := NewManager()
	cfg := modelconfig.ModelConfig{ModelKey: "qwen3_vl_fp8", SSHLocalPort: port}

	handle, err := m.Ensure(context.Background(), cfg, ReuseIfAccessible)
	require.NoError(t, err)
	require.NotPanics(t, func() { handle.Release() })

	// Ensure did not register a tunnel it didn't create.
	m.mu.Lock()
	_, tracked := m.tunnels[port]
	m.mu.Unlock()
	require.False(t, tracked)
}

func TestHandleReleaseIsSafeWhenNoop(t *testing.T) {
	var h Handle
	require.NotPanics(t, func() { h.Release() })
}
