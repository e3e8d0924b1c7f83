// Package connector gives stage executors a uniform way to reach a
// model's HTTP endpoint, regardless of whether that model is wired
// through an SSH tunnel or reachable directly.
package connector

import (
	"context"
	"fmt"

	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/videomoments/pipeline/modelconfig"
	"github.com/videomoments/pipeline/tunnel"
)

type Connector struct {
	registry *modelconfig.Registry
	tunnels  *tunnel.Manager
}

func New(registry *modelconfig.Registry, tunnels *tunnel.Manager) *Connector {
	return &Connector{registry: registry, tunnels: tunnels}
}

// GetServiceURL resolves modelKey's base URL without acquiring a tunnel,
// for callers that only need to know where a request would go.
func (c *Connector) GetServiceURL(ctx context.Context, modelKey string, isTranscription bool) (string, error) {
	cfg, err := c.registry.Get(ctx, modelKey)
	if err != nil {
		return "", err
	}
	if cfg == nil {
		return "", pipelineerrors.New(pipelineerrors.ResourceNotFound, "no model config registered for "+modelKey, nil)
	}
	return serviceURL(*cfg, isTranscription), nil
}

func serviceURL(cfg modelconfig.ModelConfig, isTranscription bool) string {
	path := modelconfig.APIPath(isTranscription)
	if cfg.ConnectionMode == modelconfig.ConnectionDirect {
		return fmt.Sprintf("http://%s:%d%s", cfg.DirectHost, cfg.DirectPort, path)
	}
	return fmt.Sprintf("http://localhost:%d%s", cfg.SSHLocalPort, path)
}

// Handle is a scoped connection to a model's endpoint: URL plus the
// release the caller must invoke once the request using it has finished.
type Handle struct {
	URL     string
	release func()
}

func (h Handle) Release() {
	if h.release != nil {
		h.release()
	}
}

// Connect resolves modelKey's URL and, in tunnel mode, acquires the
// underlying tunnel under policy. In direct mode the returned Handle's
// Release is a no-op.
func (c *Connector) Connect(ctx context.Context, modelKey string, isTranscription bool, policy tunnel.Policy) (Handle, error) {
	cfg, err := c.registry.Get(ctx, modelKey)
	if err != nil {
		return Handle{}, err
	}
	if cfg == nil {
		return Handle{}, pipelineerrors.New(pipelineerrors.ResourceNotFound, "no model config registered for "+modelKey, nil)
	}

	url := serviceURL(*cfg, isTranscription)
	if cfg.ConnectionMode == modelconfig.ConnectionDirect {
		return Handle{URL: url, release: func() {}}, nil
	}

	th, err := c.tunnels.Ensure(ctx, *cfg, policy)
	if err != nil {
		return Handle{}, err
	}
	return Handle{URL: url, release: th.Release}, nil
}
