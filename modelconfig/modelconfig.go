// Package modelconfig is the registry of per-model connection parameters
// and capabilities the connector (C6) and stage executors (C10) read to
// reach a generation, refinement, or transcription model.
package modelconfig

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/videomoments/pipeline/config"
	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/videomoments/pipeline/kv"
)

type ConnectionMode string

const (
	ConnectionTunnel ConnectionMode = "tunnel"
	ConnectionDirect ConnectionMode = "direct"
)

// ModelConfig is one model's full connection + capability record.
type ModelConfig struct {
	ModelKey       string
	Name           string
	ConnectionMode ConnectionMode
	SSHHost        string
	SSHRemoteHost  string
	SSHLocalPort   int
	SSHRemotePort  int
	DirectHost     string
	DirectPort     int
	ModelID        string
	SupportsVideo  bool
	TopP           *float64
	TopK           *int
	UpdatedAt      time.Time
}

const registryKey = "model:config:_keys"

func configKey(modelKey string) string { return fmt.Sprintf("model:config:%s", modelKey) }

type Registry struct {
	kv    *kv.Client
	clock config.TimestampGenerator
}

func New(client *kv.Client) *Registry {
	return &Registry{kv: client, clock: config.Clock}
}

// Put writes a model's config and adds it to the registry set.
func (r *Registry) Put(ctx context.Context, cfg ModelConfig) error {
	if cfg.ModelKey == "" {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "model config requires a model_key", nil)
	}
	cfg.UpdatedAt = r.clock.GetTime()
	if err := r.kv.HSet(ctx, configKey(cfg.ModelKey), encode(cfg)); err != nil {
		return err
	}
	return r.kv.SAdd(ctx, registryKey, cfg.ModelKey)
}

// Get reads one model's config, nil if unregistered.
func (r *Registry) Get(ctx context.Context, modelKey string) (*ModelConfig, error) {
	raw, err := r.kv.HGetAll(ctx, configKey(modelKey))
	if err != nil || raw == nil {
		return nil, err
	}
	cfg := decode(modelKey, raw)
	return &cfg, nil
}

// ListKeys returns every registered model_key.
func (r *Registry) ListKeys(ctx context.Context) ([]string, error) {
	return r.kv.SMembers(ctx, registryKey)
}

// SeedDefaults registers the built-in model configs if they are not
// already present, called once at worker startup so a fresh deployment
// has a usable registry without a separate admin step.
func (r *Registry) SeedDefaults(ctx context.Context) error {
	for _, cfg := range DefaultModels {
		existing, err := r.Get(ctx, cfg.ModelKey)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := r.Put(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

func encode(cfg ModelConfig) map[string]interface{} {
	fields := map[string]interface{}{
		"name":            cfg.Name,
		"connection_mode": string(cfg.ConnectionMode),
		"ssh_host":        cfg.SSHHost,
		"ssh_remote_host": cfg.SSHRemoteHost,
		"ssh_local_port":  strconv.Itoa(cfg.SSHLocalPort),
		"ssh_remote_port": strconv.Itoa(cfg.SSHRemotePort),
		"direct_host":     cfg.DirectHost,
		"direct_port":     strconv.Itoa(cfg.DirectPort),
		"model_id":        cfg.ModelID,
		"supports_video":  strconv.FormatBool(cfg.SupportsVideo),
		"updated_at":      strconv.FormatInt(cfg.UpdatedAt.Unix(), 10),
	}
	if cfg.TopP != nil {
		fields["top_p"] = strconv.FormatFloat(*cfg.TopP, 'f', -1, 64)
	}
	if cfg.TopK != nil {
		fields["top_k"] = strconv.Itoa(*cfg.TopK)
	}
	return fields
}

func decode(modelKey string, raw map[string]string) ModelConfig {
	cfg := ModelConfig{
		ModelKey:       modelKey,
		Name:           raw["name"],
		ConnectionMode: ConnectionMode(raw["connection_mode"]),
		SSHHost:        raw["ssh_host"],
		SSHRemoteHost:  raw["ssh_remote_host"],
		DirectHost:     raw["direct_host"],
		ModelID:        raw["model_id"],
		SupportsVideo:  raw["supports_video"] == "true",
	}
	cfg.SSHLocalPort, _ = strconv.Atoi(raw["ssh_local_port"])
	cfg.SSHRemotePort, _ = strconv.Atoi(raw["ssh_remote_port"])
	cfg.DirectPort, _ = strconv.Atoi(raw["direct_port"])
	if v, err := strconv.ParseInt(raw["updated_at"], 10, 64); err == nil {
		cfg.UpdatedAt = time.Unix(v, 0)
	}
	if v, ok := raw["top_p"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TopP = &f
		}
	}
	if v, ok := raw["top_k"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TopK = &n
		}
	}
	return cfg
}

// APIPath returns the wire path the connector appends to a model's
// resolved host:port, per its role.
func APIPath(isTranscription bool) string {
	if isTranscription {
		return "/transcribe"
	}
	return "/v1/chat/completions"
}

// DefaultModels seeds a fresh deployment with the two generation/refinement
// models named in the config surface, plus the transcription service.
var DefaultModels = []ModelConfig{
	{
		ModelKey:       "qwen3_vl_fp8",
		Name:           "Qwen3-VL-FP8",
		ConnectionMode: ConnectionTunnel,
		SSHRemotePort:  8000,
		SSHLocalPort:   18000,
		SupportsVideo:  true,
	},
	{
		ModelKey:       "minimax",
		Name:           "MiniMax",
		ConnectionMode: ConnectionTunnel,
		SSHRemotePort:  8001,
		SSHLocalPort:   18001,
		SupportsVideo:  false,
	},
	{
		ModelKey:       "transcription",
		Name:           "Whisper Transcription",
		ConnectionMode: ConnectionTunnel,
		SSHRemotePort:  9000,
		SSHLocalPort:   19000,
		SupportsVideo:  false,
	},
}
