// Package stages implements the eight pipeline stage executors: download,
// audio extraction, audio upload, transcription, moment generation, clip
// extraction, clip upload, and moment refinement.
package stages

import (
	"encoding/json"

	pipelineerrors "github.com/videomoments/pipeline/errors"
)

// PipelineConfig is the decoded form of the opaque config blob a
// PipelineRequest carries; submission requires at least one of VideoID /
// VideoURL.
type PipelineConfig struct {
	VideoID                    string  `json:"video_id,omitempty"`
	VideoURL                   string  `json:"video_url,omitempty"`
	ForceDownload              bool    `json:"force_download"`
	GenerationModel            string  `json:"generation_model"`
	RefinementModel            string  `json:"refinement_model"`
	GenerationTemperature      float64 `json:"generation_temperature"`
	RefinementTemperature      float64 `json:"refinement_temperature"`
	MinMomentLength            float64 `json:"min_moment_length"`
	MaxMomentLength            float64 `json:"max_moment_length"`
	MinMoments                 int     `json:"min_moments"`
	MaxMoments                 int     `json:"max_moments"`
	RefinementParallelWorkers  int     `json:"refinement_parallel_workers"`
	IncludeVideoRefinement     bool    `json:"include_video_refinement"`
	GenerationPrompt           string  `json:"generation_prompt,omitempty"`
	OverrideExistingMoments    bool    `json:"override_existing_moments"`
	OverrideExistingRefinement bool    `json:"override_existing_refinement"`
}

// DefaultPipelineConfig holds every field's default, applied by
// DecodeConfig before validating.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		GenerationModel:            "qwen3_vl_fp8",
		RefinementModel:            "qwen3_vl_fp8",
		GenerationTemperature:      0.7,
		RefinementTemperature:      0.7,
		MinMomentLength:            60,
		MaxMomentLength:            120,
		MinMoments:                 3,
		MaxMoments:                 10,
		RefinementParallelWorkers:  2,
		IncludeVideoRefinement:     true,
		OverrideExistingMoments:    true,
		OverrideExistingRefinement: true,
	}
}

// EncodeConfig serializes cfg for storage in the stream entry and in
// LiveStatus's config field.
func EncodeConfig(cfg PipelineConfig) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", pipelineerrors.New(pipelineerrors.ValidationFailed, "failed to encode pipeline config", err)
	}
	return string(raw), nil
}

// DecodeConfig parses encoded over the defaults (so a submitter only has
// to specify the fields they want to override) and validates bounds.
func DecodeConfig(encoded string) (PipelineConfig, error) {
	cfg := DefaultPipelineConfig()
	if encoded != "" {
		if err := json.Unmarshal([]byte(encoded), &cfg); err != nil {
			return PipelineConfig{}, pipelineerrors.New(pipelineerrors.ValidationFailed, "failed to decode pipeline config", err)
		}
	}
	if err := validateConfig(cfg); err != nil {
		return PipelineConfig{}, err
	}
	return cfg, nil
}

func validateConfig(cfg PipelineConfig) error {
	if cfg.VideoID == "" && cfg.VideoURL == "" {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "config requires one of video_id or video_url", nil)
	}
	if cfg.GenerationTemperature < 0 || cfg.GenerationTemperature > 2 {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "generation_temperature must be within [0, 2]", nil)
	}
	if cfg.RefinementTemperature < 0 || cfg.RefinementTemperature > 2 {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "refinement_temperature must be within [0, 2]", nil)
	}
	if cfg.MinMomentLength < 10 || cfg.MinMomentLength > 300 {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "min_moment_length must be within [10, 300]", nil)
	}
	if cfg.MaxMomentLength < 30 || cfg.MaxMomentLength > 600 {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "max_moment_length must be within [30, 600]", nil)
	}
	if cfg.MinMoments < 1 || cfg.MinMoments > 50 {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "min_moments must be within [1, 50]", nil)
	}
	if cfg.MaxMoments < 1 || cfg.MaxMoments > 100 {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "max_moments must be within [1, 100]", nil)
	}
	if cfg.RefinementParallelWorkers < 1 || cfg.RefinementParallelWorkers > 5 {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "refinement_parallel_workers must be within [1, 5]", nil)
	}
	return nil
}
