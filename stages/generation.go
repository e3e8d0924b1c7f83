package stages

import (
	"context"

	"github.com/videomoments/pipeline/concurrency"
	"github.com/videomoments/pipeline/config"
	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/videomoments/pipeline/inference"
	"github.com/videomoments/pipeline/repository"
	"github.com/videomoments/pipeline/tunnel"
)

// Generation is S5: it builds a single chat-completions request from the
// persisted transcript, parses the model's response through the full
// think-strip/code-fence-strip/JSON-recovery pipeline, validates the
// candidate moments, and bulk-persists the survivors linked to a new
// generation-config record.
func Generation(ctx context.Context, d *Deps, videoID string, cfg PipelineConfig) error {
	stageCtx, cancel := context.WithTimeout(ctx, config.GenerationStageTimeout)
	defer cancel()

	video, err := d.Videos.GetByIdentifier(stageCtx, videoID)
	if err != nil {
		return err
	}
	if video == nil || video.DurationSeconds <= 0 {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "video row missing or has no known duration", nil)
	}

	transcript, err := d.Transcripts.GetByVideoID(stageCtx, videoID)
	if err != nil {
		return err
	}
	if transcript == nil {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "generation stage requires a persisted transcript", nil)
	}

	prompt := buildGenerationPrompt(cfg.GenerationPrompt, transcript.SegmentTimestamps, video.DurationSeconds, cfg)

	permit, err := d.Limits.Acquire(stageCtx, concurrency.MomentGeneration)
	if err != nil {
		return err
	}
	defer permit.Release()

	handle, err := d.Connector.Connect(stageCtx, cfg.GenerationModel, false, tunnel.ReuseIfAccessible)
	if err != nil {
		return err
	}
	defer handle.Release()

	modelCfg, err := d.ModelConfigs.Get(stageCtx, cfg.GenerationModel)
	if err != nil {
		return err
	}

	req := inference.ChatRequest{
		Messages:    []inference.Message{inference.NewTextMessage("user", prompt)},
		MaxTokens:   inference.DefaultMaxTokens,
		Temperature: cfg.GenerationTemperature,
	}
	if modelCfg != nil {
		req.Model = modelCfg.ModelID
		req.TopP = modelCfg.TopP
		req.TopK = modelCfg.TopK
	}

	content, err := d.Inference.Complete(stageCtx, handle.URL, req, config.InferenceCallTimeout)
	if err != nil {
		return err
	}

	candidates, err := parseMomentsResponse(content)
	if err != nil {
		return err
	}
	accepted := validateAndSelectMoments(candidates, video.DurationSeconds, cfg.MinMomentLength, cfg.MaxMomentLength, cfg.MaxMoments)
	if len(accepted) == 0 {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "no generated moments passed validation", nil)
	}
	if len(accepted) < cfg.MinMoments {
		_ = d.Status.UpdateProgress(stageCtx, videoID, map[string]interface{}{
			"generation_warning": "fewer moments generated than min_moments requested",
		})
	}

	genConfigID, err := d.GenerationConfigs.Insert(stageCtx, &repository.GenerationConfig{
		VideoID:     videoID,
		Model:       cfg.GenerationModel,
		Temperature: cfg.GenerationTemperature,
		Prompt:      prompt,
	})
	if err != nil {
		return err
	}

	moments := make([]repository.Moment, len(accepted))
	for i, c := range accepted {
		moments[i] = repository.Moment{
			ID:                 MomentID(c.StartTime, c.EndTime),
			VideoID:            videoID,
			StartTime:          c.StartTime,
			EndTime:            c.EndTime,
			Title:              c.Title,
			GenerationConfigID: genConfigID,
		}
	}
	return d.Moments.BulkInsert(stageCtx, moments)
}
