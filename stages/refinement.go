package stages

import (
	"context"
	"net/url"
	"os"
	"sync"

	"github.com/videomoments/pipeline/concurrency"
	"github.com/videomoments/pipeline/config"
	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/videomoments/pipeline/inference"
	"github.com/videomoments/pipeline/repository"
	"github.com/videomoments/pipeline/tunnel"
	"golang.org/x/sync/errgroup"
)

// Refinement is S8: it selects the moments to refine, then processes each
// concurrently, each moment holding its own refinement permit, using an
// independent-errors fan-in so one moment's failure does not abort its
// siblings.
func Refinement(ctx context.Context, d *Deps, videoID string, cfg PipelineConfig) error {
	moments, err := d.Moments.ListByVideoID(ctx, videoID)
	if err != nil {
		return err
	}
	video, err := d.Videos.GetByIdentifier(ctx, videoID)
	if err != nil {
		return err
	}
	videoDuration := 0.0
	if video != nil {
		videoDuration = video.DurationSeconds
	}
	transcript, err := d.Transcripts.GetByVideoID(ctx, videoID)
	var words []repository.WordTimestamp
	if err == nil && transcript != nil {
		words = transcript.WordTimestamps
	}

	var targets []repository.Moment
	for _, m := range moments {
		if m.IsRefined {
			continue
		}
		if m.ParentID != "" {
			continue // already a refined child
		}
		refinedAlready := hasRefinedChild(moments, m.ID)
		if refinedAlready && !cfg.OverrideExistingRefinement {
			continue
		}
		targets = append(targets, m)
	}

	total := len(targets)
	var processed, successful int
	var mu sync.Mutex
	report := func() {
		mu.Lock()
		p, s := processed, successful
		mu.Unlock()
		_ = d.Status.UpdateRefinementProgress(ctx, videoID, total, p, s)
	}
	report()

	modelCfg, err := d.ModelConfigs.Get(ctx, cfg.RefinementModel)
	if err != nil {
		return err
	}
	supportsVideo := modelCfg != nil && modelCfg.SupportsVideo && cfg.IncludeVideoRefinement

	padding := config.DefaultClipPadding.Seconds()
	margin := config.DefaultClipMargin.Seconds()

	workers := cfg.RefinementParallelWorkers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	// Independent-errors fan-out: each task always returns nil to
	// errgroup so one moment's failure never cancels its siblings; the
	// real per-moment outcome is fed through the processed/successful
	// counters instead.
	var g errgroup.Group

	for _, m := range targets {
		m := m
		permit, err := d.Limits.Acquire(ctx, concurrency.Refinement)
		if err != nil {
			return err
		}

		sem <- struct{}{}
		g.Go(func() error {
			defer permit.Release()
			defer func() { <-sem }()

			_ = d.Jobs.Start(ctx, "refinement", videoID, m.ID)
			ok, refineErr := refineOne(ctx, d, videoID, m, words, videoDuration, padding, margin, supportsVideo, cfg)
			if ok {
				_ = d.Jobs.Complete(ctx, "refinement", videoID, m.ID)
			} else {
				_ = d.Jobs.Fail(ctx, "refinement", videoID, m.ID, refineErr)
			}

			mu.Lock()
			processed++
			if ok {
				successful++
			}
			mu.Unlock()
			report()
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

func hasRefinedChild(moments []repository.Moment, parentID string) bool {
	for _, m := range moments {
		if m.ParentID == parentID {
			return true
		}
	}
	return false
}

// refineOne runs the full per-moment refinement call. Its bool result
// feeds the fan-out's success counter; its error feeds the per-moment
// job record, but is never propagated to errgroup (per-moment independent
// errors), matching the fan-out's resilience contract.
func refineOne(ctx context.Context, d *Deps, videoID string, m repository.Moment, transcriptWords []repository.WordTimestamp, videoDuration, padding, margin float64, supportsVideo bool, cfg PipelineConfig) (bool, error) {
	stageCtx, cancel := context.WithTimeout(ctx, config.RefinementMomentTimeout)
	defer cancel()

	bounds := alignClipWindow(m, transcriptWords, padding, margin, videoDuration)
	windowWords := wordsInWindow(transcriptWords, bounds.Start, bounds.End)
	normalizedStart := m.StartTime - bounds.Start
	normalizedEnd := m.EndTime - bounds.Start

	prompt := buildRefinementPrompt(cfg.GenerationPrompt, windowWords, m.Title, normalizedStart, normalizedEnd)

	var messages []inference.Message
	if supportsVideo {
		clipURL, err := clipSignedURL(d, videoID, m.ID)
		if err == nil && clipURL != "" {
			messages = []inference.Message{inference.NewVideoMessage("user", prompt, clipURL)}
		}
	}
	if messages == nil {
		messages = []inference.Message{inference.NewTextMessage("user", prompt)}
	}

	handle, err := d.Connector.Connect(stageCtx, cfg.RefinementModel, false, tunnel.ReuseIfAccessible)
	if err != nil {
		return false, err
	}
	defer handle.Release()

	modelCfg, err := d.ModelConfigs.Get(stageCtx, cfg.RefinementModel)
	if err != nil {
		return false, err
	}

	req := inference.ChatRequest{
		Messages:    messages,
		MaxTokens:   inference.DefaultMaxTokens,
		Temperature: cfg.RefinementTemperature,
	}
	if modelCfg != nil {
		req.Model = modelCfg.ModelID
		req.TopP = modelCfg.TopP
		req.TopK = modelCfg.TopK
	}

	content, err := d.Inference.Complete(stageCtx, handle.URL, req, config.InferenceCallTimeout)
	if err != nil {
		return false, err
	}

	window, err := parseRefinedWindow(content)
	if err != nil {
		return false, err
	}

	refinedStart := bounds.Start + window.StartTime
	refinedEnd := bounds.Start + window.EndTime
	if refinedStart < 0 || refinedEnd > videoDuration || refinedEnd <= refinedStart {
		return false, pipelineerrors.New(pipelineerrors.ValidationFailed, "refined window falls outside video bounds", nil)
	}

	refined := repository.Moment{
		ID:                 MomentID(refinedStart, refinedEnd),
		VideoID:            videoID,
		StartTime:          refinedStart,
		EndTime:            refinedEnd,
		Title:              m.Title,
		IsRefined:          true,
		GenerationConfigID: m.GenerationConfigID,
	}
	if err := d.Moments.InsertRefined(stageCtx, m.ID, refined); err != nil {
		return false, err
	}
	return true, nil
}

// clipSignedURL resolves a fresh signed URL for a moment's already-uploaded
// clip, empty if the clip has no recorded cloud path.
func clipSignedURL(d *Deps, videoID, momentID string) (string, error) {
	localPath := clipPath(d.StagingDir, videoID, momentID)
	if _, err := os.Stat(localPath); err != nil {
		return "", nil
	}
	u, err := url.Parse(config.ObjectStoreBucket + "/" + cloudClipPath(videoID, momentID))
	if err != nil {
		return "", err
	}
	return d.Objects.SignURL(u)
}
