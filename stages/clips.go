package stages

import (
	"context"
	"os"
	"sync"

	"github.com/videomoments/pipeline/concurrency"
	"github.com/videomoments/pipeline/config"
	"github.com/videomoments/pipeline/mediatools"
	"github.com/videomoments/pipeline/repository"
)

// clipFileExists is the per-moment idempotency check for S6/S7.
func clipFileExists(d *Deps, videoID, momentID string) bool {
	_, err := os.Stat(clipPath(d.StagingDir, videoID, momentID))
	return err == nil
}

// ClipExists reports whether a moment's clip has already been extracted
// to local staging, exported for the orchestrator's skip-rule checks.
func ClipExists(d *Deps, videoID, momentID string) bool {
	return clipFileExists(d, videoID, momentID)
}

// DeleteExistingClips removes every moment's local clip file for videoID
// and clears its recorded cloud path, called by the orchestrator ahead of
// Clips when override_existing_moments forces a re-cut. The object-store
// driver abstraction (go-tools/drivers) has no delete operation, so the
// stale remote object is left in place and simply overwritten on the next
// clip_upload; only the path bookkeeping and local file are cleared here.
func DeleteExistingClips(ctx context.Context, d *Deps, videoID string) error {
	moments, err := d.Moments.ListByVideoID(ctx, videoID)
	if err != nil {
		return err
	}
	for _, m := range moments {
		_ = os.Remove(clipPath(d.StagingDir, videoID, m.ID))
		if m.CloudClipPath != "" || m.LocalClipPath != "" {
			if err := d.Moments.UpdateClipPaths(ctx, m.ID, "", ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clips is S6: for every non-refined moment, compute a word-aligned
// extraction window and cut the clip with ffmpeg, fanning the cuts for a
// single video out across RefinementParallelWorkers goroutines while
// holding one clip_extraction global permit for the whole stage.
func Clips(ctx context.Context, d *Deps, videoID string, cfg PipelineConfig) error {
	permit, err := d.Limits.Acquire(ctx, concurrency.ClipExtraction)
	if err != nil {
		return err
	}
	defer permit.Release()

	moments, err := d.Moments.ListByVideoID(ctx, videoID)
	if err != nil {
		return err
	}

	transcript, err := d.Transcripts.GetByVideoID(ctx, videoID)
	var words []repository.WordTimestamp
	if err == nil && transcript != nil {
		words = transcript.WordTimestamps
	}

	video, err := d.Videos.GetByIdentifier(ctx, videoID)
	if err != nil {
		return err
	}
	videoDuration := 0.0
	if video != nil {
		videoDuration = video.DurationSeconds
	}

	padding := config.DefaultClipPadding.Seconds()
	margin := config.DefaultClipMargin.Seconds()

	var targets []repository.Moment
	for _, m := range moments {
		if m.IsRefined {
			continue
		}
		if clipFileExists(d, videoID, m.ID) && !cfg.OverrideExistingMoments {
			continue
		}
		targets = append(targets, m)
	}

	total := len(targets)
	var processed, failed int
	var mu sync.Mutex
	reportProgress := func() {
		mu.Lock()
		p, f := processed, failed
		mu.Unlock()
		_ = d.Status.UpdateProgress(ctx, videoID, map[string]interface{}{
			"clips_total":     total,
			"clips_processed": p,
			"clips_failed":    f,
		})
	}
	reportProgress()

	workers := cfg.RefinementParallelWorkers
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for _, m := range targets {
		m := m
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			_ = d.Jobs.Start(ctx, "clip_extraction", videoID, m.ID)

			bounds := alignClipWindow(m, words, padding, margin, videoDuration)
			err := d.Transcoder.ExtractClip(ctx, videoID, sourcePath(d.StagingDir, videoID), clipPath(d.StagingDir, videoID, m.ID), mediatools.ClipWindow{Start: bounds.Start, End: bounds.End})

			if err != nil {
				_ = d.Jobs.Fail(ctx, "clip_extraction", videoID, m.ID, err)
			} else {
				_ = d.Jobs.Complete(ctx, "clip_extraction", videoID, m.ID)
			}

			mu.Lock()
			if err != nil {
				failed++
			} else {
				processed++
			}
			mu.Unlock()
			reportProgress()

			if err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}()
	}
	wg.Wait()

	return firstErr
}
