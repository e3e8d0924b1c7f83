// Package orchestrator drives one pipeline run for a single video: it
// selects the stage sequence, evaluates skip rules between stages, and
// records status into the state store, exactly the way the stream
// worker's process_message loop expects. Global permits are acquired by
// the stage executors themselves, not here.
package orchestrator

import (
	"context"

	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/videomoments/pipeline/repository"
	"github.com/videomoments/pipeline/stages"
	"github.com/videomoments/pipeline/statestore"
)

// Result is what the worker uses to decide logging behavior. The worker
// acks the stream message once Run returns, unless Run also returned a
// retriable error, in which case the message is left pending.
type Result struct {
	Success     bool
	Cancelled   bool
	FailedStage statestore.Stage
}

// Orchestrator runs one pipeline to completion (or failure/cancellation)
// for a given video id.
type Orchestrator struct {
	deps *stages.Deps
}

func New(deps *stages.Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// Run executes the stage sequence selected by cfg.RefinementModel's
// supports_video capability, checking for cancellation strictly between
// stages and refreshing the run lock after every completed stage.
func (o *Orchestrator) Run(ctx context.Context, videoID string, cfg stages.PipelineConfig) (Result, error) {
	modelCfg, err := o.deps.ModelConfigs.Get(ctx, cfg.RefinementModel)
	if err != nil {
		return Result{}, err
	}
	supportsVideo := modelCfg != nil && modelCfg.SupportsVideo

	stageList := statestore.Stages
	if !supportsVideo {
		stageList = statestore.NoClipStages
		cfg.IncludeVideoRefinement = false
		_ = o.deps.Status.MarkStageSkipped(ctx, videoID, statestore.StageClips, "Refinement model does not support video")
		_ = o.deps.Status.MarkStageSkipped(ctx, videoID, statestore.StageClipUpload, "Refinement model does not support video")
	}

	if err := o.deps.Status.UpdatePipelineStatus(ctx, videoID, statestore.RunProcessing); err != nil {
		return Result{}, err
	}

	for _, stage := range stageList {
		cancelled, err := o.deps.Status.CheckCancellation(ctx, videoID)
		if err != nil {
			return Result{}, err
		}
		if cancelled {
			if err := o.deps.Status.UpdatePipelineStatus(ctx, videoID, statestore.RunCancelled); err != nil {
				return Result{}, err
			}
			if err := o.deps.Status.ClearCancellation(ctx, videoID); err != nil {
				return Result{}, err
			}
			return Result{Cancelled: true}, nil
		}

		skip, reason, err := o.shouldSkip(ctx, stage, videoID, cfg)
		if err != nil {
			return Result{}, err
		}
		if skip {
			if err := o.deps.Status.MarkStageSkipped(ctx, videoID, stage, reason); err != nil {
				return Result{}, err
			}
			continue
		}

		if err := o.deps.Status.UpdateCurrentStage(ctx, videoID, stage); err != nil {
			return Result{}, err
		}
		if err := o.deps.Status.MarkStageStarted(ctx, videoID, stage); err != nil {
			return Result{}, err
		}

		if err := o.runStage(ctx, stage, videoID, cfg); err != nil {
			_ = o.deps.Status.MarkStageFailed(ctx, videoID, stage, err)
			_ = o.deps.Status.UpdatePipelineStatus(ctx, videoID, statestore.RunFailed)
			return Result{Success: false, FailedStage: stage}, nil
		}
		if err := o.deps.Status.MarkStageCompleted(ctx, videoID, stage); err != nil {
			return Result{}, err
		}
		if _, err := o.deps.Status.RefreshLock(ctx, videoID); err != nil {
			return Result{}, err
		}
	}

	if err := o.deps.Status.UpdatePipelineStatus(ctx, videoID, statestore.RunCompleted); err != nil {
		return Result{}, err
	}
	return Result{Success: true}, nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage statestore.Stage, videoID string, cfg stages.PipelineConfig) error {
	switch stage {
	case statestore.StageDownload:
		return stages.Download(ctx, o.deps, videoID, cfg)
	case statestore.StageAudio:
		return stages.Audio(ctx, o.deps, videoID)
	case statestore.StageAudioUpload:
		return stages.AudioUpload(ctx, o.deps, videoID)
	case statestore.StageTranscript:
		return stages.Transcript(ctx, o.deps, videoID)
	case statestore.StageGeneration:
		return stages.Generation(ctx, o.deps, videoID, cfg)
	case statestore.StageClips:
		if cfg.OverrideExistingMoments {
			if err := stages.DeleteExistingClips(ctx, o.deps, videoID); err != nil {
				return err
			}
		}
		return stages.Clips(ctx, o.deps, videoID, cfg)
	case statestore.StageClipUpload:
		return stages.ClipUpload(ctx, o.deps, videoID)
	case statestore.StageRefinement:
		return stages.Refinement(ctx, o.deps, videoID, cfg)
	default:
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "unknown stage "+string(stage), nil)
	}
}

// shouldSkip implements the per-stage skip rules, honoring the
// override_existing_* flags.
func (o *Orchestrator) shouldSkip(ctx context.Context, stage statestore.Stage, videoID string, cfg stages.PipelineConfig) (bool, string, error) {
	switch stage {
	case statestore.StageDownload:
		video, err := o.deps.Videos.GetByIdentifier(ctx, videoID)
		if err != nil {
			return false, "", err
		}
		if video != nil {
			return true, "Video already ingested", nil
		}
		if cfg.VideoURL == "" {
			return false, "", pipelineerrors.New(pipelineerrors.ValidationFailed, "no existing video and no video_url to download", nil)
		}
		return false, "", nil

	case statestore.StageAudio:
		if stages.AudioExists(o.deps, videoID) {
			return true, "Audio file already exists", nil
		}
		return false, "", nil

	case statestore.StageAudioUpload:
		return false, "", nil

	case statestore.StageTranscript:
		t, err := o.deps.Transcripts.GetByVideoID(ctx, videoID)
		if err != nil {
			return false, "", err
		}
		if t != nil {
			return true, "Transcript already exists", nil
		}
		return false, "", nil

	case statestore.StageGeneration:
		moments, err := o.deps.Moments.ListByVideoID(ctx, videoID)
		if err != nil {
			return false, "", err
		}
		if len(moments) > 0 && !cfg.OverrideExistingMoments {
			return true, "Moments already generated", nil
		}
		return false, "", nil

	case statestore.StageClips:
		moments, err := o.deps.Moments.ListByVideoID(ctx, videoID)
		if err != nil {
			return false, "", err
		}
		if len(moments) == 0 {
			return true, "No moments to clip", nil
		}
		if !cfg.OverrideExistingMoments && allClipsExist(o.deps, videoID, moments) {
			return true, "Clips already extracted", nil
		}
		return false, "", nil

	case statestore.StageClipUpload:
		moments, err := o.deps.Moments.ListByVideoID(ctx, videoID)
		if err != nil {
			return false, "", err
		}
		if len(moments) == 0 {
			return true, "No moments to upload clips for", nil
		}
		if !cfg.OverrideExistingMoments && allClipsUploaded(moments) {
			return true, "Clips already uploaded", nil
		}
		return false, "", nil

	case statestore.StageRefinement:
		moments, err := o.deps.Moments.ListByVideoID(ctx, videoID)
		if err != nil {
			return false, "", err
		}
		if len(moments) == 0 {
			return true, "No moments to refine", nil
		}
		if !cfg.OverrideExistingRefinement && allRefined(moments) {
			return true, "All moments already refined", nil
		}
		return false, "", nil
	}
	return false, "", nil
}

func allClipsExist(deps *stages.Deps, videoID string, moments []repository.Moment) bool {
	for _, m := range moments {
		if m.IsRefined {
			continue
		}
		if !stages.ClipExists(deps, videoID, m.ID) {
			return false
		}
	}
	return true
}

func allClipsUploaded(moments []repository.Moment) bool {
	for _, m := range moments {
		if m.IsRefined {
			continue
		}
		if m.CloudClipPath == "" {
			return false
		}
	}
	return true
}

func allRefined(moments []repository.Moment) bool {
	for _, m := range moments {
		if m.IsRefined || m.ParentID != "" {
			continue
		}
		if !hasChild(moments, m.ID) {
			return false
		}
	}
	return true
}

func hasChild(moments []repository.Moment, parentID string) bool {
	for _, m := range moments {
		if m.ParentID == parentID {
			return true
		}
	}
	return false
}
