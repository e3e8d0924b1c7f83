// Package statestore provides typed accessors over the key-value client for
// per-video live status, lock, cancellation, and archived run history. It
// has no notion of stage logic — it only knows how to read and write the
// shapes the orchestrator hands it.
package statestore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/videomoments/pipeline/config"
	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/videomoments/pipeline/kv"
)

// Stage is one tag in the ordered pipeline sequence.
type Stage string

const (
	StageDownload    Stage = "download"
	StageAudio       Stage = "audio"
	StageAudioUpload Stage = "audio_upload"
	StageTranscript  Stage = "transcript"
	StageGeneration  Stage = "generation"
	StageClips       Stage = "clips"
	StageClipUpload  Stage = "clip_upload"
	StageRefinement  Stage = "refinement"
)

// Stages is the full 8-stage sequence. NoClipStages omits the clip
// stages for refinement models that lack supports_video.
var Stages = []Stage{StageDownload, StageAudio, StageAudioUpload, StageTranscript, StageGeneration, StageClips, StageClipUpload, StageRefinement}
var NoClipStages = []Stage{StageDownload, StageAudio, StageAudioUpload, StageTranscript, StageGeneration, StageRefinement}

type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
)

type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageProcessing StageStatus = "processing"
	StageCompleted  StageStatus = "completed"
	StageSkipped    StageStatus = "skipped"
	StageFailed     StageStatus = "failed"
)

// StageState is one stage's slice of LiveStatus, decoded from its
// `{stage}_*` field group.
type StageState struct {
	Status      StageStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Skipped     bool
	SkipReason  string
}

// LiveStatusRecord is the decoded view of a video's in-flight run.
type LiveStatusRecord struct {
	RequestID       string
	VideoID         string
	Status          RunStatus
	GenerationModel string
	RefinementModel string
	Config          string
	StartedAt       time.Time
	CompletedAt     time.Time
	CurrentStage    Stage
	ErrorStage      Stage
	ErrorMessage    string
	Stages          map[Stage]StageState
	Fields          map[string]string // raw progress/handoff fields not otherwise modeled
}

// Store is the typed accessor over a kv.Client.
type Store struct {
	kv    *kv.Client
	clock config.TimestampGenerator
}

func New(client *kv.Client) *Store {
	return &Store{kv: client, clock: config.Clock}
}

func activeKey(videoID string) string  { return fmt.Sprintf("pipeline:%s:active", videoID) }
func historyKey(videoID string) string { return fmt.Sprintf("pipeline:%s:history", videoID) }
func runKey(requestID string) string   { return fmt.Sprintf("run:%s", requestID) }

func unixStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.Unix(), 10)
}

// InitializeStatus creates the LiveStatus hash for a fresh run, every stage
// pending.
func (s *Store) InitializeStatus(ctx context.Context, videoID, requestID string, generationModel, refinementModel, encodedConfig string, stages []Stage) error {
	fields := map[string]interface{}{
		"request_id":       requestID,
		"video_id":         videoID,
		"status":           string(RunPending),
		"generation_model": generationModel,
		"refinement_model": refinementModel,
		"config":           encodedConfig,
		"started_at":       unixStr(s.clock.GetTime()),
	}
	for _, st := range stages {
		fields[string(st)+"_status"] = string(StagePending)
	}
	return s.kv.HSet(ctx, activeKey(videoID), fields)
}

func (s *Store) MarkStageStarted(ctx context.Context, videoID string, stage Stage) error {
	return s.kv.HSet(ctx, activeKey(videoID), map[string]interface{}{
		string(stage) + "_status":     string(StageProcessing),
		string(stage) + "_started_at": unixStr(s.clock.GetTime()),
		"current_stage":               string(stage),
	})
}

func (s *Store) MarkStageCompleted(ctx context.Context, videoID string, stage Stage) error {
	return s.kv.HSet(ctx, activeKey(videoID), map[string]interface{}{
		string(stage) + "_status":       string(StageCompleted),
		string(stage) + "_completed_at": unixStr(s.clock.GetTime()),
	})
}

func (s *Store) MarkStageSkipped(ctx context.Context, videoID string, stage Stage, reason string) error {
	return s.kv.HSet(ctx, activeKey(videoID), map[string]interface{}{
		string(stage) + "_status":      string(StageSkipped),
		string(stage) + "_skipped":     "true",
		string(stage) + "_skip_reason": reason,
	})
}

func (s *Store) MarkStageFailed(ctx context.Context, videoID string, stage Stage, cause error) error {
	return s.kv.HSet(ctx, activeKey(videoID), map[string]interface{}{
		string(stage) + "_status":       string(StageFailed),
		string(stage) + "_completed_at": unixStr(s.clock.GetTime()),
		"error_stage":                   string(stage),
		"error_message":                 cause.Error(),
	})
}

// UpdatePipelineStatus sets the top-level status, stamping completed_at
// when status is terminal.
func (s *Store) UpdatePipelineStatus(ctx context.Context, videoID string, status RunStatus) error {
	fields := map[string]interface{}{"status": string(status)}
	if status == RunCompleted || status == RunFailed || status == RunCancelled {
		fields["completed_at"] = unixStr(s.clock.GetTime())
	}
	return s.kv.HSet(ctx, activeKey(videoID), fields)
}

func (s *Store) UpdateCurrentStage(ctx context.Context, videoID string, stage Stage) error {
	return s.kv.HSet(ctx, activeKey(videoID), map[string]interface{}{"current_stage": string(stage)})
}

// UpdateProgress writes ad-hoc progress fields (download bytes/total, clip
// counters, and so on) directly; callers pass already-prefixed field names
// so this stays agnostic of any one stage's counters.
func (s *Store) UpdateProgress(ctx context.Context, videoID string, fields map[string]interface{}) error {
	return s.kv.HSet(ctx, activeKey(videoID), fields)
}

func (s *Store) UpdateRefinementProgress(ctx context.Context, videoID string, total, processed, successful int) error {
	return s.kv.HSet(ctx, activeKey(videoID), map[string]interface{}{
		"refinement_total":     strconv.Itoa(total),
		"refinement_processed": strconv.Itoa(processed),
		"refinement_successful": strconv.Itoa(successful),
	})
}

// GetStatus decodes the full LiveStatus hash, or nil if no run is active.
func (s *Store) GetStatus(ctx context.Context, videoID string) (*LiveStatusRecord, error) {
	raw, err := s.kv.HGetAll(ctx, activeKey(videoID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return decodeRecord(videoID, raw), nil
}

func decodeRecord(videoID string, raw map[string]string) *LiveStatusRecord {
	rec := &LiveStatusRecord{
		VideoID:         videoID,
		RequestID:       raw["request_id"],
		Status:          RunStatus(raw["status"]),
		GenerationModel: raw["generation_model"],
		RefinementModel: raw["refinement_model"],
		Config:          raw["config"],
		CurrentStage:    Stage(raw["current_stage"]),
		ErrorStage:      Stage(raw["error_stage"]),
		ErrorMessage:    raw["error_message"],
		StartedAt:       parseUnix(raw["started_at"]),
		CompletedAt:     parseUnix(raw["completed_at"]),
		Stages:          map[Stage]StageState{},
		Fields:          raw,
	}
	for _, st := range Stages {
		prefix := string(st)
		status, ok := raw[prefix+"_status"]
		if !ok {
			continue
		}
		rec.Stages[st] = StageState{
			Status:      StageStatus(status),
			StartedAt:   parseUnix(raw[prefix+"_started_at"]),
			CompletedAt: parseUnix(raw[prefix+"_completed_at"]),
			Skipped:     raw[prefix+"_skipped"] == "true",
			SkipReason:  raw[prefix+"_skip_reason"],
		}
	}
	return rec
}

func parseUnix(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

// ArchiveActiveToHistory moves the active LiveStatus for videoID into a
// TTL'd archived run keyed by request id, indexes it into the video's
// history sorted set, evicts runs beyond HistoryMaxRuns, and deletes the
// active hash. Returns the archived request id.
func (s *Store) ArchiveActiveToHistory(ctx context.Context, videoID string) (string, error) {
	raw, err := s.kv.HGetAll(ctx, activeKey(videoID))
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", pipelineerrors.New(pipelineerrors.ResourceNotFound, "no active run to archive for "+videoID, nil)
	}
	requestID := raw["request_id"]
	if requestID == "" {
		return "", pipelineerrors.New(pipelineerrors.ValidationFailed, "active run missing request_id", nil)
	}

	fields := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		fields[k] = v
	}
	if err := s.kv.HSet(ctx, runKey(requestID), fields); err != nil {
		return "", err
	}
	if _, err := s.kv.Expire(ctx, runKey(requestID), config.HistoryTTL); err != nil {
		return "", err
	}

	completedAt := parseUnix(raw["completed_at"])
	if completedAt.IsZero() {
		completedAt = s.clock.GetTime()
	}
	if err := s.kv.ZAdd(ctx, historyKey(videoID), float64(completedAt.Unix()), requestID); err != nil {
		return "", err
	}
	if err := s.evictExcessHistory(ctx, videoID); err != nil {
		return "", err
	}
	if err := s.kv.Del(ctx, activeKey(videoID)); err != nil {
		return "", err
	}
	return requestID, nil
}

func (s *Store) evictExcessHistory(ctx context.Context, videoID string) error {
	card, err := s.kv.ZCard(ctx, historyKey(videoID))
	if err != nil {
		return err
	}
	excess := card - config.HistoryMaxRuns
	if excess <= 0 {
		return nil
	}
	oldest, err := s.kv.ZRange(ctx, historyKey(videoID), 0, excess-1)
	if err != nil {
		return err
	}
	if len(oldest) == 0 {
		return nil
	}
	members := make([]interface{}, len(oldest))
	runKeys := make([]string, len(oldest))
	for i, id := range oldest {
		members[i] = id
		runKeys[i] = runKey(id)
	}
	if err := s.kv.ZRem(ctx, historyKey(videoID), members...); err != nil {
		return err
	}
	return s.kv.Del(ctx, runKeys...)
}

// GetLatestRun returns the most recently archived run for videoID, nil if
// none exist.
func (s *Store) GetLatestRun(ctx context.Context, videoID string) (*LiveStatusRecord, error) {
	runs, err := s.GetAllRuns(ctx, videoID, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// GetAllRuns returns up to limit archived runs for videoID, newest first.
func (s *Store) GetAllRuns(ctx context.Context, videoID string, limit int64) ([]*LiveStatusRecord, error) {
	if limit <= 0 {
		limit = config.HistoryMaxRuns
	}
	ids, err := s.kv.ZRevRange(ctx, historyKey(videoID), 0, limit-1)
	if err != nil {
		return nil, err
	}
	runs := make([]*LiveStatusRecord, 0, len(ids))
	for _, id := range ids {
		raw, err := s.kv.HGetAll(ctx, runKey(id))
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		runs = append(runs, decodeRecord(videoID, raw))
	}
	return runs, nil
}
