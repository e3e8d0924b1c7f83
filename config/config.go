package config

import "time"

var Version string

// Used so that we can generate fixed timestamps in tests
var Clock TimestampGenerator = RealTimestampGenerator{}

// Redis key TTLs and bounds, see the persisted state layout.
const (
	LockTTL            = 30 * time.Minute
	CancelFlagTTL      = 5 * time.Minute
	HistoryTTL         = 24 * time.Hour
	HistoryMaxRuns     = 50
	JobLockTTL         = 30 * time.Minute
	JobResultTTL       = 1 * time.Hour
	StaleReclaimIdle   = 60 * time.Second
	StreamBlockTimeout = 5 * time.Second
)

// Stage-level timeouts.
const (
	TranscriptionCallTimeout = 300 * time.Second
	InferenceCallTimeout     = 600 * time.Second
	GenerationStageTimeout   = 900 * time.Second
	RefinementMomentTimeout  = 600 * time.Second
)

// Default global concurrency bounds, one per stage class. Overridable from
// the CLI for deployments with more or fewer GPUs/encoders available.
var (
	AudioExtractionLimit int64 = 4
	TranscriptionLimit   int64 = 2
	GenerationLimit      int64 = 2
	ClipExtractionLimit  int64 = 4
	RefinementLimit      int64 = 2
)

// Word-aligned clip boundary defaults, see the clip/refinement stages.
const (
	DefaultClipPadding = 30 * time.Second
	DefaultClipMargin  = 2 * time.Second
)

const (
	StreamKey       = "pipeline:requests"
	ConsumerGroup   = "pipeline_workers"
	GenerationModel = "generation_model"
)

// ObjectStoreBucket is the os:// base URL (gs://bucket or s3://bucket)
// stage executors upload source videos, audio, and clips under. Set from
// the CLI; a deployment points this at one bucket per environment.
var ObjectStoreBucket = "gs://videomoments-pipeline"

// StagingDir is the local scratch directory stage executors stream
// downloads, extracted audio, and cut clips through before/after an
// object-store round trip.
var StagingDir = "/tmp/pipeline-staging"

// ObjectUploadTimeout bounds a single object-store upload call.
const ObjectUploadTimeout = 10 * time.Minute
