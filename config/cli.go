package config

import "time"

// Cli holds every flag/env-settable tunable the pipeline-worker binary
// accepts, populated by cmd/pipeline-worker/main.go via peterbourgon/ff.
type Cli struct {
	RedisURL           string
	PostgresDSN        string
	WorkerID           string
	PromPort           int
	ObjectStoreBucket  string
	StagingDir         string
	FFmpegPath         string
	LockTTL            time.Duration
	HistoryMaxRuns     int
	AudioLimit         int64
	TranscriptionLimit int64
	GenerationLimit    int64
	ClipLimit          int64
	RefinementLimit    int64
}
