// Package concurrency holds the process-wide bounded semaphores stage
// executors acquire before doing real work, so a burst of concurrently
// running pipelines can't oversubscribe scarce resources like GPUs or
// CPU encoders.
package concurrency

import (
	"context"

	"github.com/videomoments/pipeline/config"
	"golang.org/x/sync/semaphore"
)

type StageClass string

const (
	AudioExtraction  StageClass = "audio_extraction"
	Transcription    StageClass = "transcription"
	MomentGeneration StageClass = "moment_generation"
	ClipExtraction   StageClass = "clip_extraction"
	Refinement       StageClass = "refinement"
)

// Limits is a singleton set of weighted semaphores, one per stage class.
// Safe for concurrent use by every pipeline running in this process.
type Limits struct {
	sems map[StageClass]*semaphore.Weighted
}

func New() *Limits {
	return &Limits{sems: map[StageClass]*semaphore.Weighted{
		AudioExtraction:  semaphore.NewWeighted(config.AudioExtractionLimit),
		Transcription:    semaphore.NewWeighted(config.TranscriptionLimit),
		MomentGeneration: semaphore.NewWeighted(config.GenerationLimit),
		ClipExtraction:   semaphore.NewWeighted(config.ClipExtractionLimit),
		Refinement:       semaphore.NewWeighted(config.RefinementLimit),
	}}
}

// Permit is a held semaphore slot; the caller must call Release exactly
// once, typically via defer immediately after a successful Acquire.
type Permit struct {
	sem *semaphore.Weighted
}

func (p Permit) Release() {
	p.sem.Release(1)
}

// Acquire blocks until a permit for class is available or ctx is done.
func (l *Limits) Acquire(ctx context.Context, class StageClass) (Permit, error) {
	sem := l.sems[class]
	if err := sem.Acquire(ctx, 1); err != nil {
		return Permit{}, err
	}
	return Permit{sem: sem}, nil
}

// TryAcquire attempts to acquire a permit for class without blocking.
func (l *Limits) TryAcquire(class StageClass) (Permit, bool) {
	sem := l.sems[class]
	if sem.TryAcquire(1) {
		return Permit{sem: sem}, true
	}
	return Permit{}, false
}
