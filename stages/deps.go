package stages

import (
	"github.com/videomoments/pipeline/concurrency"
	"github.com/videomoments/pipeline/connector"
	"github.com/videomoments/pipeline/jobtracker"
	"github.com/videomoments/pipeline/mediatools"
	"github.com/videomoments/pipeline/modelconfig"
	"github.com/videomoments/pipeline/objectstore"
	"github.com/videomoments/pipeline/repository"
	"github.com/videomoments/pipeline/statestore"

	"github.com/videomoments/pipeline/inference"
	"github.com/videomoments/pipeline/transcription"
)

// Deps collects every component a stage executor calls into. The
// orchestrator builds one Deps at worker startup and shares it across
// every run.
type Deps struct {
	Videos            repository.VideoRepository
	Transcripts        repository.TranscriptRepository
	Moments            repository.MomentRepository
	GenerationConfigs  repository.GenerationConfigRepository

	Objects     *objectstore.Store
	Connector   *connector.Connector
	Limits      *concurrency.Limits
	Status      *statestore.Store
	ModelConfigs *modelconfig.Registry
	Jobs         *jobtracker.Tracker

	Transcoder mediatools.Transcoder
	Prober     mediatools.Prober

	Inference     *inference.Client
	Transcription *transcription.Client

	// StagingDir is the local scratch directory stage executors read and
	// write source/audio/clip files under, one subdirectory per video id.
	StagingDir string
}
