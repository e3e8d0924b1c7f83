package orchestrator

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/videomoments/pipeline/concurrency"
	"github.com/videomoments/pipeline/jobtracker"
	"github.com/videomoments/pipeline/kv"
	"github.com/videomoments/pipeline/modelconfig"
	"github.com/videomoments/pipeline/repository"
	"github.com/videomoments/pipeline/stages"
	"github.com/videomoments/pipeline/statestore"
)

type fakeVideos struct{ video *repository.Video }

func (f *fakeVideos) GetByIdentifier(ctx context.Context, videoID string) (*repository.Video, error) {
	return f.video, nil
}
func (f *fakeVideos) Insert(ctx context.Context, v *repository.Video) error {
	f.video = v
	return nil
}

type fakeTranscripts struct{ transcript *repository.Transcript }

func (f *fakeTranscripts) GetByVideoID(ctx context.Context, videoID string) (*repository.Transcript, error) {
	return f.transcript, nil
}
func (f *fakeTranscripts) Insert(ctx context.Context, t *repository.Transcript) error {
	f.transcript = t
	return nil
}

type fakeMoments struct{ moments []repository.Moment }

func (f *fakeMoments) ListByVideoID(ctx context.Context, videoID string) ([]repository.Moment, error) {
	return f.moments, nil
}
func (f *fakeMoments) BulkInsert(ctx context.Context, moments []repository.Moment) error {
	f.moments = append(f.moments, moments...)
	return nil
}
func (f *fakeMoments) UpdateClipPaths(ctx context.Context, momentID, local, cloud string) error {
	for i := range f.moments {
		if f.moments[i].ID == momentID {
			f.moments[i].LocalClipPath = local
			f.moments[i].CloudClipPath = cloud
		}
	}
	return nil
}
func (f *fakeMoments) InsertRefined(ctx context.Context, parentID string, refined repository.Moment) error {
	refined.ParentID = parentID
	f.moments = append(f.moments, refined)
	return nil
}

type fakeGenerationConfigs struct{}

func (f *fakeGenerationConfigs) Insert(ctx context.Context, cfg *repository.GenerationConfig) (string, error) {
	return "genconfig1", nil
}

func newTestDeps(t *testing.T) (*stages.Deps, *fakeVideos, *fakeTranscripts, *fakeMoments) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := kv.NewFromRedisClient(rdb)

	videos := &fakeVideos{}
	transcripts := &fakeTranscripts{}
	moments := &fakeMoments{}

	deps := &stages.Deps{
		Videos:            videos,
		Transcripts:       transcripts,
		Moments:           moments,
		GenerationConfigs: &fakeGenerationConfigs{},
		Limits:            concurrency.New(),
		Status:            statestore.New(client),
		ModelConfigs:      modelconfig.New(client),
		Jobs:              jobtracker.New(client),
		StagingDir:        t.TempDir(),
	}
	return deps, videos, transcripts, moments
}

func TestRunSkipsEveryStageWhenAllWorkAlreadyDone(t *testing.T) {
	ctx := context.Background()
	deps, videos, transcripts, moments := newTestDeps(t)

	require.NoError(t, deps.ModelConfigs.Put(ctx, modelconfig.ModelConfig{
		ModelKey:      "qwen3_vl_fp8",
		SupportsVideo: true,
	}))

	videos.video = &repository.Video{ID: "video1", DurationSeconds: 600}
	transcripts.transcript = &repository.Transcript{VideoID: "video1"}
	moments.moments = []repository.Moment{
		{ID: "m1", VideoID: "video1", CloudClipPath: "video1/clips/m1.mp4"},
	}
	// The refined child makes the parent moment count as already refined.
	moments.moments = append(moments.moments, repository.Moment{ID: "m1-refined", VideoID: "video1", ParentID: "m1", IsRefined: true})

	o := New(deps)
	cfg := stages.DefaultPipelineConfig()
	cfg.RefinementModel = "qwen3_vl_fp8"
	cfg.OverrideExistingMoments = false
	cfg.OverrideExistingRefinement = false

	result, err := o.Run(ctx, "video1", cfg)
	require.NoError(t, err)
	require.True(t, result.Success)

	rec, err := deps.Status.GetStatus(ctx, "video1")
	require.NoError(t, err)
	require.Equal(t, statestore.RunCompleted, rec.Status)
	for _, stage := range statestore.Stages {
		require.Equal(t, statestore.StageSkipped, rec.Stages[stage].Status, "stage %s should have been skipped", stage)
	}
}

func TestRunSelectsNoClipStagesWhenModelDoesNotSupportVideo(t *testing.T) {
	ctx := context.Background()
	deps, videos, transcripts, moments := newTestDeps(t)

	require.NoError(t, deps.ModelConfigs.Put(ctx, modelconfig.ModelConfig{
		ModelKey:      "text_only",
		SupportsVideo: false,
	}))

	videos.video = &repository.Video{ID: "video1", DurationSeconds: 600}
	transcripts.transcript = &repository.Transcript{VideoID: "video1"}
	moments.moments = []repository.Moment{
		{ID: "m1", VideoID: "video1", ParentID: "", IsRefined: false},
	}
	moments.moments = append(moments.moments, repository.Moment{ID: "m1-refined", VideoID: "video1", ParentID: "m1", IsRefined: true})

	o := New(deps)
	cfg := stages.DefaultPipelineConfig()
	cfg.RefinementModel = "text_only"
	cfg.OverrideExistingMoments = false
	cfg.OverrideExistingRefinement = false

	result, err := o.Run(ctx, "video1", cfg)
	require.NoError(t, err)
	require.True(t, result.Success)

	rec, err := deps.Status.GetStatus(ctx, "video1")
	require.NoError(t, err)
	require.Equal(t, statestore.StageSkipped, rec.Stages[statestore.StageClips].Status)
	require.Equal(t, statestore.StageSkipped, rec.Stages[statestore.StageClipUpload].Status)
	require.Equal(t, "Refinement model does not support video", rec.Stages[statestore.StageClips].SkipReason)
}

func TestRunReturnsCancelledAndClearsCancellationFlag(t *testing.T) {
	ctx := context.Background()
	deps, videos, _, _ := newTestDeps(t)

	require.NoError(t, deps.ModelConfigs.Put(ctx, modelconfig.ModelConfig{
		ModelKey:      "qwen3_vl_fp8",
		SupportsVideo: true,
	}))
	videos.video = &repository.Video{ID: "video1", DurationSeconds: 600}
	require.NoError(t, deps.Status.SetCancellation(ctx, "video1"))

	o := New(deps)
	cfg := stages.DefaultPipelineConfig()
	cfg.RefinementModel = "qwen3_vl_fp8"

	result, err := o.Run(ctx, "video1", cfg)
	require.NoError(t, err)
	require.True(t, result.Cancelled)

	cancelled, err := deps.Status.CheckCancellation(ctx, "video1")
	require.NoError(t, err)
	require.False(t, cancelled)

	rec, err := deps.Status.GetStatus(ctx, "video1")
	require.NoError(t, err)
	require.Equal(t, statestore.RunCancelled, rec.Status)
}

func TestRunFailsWhenNoExistingVideoAndNoVideoURL(t *testing.T) {
	ctx := context.Background()
	deps, _, _, _ := newTestDeps(t)

	require.NoError(t, deps.ModelConfigs.Put(ctx, modelconfig.ModelConfig{
		ModelKey:      "qwen3_vl_fp8",
		SupportsVideo: true,
	}))

	o := New(deps)
	cfg := stages.DefaultPipelineConfig()
	cfg.RefinementModel = "qwen3_vl_fp8"
	cfg.VideoURL = ""

	_, err := o.Run(ctx, "video1", cfg)
	require.Error(t, err)
}
