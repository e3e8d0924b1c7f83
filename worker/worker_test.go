package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/videomoments/pipeline/concurrency"
	"github.com/videomoments/pipeline/config"
	"github.com/videomoments/pipeline/jobtracker"
	"github.com/videomoments/pipeline/kv"
	"github.com/videomoments/pipeline/modelconfig"
	"github.com/videomoments/pipeline/orchestrator"
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
	return nil
}
func (f *fakeMoments) InsertRefined(ctx context.Context, parentID string, refined repository.Moment) error {
	f.moments = append(f.moments, refined)
	return nil
}

type fakeGenerationConfigs struct{}

func (f *fakeGenerationConfigs) Insert(ctx context.Context, cfg *repository.GenerationConfig) (string, error) {
	return "genconfig1", nil
}

func newTestWorker(t *testing.T) (*Worker, *kv.Client, *statestore.Store, *fakeVideos, *fakeMoments, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := kv.NewFromRedisClient(rdb)

	videos := &fakeVideos{}
	moments := &fakeMoments{}
	status := statestore.New(client)
	models := modelconfig.New(client)
	require.NoError(t, models.Put(context.Background(), modelconfig.ModelConfig{
		ModelKey:      "qwen3_vl_fp8",
		SupportsVideo: true,
	}))

	deps := &stages.Deps{
		Videos:            videos,
		Transcripts:       &fakeTranscripts{},
		Moments:           moments,
		GenerationConfigs: &fakeGenerationConfigs{},
		Limits:            concurrency.New(),
		Status:            status,
		ModelConfigs:      models,
		Jobs:              jobtracker.New(client),
		StagingDir:        t.TempDir(),
	}
	o := orchestrator.New(deps)
	w := New(client, status, o)
	return w, client, status, videos, moments, mr
}

// allWorkDone sets up a video whose every stage is already complete, so the
// orchestrator finishes in one pass without reaching out to ffmpeg, the
// connector, or any network dependency.
func allWorkDone(videos *fakeVideos, moments *fakeMoments, videoID string) {
	videos.video = &repository.Video{ID: videoID, DurationSeconds: 600}
	moments.moments = []repository.Moment{
		{ID: "m1", VideoID: videoID, CloudClipPath: videoID + "/clips/m1.mp4"},
		{ID: "m1-refined", VideoID: videoID, ParentID: "m1", IsRefined: true},
	}
}

func TestProcessMessageRunsOrchestratorAndAcksOnSuccess(t *testing.T) {
	ctx := context.Background()
	w, client, status, videos, moments, _ := newTestWorker(t)
	videoID := "video1"
	allWorkDone(videos, moments, videoID)

	cfg := stages.DefaultPipelineConfig()
	cfg.VideoID = videoID
	cfg.RefinementModel = "qwen3_vl_fp8"
	cfg.OverrideExistingMoments = false
	cfg.OverrideExistingRefinement = false
	encoded, err := stages.EncodeConfig(cfg)
	require.NoError(t, err)

	require.NoError(t, client.XGroupCreate(ctx, config.StreamKey, config.ConsumerGroup, "0"))
	id, err := client.XAdd(ctx, config.StreamKey, map[string]interface{}{
		"request_id": "req1",
		"video_id":   videoID,
		"config":     encoded,
	})
	require.NoError(t, err)

	msgs, err := client.XReadGroup(ctx, config.StreamKey, config.ConsumerGroup, w.consumer, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, id, msgs[0].ID)

	w.processMessage(ctx, msgs[0])

	pending, err := client.XPendingCount(ctx, config.StreamKey, config.ConsumerGroup)
	require.NoError(t, err)
	require.Zero(t, pending, "message should have been acked")

	rec, err := status.GetLatestRun(ctx, videoID)
	require.NoError(t, err)
	require.NotNil(t, rec, "the completed run should have been archived to history")
	require.Equal(t, statestore.RunCompleted, rec.Status)

	locked, err := status.IsLocked(ctx, videoID)
	require.NoError(t, err)
	require.Nil(t, locked, "lock must be released once the run finishes")
}

func TestProcessMessageSkipsWithoutAckingWhenAlreadyLocked(t *testing.T) {
	ctx := context.Background()
	w, client, status, videos, moments, _ := newTestWorker(t)
	videoID := "video1"
	allWorkDone(videos, moments, videoID)

	held, err := status.AcquireLock(ctx, videoID, "other-request", "other-owner")
	require.NoError(t, err)
	require.True(t, held)

	cfg := stages.DefaultPipelineConfig()
	cfg.VideoID = videoID
	cfg.RefinementModel = "qwen3_vl_fp8"
	encoded, err := stages.EncodeConfig(cfg)
	require.NoError(t, err)

	require.NoError(t, client.XGroupCreate(ctx, config.StreamKey, config.ConsumerGroup, "0"))
	_, err = client.XAdd(ctx, config.StreamKey, map[string]interface{}{
		"request_id": "req2",
		"video_id":   videoID,
		"config":     encoded,
	})
	require.NoError(t, err)

	msgs, err := client.XReadGroup(ctx, config.StreamKey, config.ConsumerGroup, w.consumer, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	w.processMessage(ctx, msgs[0])

	pending, err := client.XPendingCount(ctx, config.StreamKey, config.ConsumerGroup)
	require.NoError(t, err)
	require.Equal(t, int64(1), pending, "message must stay pending since this worker never acquired the lock")
}

func TestContainerIDFallsBackToNonEmptyValue(t *testing.T) {
	id := containerID()
	require.NotEmpty(t, id)
}
