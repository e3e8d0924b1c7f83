// Package worker implements the stream consumer-group loop: it pulls
// pipeline requests off the durable request stream (claiming stale
// in-flight ones first), acquires the per-video run lock, and drives the
// orchestrator through one complete run before acknowledging the
// message.
package worker

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/videomoments/pipeline/config"
	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/videomoments/pipeline/kv"
	"github.com/videomoments/pipeline/orchestrator"
	"github.com/videomoments/pipeline/stages"
	"github.com/videomoments/pipeline/statestore"
)

// storeUnavailableBackoff is how long processMessage waits before leaving a
// StoreUnavailable failure pending for the next xautoclaim/xreadgroup pass.
const storeUnavailableBackoff = 1 * time.Second

// Worker consumes config.StreamKey as consumer group config.ConsumerGroup,
// running one orchestrator pass per message.
type Worker struct {
	kv           *kv.Client
	status       *statestore.Store
	orchestrator *orchestrator.Orchestrator
	consumer     string
	running      int32
}

// New builds a Worker with a consumer name derived from the container id
// (falling back to a random uuid when no hostname is available, the way a
// container id would normally resolve through /etc/hostname).
func New(client *kv.Client, status *statestore.Store, o *orchestrator.Orchestrator) *Worker {
	return NewWithConsumerName(client, status, o, "worker-"+containerID())
}

// NewWithConsumerName builds a Worker advertising an explicit consumer name,
// for deployments that want a stable identity (e.g. a StatefulSet pod name)
// instead of the container-id-derived default.
func NewWithConsumerName(client *kv.Client, status *statestore.Store, o *orchestrator.Orchestrator, consumer string) *Worker {
	return &Worker{
		kv:           client,
		status:       status,
		orchestrator: o,
		consumer:     consumer,
		running:      1,
	}
}

func containerID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return uuid.NewString()
}

// Run ensures the consumer group exists, installs SIGTERM/SIGINT handlers,
// and blocks processing messages until a signal is caught or ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.kv.XGroupCreate(ctx, config.StreamKey, config.ConsumerGroup, "0"); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case s := <-sigCh:
			glog.Infof("worker %s caught signal=%v, draining after current iteration", w.consumer, s)
			atomic.StoreInt32(&w.running, 0)
		case <-ctx.Done():
		}
	}()

	for atomic.LoadInt32(&w.running) == 1 {
		if ctx.Err() != nil {
			return nil
		}
		if err := w.iterate(ctx); err != nil {
			glog.Errorf("worker %s: unexpected error in loop body: %v", w.consumer, err)
			time.Sleep(1 * time.Second)
		}
	}
	return nil
}

// iterate runs one loop pass: first try to reclaim a stale pending
// message, otherwise block for a fresh one.
func (w *Worker) iterate(ctx context.Context) error {
	msgs, _, err := w.kv.XAutoClaim(ctx, config.StreamKey, config.ConsumerGroup, w.consumer, config.StaleReclaimIdle, "0-0", 1)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		msgs, err = w.kv.XReadGroup(ctx, config.StreamKey, config.ConsumerGroup, w.consumer, 1, config.StreamBlockTimeout)
		if err != nil {
			return err
		}
	}
	for _, msg := range msgs {
		w.processMessage(ctx, msg)
	}
	return nil
}

func (w *Worker) processMessage(ctx context.Context, msg redis.XMessage) {
	videoID, _ := msg.Values["video_id"].(string)
	requestID, _ := msg.Values["request_id"].(string)
	encodedConfig, _ := msg.Values["config"].(string)

	if videoID == "" || requestID == "" {
		glog.Errorf("worker %s: discarding malformed message id=%s", w.consumer, msg.ID)
		_ = w.kv.XAck(ctx, config.StreamKey, config.ConsumerGroup, msg.ID)
		return
	}

	cfg, err := stages.DecodeConfig(encodedConfig)
	if err != nil {
		glog.Errorf("worker %s: invalid config for video_id=%s request_id=%s: %v", w.consumer, videoID, requestID, err)
		_ = w.kv.XAck(ctx, config.StreamKey, config.ConsumerGroup, msg.ID)
		return
	}

	locked, err := w.status.AcquireLock(ctx, videoID, requestID, w.consumer)
	if err != nil {
		glog.Errorf("worker %s: failed acquiring lock for video_id=%s: %v", w.consumer, videoID, err)
		return
	}
	if !locked {
		glog.Infof("worker %s: video_id=%s already locked by another worker, skipping without ack", w.consumer, videoID)
		return
	}

	retry := false

	func() {
		defer func() {
			if _, err := w.status.ArchiveActiveToHistory(ctx, videoID); err != nil {
				glog.Errorf("worker %s: failed archiving run for video_id=%s: %v", w.consumer, videoID, err)
			}
		}()
		defer func() {
			if err := w.status.ReleaseLock(ctx, videoID); err != nil {
				glog.Errorf("worker %s: failed releasing lock for video_id=%s: %v", w.consumer, videoID, err)
			}
		}()

		if err := w.status.InitializeStatus(ctx, videoID, requestID, cfg.GenerationModel, cfg.RefinementModel, encodedConfig, statestore.Stages); err != nil {
			glog.Errorf("worker %s: failed initializing status for video_id=%s: %v", w.consumer, videoID, err)
			retry = !pipelineerrors.IsUnretriable(err)
			return
		}

		result, err := w.orchestrator.Run(ctx, videoID, cfg)
		if err != nil {
			glog.Errorf("worker %s: orchestrator error for video_id=%s request_id=%s: %v", w.consumer, videoID, requestID, err)
			retry = !pipelineerrors.IsUnretriable(err)
			return
		}
		if !result.Success && !result.Cancelled {
			glog.Infof("worker %s: video_id=%s request_id=%s failed at stage=%s", w.consumer, videoID, requestID, result.FailedStage)
		}
	}()

	if retry {
		glog.Infof("worker %s: leaving video_id=%s request_id=%s pending after a retriable store error, backing off", w.consumer, videoID, requestID)
		time.Sleep(storeUnavailableBackoff)
		return
	}

	if err := w.kv.XAck(ctx, config.StreamKey, config.ConsumerGroup, msg.ID); err != nil {
		glog.Errorf("worker %s: failed acking message id=%s: %v", w.consumer, msg.ID, err)
	}
}

// Submit writes a new pipeline request onto the stream, for callers (the
// API surface outside this pass's scope) that enqueue work.
func Submit(ctx context.Context, client *kv.Client, videoID string, cfg stages.PipelineConfig) (string, error) {
	encoded, err := stages.EncodeConfig(cfg)
	if err != nil {
		return "", err
	}
	requestID := uuid.NewString()
	_, err = client.XAdd(ctx, config.StreamKey, map[string]interface{}{
		"request_id": requestID,
		"video_id":   videoID,
		"config":     encoded,
	})
	if err != nil {
		return "", err
	}
	return requestID, nil
}
