// Package jobtracker records lightweight, TTL-bound progress for
// sub-tasks that need finer-grained tracking than LiveStatus offers, such
// as one clip-extraction worker inside a multi-clip fan-out.
package jobtracker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/videomoments/pipeline/config"
	"github.com/videomoments/pipeline/kv"
)

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type JobRecord struct {
	Status      JobStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
	Progress    map[string]string
}

type Tracker struct {
	kv    *kv.Client
	clock config.TimestampGenerator
}

func New(client *kv.Client) *Tracker {
	return &Tracker{kv: client, clock: config.Clock}
}

// key builds job:{job_type}:{video_id}[:sub_id].
func key(jobType, videoID, subID string) string {
	if subID == "" {
		return fmt.Sprintf("job:%s:%s", jobType, videoID)
	}
	return fmt.Sprintf("job:%s:%s:%s", jobType, videoID, subID)
}

func unixStr(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }

// Start creates a running job record with the JobLockTTL bound.
func (t *Tracker) Start(ctx context.Context, jobType, videoID, subID string) error {
	k := key(jobType, videoID, subID)
	if err := t.kv.HSet(ctx, k, map[string]interface{}{
		"status":     string(JobRunning),
		"started_at": unixStr(t.clock.GetTime()),
	}); err != nil {
		return err
	}
	_, err := t.kv.Expire(ctx, k, config.JobLockTTL)
	return err
}

// UpdateProgress merges ad-hoc progress counters into the job hash
// without disturbing its status or TTL.
func (t *Tracker) UpdateProgress(ctx context.Context, jobType, videoID, subID string, fields map[string]interface{}) error {
	return t.kv.HSet(ctx, key(jobType, videoID, subID), fields)
}

// Complete marks the job terminal-successful and rebinds its TTL to
// JobResultTTL so readers have a window to observe the final state.
func (t *Tracker) Complete(ctx context.Context, jobType, videoID, subID string) error {
	return t.finish(ctx, jobType, videoID, subID, JobCompleted, "")
}

// Fail marks the job terminal-failed, recording cause.
func (t *Tracker) Fail(ctx context.Context, jobType, videoID, subID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return t.finish(ctx, jobType, videoID, subID, JobFailed, msg)
}

func (t *Tracker) finish(ctx context.Context, jobType, videoID, subID string, status JobStatus, errMsg string) error {
	k := key(jobType, videoID, subID)
	fields := map[string]interface{}{
		"status":       string(status),
		"completed_at": unixStr(t.clock.GetTime()),
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	if err := t.kv.HSet(ctx, k, fields); err != nil {
		return err
	}
	_, err := t.kv.Expire(ctx, k, config.JobResultTTL)
	return err
}

// Get decodes a job record, nil if it has expired or never existed.
func (t *Tracker) Get(ctx context.Context, jobType, videoID, subID string) (*JobRecord, error) {
	raw, err := t.kv.HGetAll(ctx, key(jobType, videoID, subID))
	if err != nil || raw == nil {
		return nil, err
	}
	rec := &JobRecord{
		Status:   JobStatus(raw["status"]),
		Error:    raw["error"],
		Progress: map[string]string{},
	}
	if v, err := strconv.ParseInt(raw["started_at"], 10, 64); err == nil {
		rec.StartedAt = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(raw["completed_at"], 10, 64); err == nil {
		rec.CompletedAt = time.Unix(v, 0)
	}
	for k, v := range raw {
		switch k {
		case "status", "started_at", "completed_at", "error":
		default:
			rec.Progress[k] = v
		}
	}
	return rec, nil
}
