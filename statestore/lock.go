package statestore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/videomoments/pipeline/config"
)

// LockInfo describes the current holder of a video's exclusive lock.
type LockInfo struct {
	RequestID  string
	OwnerID    string
	AcquiredAt time.Time
}

func lockKey(videoID string) string   { return fmt.Sprintf("lock:%s", videoID) }
func cancelKey(videoID string) string { return fmt.Sprintf("cancel:%s", videoID) }

func encodeLockValue(requestID, ownerID string, acquiredAt time.Time) string {
	return fmt.Sprintf("%s|%s|%d", requestID, ownerID, acquiredAt.Unix())
}

func decodeLockValue(raw string) LockInfo {
	parts := strings.SplitN(raw, "|", 3)
	if len(parts) != 3 {
		return LockInfo{}
	}
	acquiredAt, _ := strconv.ParseInt(parts[2], 10, 64)
	info := LockInfo{RequestID: parts[0], OwnerID: parts[1]}
	if acquiredAt > 0 {
		info.AcquiredAt = time.Unix(acquiredAt, 0)
	}
	return info
}

// AcquireLock atomically claims the per-video lease, returning true iff this
// call created it. ownerID identifies the worker process; requestID the run.
func (s *Store) AcquireLock(ctx context.Context, videoID, requestID, ownerID string) (bool, error) {
	value := encodeLockValue(requestID, ownerID, s.clock.GetTime())
	return s.kv.SetNX(ctx, lockKey(videoID), value, config.LockTTL)
}

// RefreshLock extends the TTL of an already-held lock back to LockTTL. It is
// idempotent and returns false if no lock is currently held.
func (s *Store) RefreshLock(ctx context.Context, videoID string) (bool, error) {
	return s.kv.Expire(ctx, lockKey(videoID), config.LockTTL)
}

// ReleaseLock deletes the lock unconditionally. The caller must be the
// current holder; no compare-and-delete is needed because only the lock
// holder advances a run.
func (s *Store) ReleaseLock(ctx context.Context, videoID string) error {
	return s.kv.Del(ctx, lockKey(videoID))
}

// IsLocked returns the current holder, or nil if the video is unlocked.
func (s *Store) IsLocked(ctx context.Context, videoID string) (*LockInfo, error) {
	raw, found, err := s.kv.Get(ctx, lockKey(videoID))
	if err != nil || !found {
		return nil, err
	}
	info := decodeLockValue(raw)
	return &info, nil
}

func (s *Store) SetCancellation(ctx context.Context, videoID string) error {
	return s.kv.Set(ctx, cancelKey(videoID), "1", config.CancelFlagTTL)
}

func (s *Store) CheckCancellation(ctx context.Context, videoID string) (bool, error) {
	return s.kv.Exists(ctx, cancelKey(videoID))
}

func (s *Store) ClearCancellation(ctx context.Context, videoID string) error {
	return s.kv.Del(ctx, cancelKey(videoID))
}
