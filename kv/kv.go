// Package kv wraps a pooled Redis client with the primitive operations the
// rest of the pipeline control plane builds on: strings, hashes, sets,
// sorted sets, and consumer-group streams. Every higher-level store
// (statestore, lock, jobtracker, modelconfig) is a typed accessor over
// this package; nothing here knows what a video, stage, or run is.
package kv

import (
	"context"
	"fmt"
	"time"

	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/redis/go-redis/v9"
)

// Client is a thin, context-propagating wrapper over *redis.Client. It adds
// nothing beyond error classification: every connection-level failure is
// reported as a StoreUnavailable kind so callers can distinguish "the store
// is down" from "the key didn't exist" without inspecting driver errors.
type Client struct {
	rdb *redis.Client
}

// Options configures the underlying connection pool.
type Options struct {
	Addr     string
	Password string
	DB       int
	// PoolSize defaults to 10 connections, matching the pool size the
	// store is sized for under worst-case concurrent stage fan-out.
	PoolSize int
}

func New(opts Options) *Client {
	poolSize := opts.PoolSize
	if poolSize == 0 {
		poolSize = 10
	}
	return &Client{rdb: redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: poolSize,
	})}
}

// NewFromRedisClient wraps an already-constructed *redis.Client, the seam
// tests use to point a Client at a miniredis instance.
func NewFromRedisClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func storeErr(op string, err error) error {
	if err == nil || err == redis.Nil {
		return nil
	}
	return pipelineerrors.New(pipelineerrors.StoreUnavailable, fmt.Sprintf("kv %s failed", op), err)
}

// --- strings ---

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("GET", err)
	}
	return val, true, nil
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return storeErr("SET", err)
	}
	return nil
}

// SetNX sets key to value with the given TTL only if it does not already
// exist, returning true iff this call created it. The basis for exclusive
// per-video locking and cancellation flags.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, storeErr("SETNX", err)
	}
	return ok, nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return storeErr("DEL", err)
	}
	return nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, storeErr("EXISTS", err)
	}
	return n > 0, nil
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, storeErr("EXPIRE", err)
	}
	return ok, nil
}

func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, storeErr("TTL", err)
	}
	return d, nil
}

// --- hashes ---

// HSet performs an atomic multi-field set of every entry in fields; an
// empty map is a no-op.
func (c *Client) HSet(ctx context.Context, key string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	if err := c.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return storeErr("HSET", err)
	}
	return nil
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := c.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("HGET", err)
	}
	return val, true, nil
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	vals, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, storeErr("HGETALL", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals, nil
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := c.rdb.HDel(ctx, key, fields...).Err(); err != nil {
		return storeErr("HDEL", err)
	}
	return nil
}

// --- sets ---

func (c *Client) SAdd(ctx context.Context, key string, members ...interface{}) error {
	if len(members) == 0 {
		return nil
	}
	if err := c.rdb.SAdd(ctx, key, members...).Err(); err != nil {
		return storeErr("SADD", err)
	}
	return nil
}

func (c *Client) SRem(ctx context.Context, key string, members ...interface{}) error {
	if len(members) == 0 {
		return nil
	}
	if err := c.rdb.SRem(ctx, key, members...).Err(); err != nil {
		return storeErr("SREM", err)
	}
	return nil
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, storeErr("SMEMBERS", err)
	}
	return members, nil
}

// --- sorted sets ---

func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return storeErr("ZADD", err)
	}
	return nil
}

func (c *Client) ZRem(ctx context.Context, key string, members ...interface{}) error {
	if len(members) == 0 {
		return nil
	}
	if err := c.rdb.ZRem(ctx, key, members...).Err(); err != nil {
		return storeErr("ZREM", err)
	}
	return nil
}

func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, storeErr("ZCARD", err)
	}
	return n, nil
}

// ZRange returns members in ascending score order (oldest first), the
// ordering history eviction walks to find excess entries.
func (c *Client) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := c.rdb.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, storeErr("ZRANGE", err)
	}
	return vals, nil
}

// ZRevRange returns members in descending score order (newest first), used
// for reading recent history runs.
func (c *Client) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := c.rdb.ZRevRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, storeErr("ZREVRANGE", err)
	}
	return vals, nil
}

// --- streams ---

func (c *Client) XAdd(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
	if err != nil {
		return "", storeErr("XADD", err)
	}
	return id, nil
}

// XGroupCreate creates a consumer group at the given start position,
// tolerating the group already existing (BUSYGROUP).
func (c *Client) XGroupCreate(ctx context.Context, stream, group, start string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if err != nil && !isBusyGroupErr(err) {
		return storeErr("XGROUP CREATE", err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// XReadGroup blocks up to block for new entries delivered to consumer
// within group, reading at most count entries never before delivered to
// this group (">" semantics).
func (c *Client) XReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]redis.XMessage, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("XREADGROUP", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res[0].Messages, nil
}

func (c *Client) XAck(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.rdb.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return storeErr("XACK", err)
	}
	return nil
}

func (c *Client) XDel(ctx context.Context, stream string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.rdb.XDel(ctx, stream, ids...).Err(); err != nil {
		return storeErr("XDEL", err)
	}
	return nil
}

// XAutoClaim reclaims pending entries idle longer than minIdle, assigning
// them to consumer within group. Returns the claimed messages and a cursor
// to continue scanning from.
func (c *Client) XAutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, start string, count int64) ([]redis.XMessage, string, error) {
	msgs, cursor, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    start,
		Count:    count,
	}).Result()
	if err != nil {
		return nil, "", storeErr("XAUTOCLAIM", err)
	}
	return msgs, cursor, nil
}

// XPendingCount returns the number of entries delivered to group but not
// yet acknowledged.
func (c *Client) XPendingCount(ctx context.Context, stream, group string) (int64, error) {
	summary, err := c.rdb.XPending(ctx, stream, group).Result()
	if err != nil {
		return 0, storeErr("XPENDING", err)
	}
	return summary.Count, nil
}
