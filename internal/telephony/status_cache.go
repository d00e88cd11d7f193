package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// StatusCache keeps recent provider status snapshots in Redis so the
// client's polling loop doesn't turn into carrier API traffic. Best
// effort: any cache failure degrades to an uncached provider read.
type StatusCache struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewStatusCache creates a cache with the given TTL. A nil client yields a
// nil cache, which every method tolerates.
func NewStatusCache(redisClient *redis.Client, ttl time.Duration) *StatusCache {
	if redisClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &StatusCache{
		redis:  redisClient,
		ttl:    ttl,
		tracer: otel.Tracer("healthmatch.internal.telephony.status_cache"),
	}
}

func (c *StatusCache) key(callSID string) string {
	return fmt.Sprintf("call:status:%s", callSID)
}

// Get returns the cached snapshot, or nil on miss or cache failure.
func (c *StatusCache) Get(ctx context.Context, callSID string) *CallStatus {
	if c == nil {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "status_cache.get")
	defer span.End()

	data, err := c.redis.Get(ctx, c.key(callSID)).Bytes()
	if err != nil {
		return nil
	}
	var status CallStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil
	}
	return &status
}

// Set stores a snapshot; failures are ignored.
func (c *StatusCache) Set(ctx context.Context, status *CallStatus) {
	if c == nil || status == nil || status.CallSID == "" {
		return
	}
	ctx, span := c.tracer.Start(ctx, "status_cache.set")
	defer span.End()

	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, c.key(status.CallSID), data, c.ttl).Err()
}
