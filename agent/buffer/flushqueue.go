package buffer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimScript removes a due member and reports whether this caller won it.
var claimScript = redis.NewScript(`
local score = redis.call("ZSCORE", KEYS[1], ARGV[1])
if not score then
  return 0
end
if tonumber(score) > tonumber(ARGV[2]) then
  return 0
end
return redis.call("ZREM", KEYS[1], ARGV[1])
`)

// FlushQueue is the shared schedule of pending flushes: a sorted set of
// "tenant:lead" members scored by their due time in milliseconds, plus a
// small metadata record per member.
type FlushQueue struct {
	client redis.UniversalClient
	prefix string
}

func NewFlushQueue(client redis.UniversalClient, prefix string) (*FlushQueue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "buffer"
	}
	return &FlushQueue{client: client, prefix: prefix}, nil
}

func (q *FlushQueue) queueKey() string {
	return q.prefix + ":flush_queue"
}

func (q *FlushQueue) metaKey(member string) string {
	return q.prefix + ":meta:" + member
}

// Member encodes (tenant, lead). Tenant ids must not contain ':'.
func Member(tenantID, leadID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	leadID = strings.TrimSpace(leadID)
	if tenantID == "" || leadID == "" {
		return "", ErrEmptyKey
	}
	if strings.Contains(tenantID, ":") {
		return "", fmt.Errorf("%w: tenant id %q contains ':'", ErrEmptyKey, tenantID)
	}
	return tenantID + ":" + leadID, nil
}

// SplitMember is the inverse of Member.
func SplitMember(member string) (tenantID, leadID string, ok bool) {
	tenantID, leadID, ok = strings.Cut(member, ":")
	if !ok || tenantID == "" || leadID == "" {
		return "", "", false
	}
	return tenantID, leadID, true
}

// Schedule sets (or moves) the due time of b's window and stores its
// metadata with the given expiry.
func (q *FlushQueue) Schedule(ctx context.Context, b Batch, due time.Time, metaTTL time.Duration) error {
	member, err := Member(b.TenantID, b.LeadID)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal flush meta: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, q.queueKey(), redis.Z{Score: float64(due.UnixMilli()), Member: member})
		pipe.Set(ctx, q.metaKey(member), meta, metaTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("schedule flush: %w", err)
	}
	return nil
}

// Due lists up to limit members whose due time is at or before now.
func (q *FlushQueue) Due(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	members, err := q.client.ZRangeByScore(ctx, q.queueKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due flushes: %w", err)
	}
	return members, nil
}

// Claim atomically removes member when it is due. Exactly one concurrent
// caller observes true for a given schedule.
func (q *FlushQueue) Claim(ctx context.Context, member string, now time.Time) (bool, error) {
	n, err := claimScript.Run(ctx, q.client, []string{q.queueKey()}, member, now.UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("claim flush: %w", err)
	}
	return n == 1, nil
}

// TakeMeta returns and deletes the metadata of member. A missing record
// yields a Batch carrying only the key.
func (q *FlushQueue) TakeMeta(ctx context.Context, member string) (Batch, error) {
	tenantID, leadID, ok := SplitMember(member)
	if !ok {
		return Batch{}, fmt.Errorf("%w: malformed member %q", ErrEmptyKey, member)
	}
	fallback := Batch{TenantID: tenantID, LeadID: leadID}

	raw, err := q.client.GetDel(ctx, q.metaKey(member)).Bytes()
	if errors.Is(err, redis.Nil) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("take flush meta: %w", err)
	}

	var b Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return fallback, fmt.Errorf("decode flush meta: %w", err)
	}
	b.TenantID, b.LeadID = tenantID, leadID
	return b, nil
}
