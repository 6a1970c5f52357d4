// Package redis provides Redis-backed sharing of run inputs and the run
// lease, for deployments where the plan and apply phases run on different
// hosts against one Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peoplehub/ecsync/pkg/employee"
)

const rostersSet = "ecsync:rosters"

// CachedRoster is the classified input of one logical run: the records to
// create plus the existing userid set, as computed at plan time. Caching it
// lets a later apply phase reuse byte-identical inputs.
type CachedRoster struct {
	RunID    string            `json:"run_id"`
	New      []employee.Record `json:"new"`
	Existing []string          `json:"existing"`
	CachedAt time.Time         `json:"cached_at"`
}

// RosterCache stores classified rosters keyed by run id, with a TTL so
// abandoned plans age out. An index set tracks live keys for listing.
type RosterCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRosterCache returns a cache writing entries with the given TTL.
// A zero ttl means entries never expire.
func NewRosterCache(client *redis.Client, ttl time.Duration) *RosterCache {
	return &RosterCache{client: client, ttl: ttl}
}

func (c *RosterCache) makeKey(runID string) string {
	return fmt.Sprintf("ecsync:roster:%s", runID)
}

// Put stores the roster under its run id.
func (c *RosterCache) Put(ctx context.Context, roster *CachedRoster) error {
	data, err := json.Marshal(roster)
	if err != nil {
		return fmt.Errorf("failed to marshal roster: %w", err)
	}
	key := c.makeKey(roster.RunID)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to SET %s: %w", key, err)
	}
	if err := c.client.SAdd(ctx, rostersSet, key).Err(); err != nil {
		return fmt.Errorf("failed to SADD %s: %w", key, err)
	}
	return nil
}

// Get returns the cached roster for a run id, or ok=false when absent or
// expired.
func (c *RosterCache) Get(ctx context.Context, runID string) (*CachedRoster, bool, error) {
	data, err := c.client.Get(ctx, c.makeKey(runID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to GET roster %s: %w", runID, err)
	}
	var roster CachedRoster
	if err := json.Unmarshal([]byte(data), &roster); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal roster %s: %w", runID, err)
	}
	return &roster, true, nil
}

// List returns the run ids with live cache entries. Index members whose
// entries have expired are skipped.
func (c *RosterCache) List(ctx context.Context) ([]string, error) {
	keys, err := c.client.SMembers(ctx, rostersSet).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to SMEMBERS %s: %w", rostersSet, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to MGET roster keys: %w", err)
	}
	var ids []string
	for _, val := range values {
		str, ok := val.(string)
		if !ok {
			continue
		}
		var roster CachedRoster
		if err := json.Unmarshal([]byte(str), &roster); err != nil {
			continue
		}
		ids = append(ids, roster.RunID)
	}
	return ids, nil
}

// Compact removes index members whose entries have expired. Needed because
// SET TTLs never touch set membership, so the index only grows.
func (c *RosterCache) Compact(ctx context.Context) (int, error) {
	keys, err := c.client.SMembers(ctx, rostersSet).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to SMEMBERS %s: %w", rostersSet, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to MGET roster keys: %w", err)
	}
	removed := 0
	for i, val := range values {
		if val != nil {
			continue
		}
		if err := c.client.SRem(ctx, rostersSet, keys[i]).Err(); err != nil {
			return removed, fmt.Errorf("failed to SREM %s: %w", keys[i], err)
		}
		removed++
	}
	return removed, nil
}

// Delete removes one run's entry.
func (c *RosterCache) Delete(ctx context.Context, runID string) error {
	key := c.makeKey(runID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to DEL %s: %w", key, err)
	}
	if err := c.client.SRem(ctx, rostersSet, key).Err(); err != nil {
		return fmt.Errorf("failed to SREM %s: %w", key, err)
	}
	return nil
}

// Clear removes every cached roster and the index set.
func (c *RosterCache) Clear(ctx context.Context) error {
	keys, err := c.client.SMembers(ctx, rostersSet).Result()
	if err != nil {
		return fmt.Errorf("failed to SMEMBERS %s: %w", rostersSet, err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to DEL roster keys: %w", err)
		}
	}
	if err := c.client.Del(ctx, rostersSet).Err(); err != nil {
		return fmt.Errorf("failed to DEL %s: %w", rostersSet, err)
	}
	return nil
}
