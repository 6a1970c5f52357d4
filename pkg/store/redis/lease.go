package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peoplehub/ecsync/pkg/store"
)

// Lease scripts run server-side so claim, extend, and release are each one
// atomic round trip. go-redis caches them via EVALSHA after the first call.
var (
	// Claim the key if free, extend it if this holder already owns it,
	// otherwise deny. Folding the self-extend into the script closes the
	// gap where a plain SETNX failure races the key's expiry.
	claimScript = redis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if holder == false then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
if holder == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

	dropScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// LeaseStore implements store.LeaseStore on Redis keys with millisecond
// TTLs, so daemons sharing one Redis can coordinate the single-run lease
// and the maintenance-leader role.
type LeaseStore struct {
	client *redis.Client
}

func NewLeaseStore(client *redis.Client) *LeaseStore {
	return &LeaseStore{client: client}
}

func (s *LeaseStore) key(name string) string {
	return "ecsync:lease:" + name
}

func (s *LeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	granted, err := claimScript.Run(ctx, s.client, []string{s.key(name)}, holderID, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to claim lease %s: %w", name, err)
	}
	return granted == 1, nil
}

func (s *LeaseStore) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	extended, err := extendScript.Run(ctx, s.client, []string{s.key(name)}, holderID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lease %s: %w", name, err)
	}
	if extended == 0 {
		return store.ErrLeaseLost
	}
	return nil
}

// Release drops the lease only while holderID owns it. The contract is "not
// held by us afterwards", which also holds when someone else took the key,
// so a zero result is not an error.
func (s *LeaseStore) Release(ctx context.Context, name, holderID string) error {
	if _, err := dropScript.Run(ctx, s.client, []string{s.key(name)}, holderID).Int64(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Get reconstructs the lease from the key's value and remaining TTL; nil
// means nobody holds name. Redis leases carry no CAS version, the key's
// existence is the whole state.
func (s *LeaseStore) Get(ctx context.Context, name string) (*store.Lease, error) {
	holder, err := s.client.Get(ctx, s.key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load lease %s: %w", name, err)
	}

	remaining, err := s.client.PTTL(ctx, s.key(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load lease %s ttl: %w", name, err)
	}

	return &store.Lease{
		Name:      name,
		HolderID:  holder,
		ExpiresAt: time.Now().Add(remaining),
	}, nil
}
