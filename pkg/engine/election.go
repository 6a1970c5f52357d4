package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/peoplehub/ecsync/pkg/store"
)

// Elector campaigns for a named lease so exactly one daemon in a fleet holds
// a role at a time. ecsync-d runs one to pick the maintenance leader when
// several daemons share a tenant through the Redis lease store.
type Elector struct {
	leases store.LeaseStore
	lease  string
	holder string
	ttl    time.Duration

	onPromote func()
	onDemote  func()

	mu      sync.RWMutex
	leading bool

	stop chan struct{}
}

// NewElector returns an elector campaigning for lease as holder. Campaigns
// run at half the TTL so a healthy leader renews well before expiry.
func NewElector(leases store.LeaseStore, lease, holder string, ttl time.Duration) *Elector {
	return &Elector{
		leases: leases,
		lease:  lease,
		holder: holder,
		ttl:    ttl,
		stop:   make(chan struct{}),
	}
}

// OnPromote registers a callback fired when this process gains the lease.
// Set before Start.
func (e *Elector) OnPromote(f func()) { e.onPromote = f }

// OnDemote registers a callback fired when this process loses the lease.
// Set before Start.
func (e *Elector) OnDemote(f func()) { e.onDemote = f }

// Start launches the campaign loop.
func (e *Elector) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.campaign(ctx)
			case <-e.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	slog.Info("elector started", "lease", e.lease, "holder", e.holder)
}

// Stop ends the campaign loop and hands the lease back if this process
// holds it, so the next campaigner does not wait out the TTL.
func (e *Elector) Stop(ctx context.Context) {
	close(e.stop)
	e.mu.Lock()
	held := e.leading
	e.leading = false
	e.mu.Unlock()
	if held {
		if err := e.leases.Release(ctx, e.lease, e.holder); err != nil {
			slog.Error("lease release failed", "lease", e.lease, "error", err)
		}
	}
	slog.Info("elector stopped", "lease", e.lease, "holder", e.holder)
}

// IsLeader reports whether this process held the lease at the last campaign.
func (e *Elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leading
}

// campaign renews when leading and acquires otherwise, then fires the
// transition callback if leadership changed hands.
func (e *Elector) campaign(ctx context.Context) {
	e.mu.Lock()
	was := e.leading
	e.mu.Unlock()

	now := false
	if was {
		if err := e.leases.Renew(ctx, e.lease, e.holder, e.ttl); err != nil {
			slog.Warn("lease renew failed", "lease", e.lease, "error", err)
		} else {
			now = true
		}
	} else {
		ok, err := e.leases.Acquire(ctx, e.lease, e.holder, e.ttl)
		if err != nil {
			slog.Warn("lease acquire failed", "lease", e.lease, "error", err)
		}
		now = ok && err == nil
	}

	e.mu.Lock()
	e.leading = now
	e.mu.Unlock()

	switch {
	case now && !was:
		slog.Info("promoted to leader", "lease", e.lease, "holder", e.holder)
		if e.onPromote != nil {
			e.onPromote()
		}
	case was && !now:
		slog.Info("demoted from leader", "lease", e.lease, "holder", e.holder)
		if e.onDemote != nil {
			e.onDemote()
		}
	}
}
