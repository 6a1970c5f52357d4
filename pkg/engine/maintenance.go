package engine

import (
	"context"
	"log"
	"time"

	"github.com/peoplehub/ecsync/pkg/blob"
	"github.com/peoplehub/ecsync/pkg/store"
	redisstore "github.com/peoplehub/ecsync/pkg/store/redis"
)

// Maintainer periodically enforces the run-history retention policy. The
// runner also prunes after each run; this worker covers long idle stretches
// where no runs happen.
type Maintainer struct {
	store    *store.Store
	rosters  *redisstore.RosterCache
	archiver *Archiver
	leader   func() bool
	cfg      Config
	interval time.Duration
}

// NewMaintainer returns a worker pruning on an hourly cadence. When the
// config names an archive directory, runs are archived there before they
// are pruned.
func NewMaintainer(st *store.Store, cfg Config) *Maintainer {
	cfg.Normalize()
	m := &Maintainer{
		store:    st,
		cfg:      cfg,
		interval: 1 * time.Hour,
	}
	if cfg.ArchiveDir != "" {
		m.archiver = NewArchiver(st, blob.NewLocalStore(cfg.ArchiveDir))
	}
	return m
}

// SetRosterCache attaches a cache whose index is compacted alongside each
// prune pass.
func (m *Maintainer) SetRosterCache(c *redisstore.RosterCache) { m.rosters = c }

// SetLeaderCheck gates passes on leadership. With several daemons sharing
// one tenant, only the current leader runs maintenance.
func (m *Maintainer) SetLeaderCheck(f func() bool) { m.leader = f }

// SetInterval overrides the pass cadence. Non-positive values are ignored.
func (m *Maintainer) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// Run blocks until the context is cancelled, pruning once immediately and
// then on every tick.
func (m *Maintainer) Run(ctx context.Context) {
	if m.cfg.RetainDays < 0 {
		log.Println("Run pruning disabled")
		return
	}

	log.Printf("Starting maintenance worker (interval: %v, retain: %dd)", m.interval, m.cfg.RetainDays)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Maintenance worker stopping")
			return
		case <-ticker.C:
			m.Prune(ctx)
		}
	}
}

// Prune runs one maintenance pass: archive runs leaving retention, drop
// their rows, and compact the roster cache index.
func (m *Maintainer) Prune(ctx context.Context) {
	if m.cfg.RetainDays < 0 {
		return
	}
	if m.leader != nil && !m.leader() {
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.RetainDays)
	if m.archivePass(ctx, cutoff) {
		deleted, err := m.store.PruneRuns(ctx, cutoff)
		if err != nil {
			log.Printf("Prune error: %v", err)
		} else if deleted > 0 {
			log.Printf("Pruned %d runs older than %d days", deleted, m.cfg.RetainDays)
		}
	}

	if m.rosters != nil {
		removed, err := m.rosters.Compact(ctx)
		if err != nil {
			log.Printf("Roster cache compact error: %v", err)
		} else if removed > 0 {
			log.Printf("Compacted %d expired roster cache entries", removed)
		}
	}
}

// archivePass reports whether pruning may proceed. Runs are only deleted
// once their archive documents landed.
func (m *Maintainer) archivePass(ctx context.Context, cutoff time.Time) bool {
	if m.archiver == nil {
		return true
	}
	archived, err := m.archiver.Archive(ctx, cutoff)
	if err != nil {
		log.Printf("Archive error: %v; prune deferred", err)
		return false
	}
	if archived > 0 {
		log.Printf("Archived %d runs to %s", archived, m.cfg.ArchiveDir)
	}
	return true
}
