// Package engine executes sync runs end to end: classify the rosters,
// resolve the creation order, persist the plan, create each batch through
// the Employee Central client, and record per-record outcomes. A lease
// keeps concurrent runs off the same store.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/peoplehub/ecsync/pkg/blob"
	"github.com/peoplehub/ecsync/pkg/ec"
	"github.com/peoplehub/ecsync/pkg/employee"
	"github.com/peoplehub/ecsync/pkg/extract"
	"github.com/peoplehub/ecsync/pkg/resolver"
	"github.com/peoplehub/ecsync/pkg/store"
	redisstore "github.com/peoplehub/ecsync/pkg/store/redis"
)

// LeaseName guards against concurrent sync runs on the same store.
const LeaseName = "sync-runner"

// ErrRunInProgress is returned when another holder has the run lease.
var ErrRunInProgress = errors.New("a sync run is already in progress")

// RunPlan is the supplementary plan data stored on the run row alongside
// the summary: batch membership, cycle diagnostics, cleared references.
type RunPlan struct {
	Batches         [][]string                   `json:"batches"`
	CycleBatchIndex int                          `json:"cycle_batch_index"`
	CycleGroups     [][]string                   `json:"cycle_groups,omitempty"`
	Cleared         []resolver.ClearedReference  `json:"cleared_references,omitempty"`
	Missing         []resolver.MissingDependency `json:"missing_dependencies,omitempty"`
}

// Runner executes sync runs. One Runner serves one store; concurrent Run
// calls race for the lease and all but one are refused.
type Runner struct {
	store    *store.Store
	creator  ec.Creator
	leases   store.LeaseStore
	notifier *Notifier
	rosters  *redisstore.RosterCache
	archiver *Archiver
	cfg      Config
	holderID string
}

// NewRunner wires a runner. The lease store may be the SQLite store itself
// or a Redis lease when multiple daemons share one tenant.
func NewRunner(st *store.Store, creator ec.Creator, leases store.LeaseStore, cfg Config) *Runner {
	cfg.Normalize()
	host, _ := os.Hostname()
	r := &Runner{
		store:    st,
		creator:  creator,
		leases:   leases,
		cfg:      cfg,
		holderID: fmt.Sprintf("%s-%d", host, os.Getpid()),
	}
	if cfg.ArchiveDir != "" {
		r.archiver = NewArchiver(st, blob.NewLocalStore(cfg.ArchiveDir))
	}
	return r
}

// SetNotifier attaches a webhook notifier for finished runs.
func (r *Runner) SetNotifier(n *Notifier) { r.notifier = n }

// SetRosterCache attaches a cache that receives each run's classified
// roster for later inspection or replay.
func (r *Runner) SetRosterCache(c *redisstore.RosterCache) { r.rosters = c }

// Preview classifies and resolves without touching the lease or the store.
// It is the read-only half of Run, backing the plan CLI.
func Preview(source []employee.Record, targetIDs []string) (extract.Classification, *resolver.Resolution, error) {
	cls := extract.Classify(source, targetIDs)
	res, err := resolver.Resolve(cls.New, cls.Existing)
	return cls, res, err
}

// Run executes one sync: classify, resolve, persist the plan, create
// batches in dependency order, and record outcomes. The returned run header
// reflects the terminal state; the error reports input problems, a refused
// lease, or an aborted creation phase.
func (r *Runner) Run(ctx context.Context, source []employee.Record, targetIDs []string) (*store.Run, error) {
	ok, err := r.leases.Acquire(ctx, LeaseName, r.holderID, r.cfg.LeaseTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lease: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := r.leases.Release(context.Background(), LeaseName, r.holderID); err != nil {
			log.Printf("Failed to release run lease: %v", err)
		}
	}()

	cls := extract.Classify(source, targetIDs)
	res, err := resolver.Resolve(cls.New, cls.Existing)
	if err != nil {
		// Invalid input fails before a run row exists.
		return nil, err
	}

	run, err := r.persistPlan(ctx, cls, res)
	if err != nil {
		return nil, err
	}
	log.Printf("Run %s planned: %d new, %d existing, %d batches",
		run.RunID, run.TotalNew, run.TotalExisting, run.BatchCount)

	EcsyncCycleRecords.Set(float64(res.Summary.EmployeesInCycles))
	EcsyncMissingDeps.Set(float64(res.Summary.MissingDependencyCount))

	outcomes, runErr := r.createBatches(ctx, run.RunID, res)

	// Finalization must land even when the context died mid-run, or the
	// run row stays "running" forever.
	finCtx := ctx
	if ctx.Err() != nil {
		finCtx = context.Background()
	}

	if err := r.store.InsertOutcomes(finCtx, outcomes); err != nil {
		log.Printf("Failed to insert outcomes for run %s: %v", run.RunID, err)
		if runErr == nil {
			runErr = err
		}
	}
	for _, o := range outcomes {
		EcsyncRecordsTotal.WithLabelValues(string(o.Status)).Inc()
	}

	status := store.RunStatusSucceeded
	errMsg := ""
	if runErr != nil {
		status = store.RunStatusFailed
		errMsg = runErr.Error()
	}
	if err := r.store.FinishRun(finCtx, run.RunID, status, errMsg); err != nil {
		log.Printf("Failed to finish run %s: %v", run.RunID, err)
	}
	EcsyncRunsTotal.WithLabelValues(string(status)).Inc()

	finished, err := r.store.GetRun(finCtx, run.RunID)
	if err != nil || finished == nil {
		finished = run
	}

	r.notifier.RunFinished(finCtx, finished)
	r.prune(finCtx)

	return finished, runErr
}

// persistPlan writes the run header, the resolver outputs, and the planned
// batch rows, and caches the classified roster when a cache is attached.
func (r *Runner) persistPlan(ctx context.Context, cls extract.Classification, res *resolver.Resolution) (*store.Run, error) {
	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	detail, err := json.Marshal(RunPlan{
		Batches:         res.BatchIDs(),
		CycleBatchIndex: res.CycleBatchIndex,
		CycleGroups:     res.CycleGroups,
		Cleared:         res.Cleared,
		Missing:         res.Missing,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan detail: %w", err)
	}

	run := &store.Run{
		RunID:         fmt.Sprintf("run_%d", time.Now().UTC().UnixNano()),
		StartedAt:     time.Now().UTC(),
		Status:        store.RunStatusRunning,
		DryRun:        r.cfg.DryRun,
		TotalNew:      res.Summary.TotalNewEmployees,
		TotalExisting: len(cls.Existing),
		BatchCount:    len(res.Batches),
		Summary:       summary,
		Detail:        detail,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	batches := make([]store.Batch, 0, len(res.Batches))
	for i, ids := range res.BatchIDs() {
		batches = append(batches, store.Batch{
			RunID:      run.RunID,
			BatchIndex: i,
			Size:       len(ids),
			Cycle:      i == res.CycleBatchIndex,
			Members:    ids,
			Status:     store.BatchStatusPlanned,
		})
	}
	if err := r.store.InsertBatches(ctx, batches); err != nil {
		return nil, err
	}

	if r.rosters != nil {
		err := r.rosters.Put(ctx, &redisstore.CachedRoster{
			RunID:    run.RunID,
			New:      cls.New,
			Existing: cls.Existing,
			CachedAt: run.StartedAt,
		})
		if err != nil {
			log.Printf("Failed to cache roster for run %s: %v", run.RunID, err)
		}
	}

	return run, nil
}

// createBatches walks the batches in order. A creator error aborts the run:
// the failed batch's unresolved records and every later batch are recorded
// as skipped, since their prerequisites never landed.
func (r *Runner) createBatches(ctx context.Context, runID string, res *resolver.Resolution) ([]store.RecordOutcome, error) {
	clearedBy := make(map[string][]string)
	for _, c := range res.Cleared {
		clearedBy[c.UserID] = append(clearedBy[c.UserID], string(c.Field))
	}

	outcomes := make([]store.RecordOutcome, 0, res.TotalRecords())
	for i, batch := range res.Batches {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, skipBatches(runID, res, i, clearedBy, "run cancelled")...)
			return outcomes, err
		}

		if err := r.store.MarkBatchStarted(ctx, runID, i); err != nil {
			log.Printf("Failed to mark batch %d started: %v", i, err)
		}

		started := time.Now()
		results, err := r.createBatch(ctx, batch)
		EcsyncBatchSeconds.Observe(time.Since(started).Seconds())

		if err != nil {
			log.Printf("Run %s batch %d aborted: %v", runID, i, err)
			for _, result := range results {
				outcomes = append(outcomes, outcomeFromResult(runID, i, result, clearedBy[result.UserID]))
			}
			if markErr := r.store.MarkBatchFinished(ctx, runID, i, store.BatchStatusFailed); markErr != nil {
				log.Printf("Failed to mark batch %d finished: %v", i, markErr)
			}
			outcomes = append(outcomes, skipBatches(runID, res, i+1, clearedBy, "prerequisite batch aborted")...)
			return outcomes, err
		}

		batchStatus := store.BatchStatusSucceeded
		for _, result := range results {
			if result.Status == ec.StatusFailed {
				batchStatus = store.BatchStatusFailed
			}
			outcomes = append(outcomes, outcomeFromResult(runID, i, result, clearedBy[result.UserID]))
		}
		if err := r.store.MarkBatchFinished(ctx, runID, i, batchStatus); err != nil {
			log.Printf("Failed to mark batch %d finished: %v", i, err)
		}

		if err := r.leases.Renew(ctx, LeaseName, r.holderID, r.cfg.LeaseTTL()); err != nil {
			outcomes = append(outcomes, skipBatches(runID, res, i+1, clearedBy, "run lease lost")...)
			return outcomes, fmt.Errorf("run lease lost: %w", err)
		}
	}
	return outcomes, nil
}

// createBatch shards one batch across the worker budget and creates the
// shards concurrently. Results always cover every record, in batch order:
// a shard whose creator call errors contributes failed results carrying
// the error, and the first such error is returned.
func (r *Runner) createBatch(ctx context.Context, batch []employee.Record) ([]ec.Result, error) {
	shards := shardRecords(batch, r.cfg.Workers)
	shardResults := make([][]ec.Result, len(shards))
	shardErrs := make([]error, len(shards))

	var wg sync.WaitGroup
	for i, shard := range shards {
		wg.Add(1)
		go func(i int, shard []employee.Record) {
			defer wg.Done()
			shardResults[i], shardErrs[i] = r.creator.Create(ctx, shard)
		}(i, shard)
	}
	wg.Wait()

	var firstErr error
	results := make([]ec.Result, 0, len(batch))
	for i, shard := range shards {
		if shardErrs[i] != nil {
			if firstErr == nil {
				firstErr = shardErrs[i]
			}
			for _, rec := range shard {
				results = append(results, ec.Result{
					UserID:  rec.UserID,
					Status:  ec.StatusFailed,
					Message: fmt.Sprintf("creation aborted: %v", shardErrs[i]),
				})
			}
			continue
		}
		results = append(results, shardResults[i]...)
	}
	return results, firstErr
}

// skipBatches produces skipped outcomes for every record from batch index
// `from` onward.
func skipBatches(runID string, res *resolver.Resolution, from int, clearedBy map[string][]string, reason string) []store.RecordOutcome {
	var outcomes []store.RecordOutcome
	for i := from; i < len(res.Batches); i++ {
		for _, rec := range res.Batches[i] {
			outcomes = append(outcomes, store.RecordOutcome{
				RunID:         runID,
				UserID:        rec.UserID,
				BatchIndex:    i,
				Status:        store.OutcomeSkipped,
				Message:       reason,
				ClearedFields: clearedBy[rec.UserID],
			})
		}
	}
	return outcomes
}

func outcomeFromResult(runID string, batchIndex int, result ec.Result, cleared []string) store.RecordOutcome {
	return store.RecordOutcome{
		RunID:         runID,
		UserID:        result.UserID,
		BatchIndex:    batchIndex,
		Status:        outcomeStatus(result.Status),
		Message:       result.Message,
		ClearedFields: cleared,
		Attempts:      result.Attempts,
	}
}

func outcomeStatus(s ec.Status) store.OutcomeStatus {
	switch s {
	case ec.StatusFailed:
		return store.OutcomeFailed
	case ec.StatusWarning:
		return store.OutcomeWarning
	default:
		return store.OutcomeCreated
	}
}

// shardRecords splits records into at most n contiguous shards of near-equal
// size, preserving order.
func shardRecords(records []employee.Record, n int) [][]employee.Record {
	if len(records) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > len(records) {
		n = len(records)
	}
	size := (len(records) + n - 1) / n

	shards := make([][]employee.Record, 0, n)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		shards = append(shards, records[start:end])
	}
	return shards
}

// prune drops runs older than the retention window, archiving them first
// when an archive directory is configured.
func (r *Runner) prune(ctx context.Context) {
	if r.cfg.RetainDays < 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -r.cfg.RetainDays)
	if r.archiver != nil {
		if _, err := r.archiver.Archive(ctx, cutoff); err != nil {
			log.Printf("Failed to archive runs: %v; prune deferred", err)
			return
		}
	}
	n, err := r.store.PruneRuns(ctx, cutoff)
	if err != nil {
		log.Printf("Failed to prune runs: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Pruned %d runs older than %s", n, cutoff.Format(time.RFC3339))
	}
}
