package engine

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/peoplehub/ecsync/pkg/blob"
	"github.com/peoplehub/ecsync/pkg/store"
)

// archivedRun is the document written for each archived run: the run row
// plus its batches and per-record outcomes.
type archivedRun struct {
	Run      *store.Run            `json:"run"`
	Batches  []store.Batch         `json:"batches"`
	Outcomes []store.RecordOutcome `json:"outcomes"`
}

// Archiver copies runs leaving the retention window into a blob store, one
// gzipped JSON document per run. Callers archive before pruning, so run
// history survives the delete.
type Archiver struct {
	store *store.Store
	blobs blob.BlobStore
}

// NewArchiver wires an archiver over the run store and a blob backend.
func NewArchiver(st *store.Store, blobs blob.BlobStore) *Archiver {
	return &Archiver{store: st, blobs: blobs}
}

// Archive writes every run started before cutoff to the blob store and
// returns the number archived. The first failed run aborts the pass so the
// caller can defer pruning; nothing is deleted unarchived.
func (a *Archiver) Archive(ctx context.Context, cutoff time.Time) (int, error) {
	runs, err := a.store.ListRunsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list runs for archival: %w", err)
	}

	for i, run := range runs {
		if err := a.archiveRun(ctx, run); err != nil {
			return i, err
		}
	}
	return len(runs), nil
}

func (a *Archiver) archiveRun(ctx context.Context, run *store.Run) error {
	batches, err := a.store.ListBatches(ctx, run.RunID)
	if err != nil {
		return fmt.Errorf("failed to load batches for %s: %w", run.RunID, err)
	}
	outcomes, err := a.store.ListOutcomes(ctx, run.RunID, "")
	if err != nil {
		return fmt.Errorf("failed to load outcomes for %s: %w", run.RunID, err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(archivedRun{Run: run, Batches: batches, Outcomes: outcomes}); err != nil {
		gz.Close()
		return fmt.Errorf("failed to encode run %s: %w", run.RunID, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress run %s: %w", run.RunID, err)
	}

	key := archiveKey(run)
	if err := a.blobs.Put(ctx, key, &buf); err != nil {
		return fmt.Errorf("failed to store archive %s: %w", key, err)
	}
	return nil
}

// archiveKey partitions archives by start date:
// runs/YYYY/MM/DD/<run_id>.json.gz. Re-archiving a run after a failed prune
// overwrites the same key, so retried passes stay idempotent.
func archiveKey(run *store.Run) string {
	year, month, day := run.StartedAt.UTC().Date()
	return fmt.Sprintf("runs/%04d/%02d/%02d/%s.json.gz", year, int(month), day, run.RunID)
}
