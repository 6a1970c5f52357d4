package employee

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput marks input validation failures that abort a resolution
// run before any scheduling happens.
var ErrInvalidInput = errors.New("invalid input")

// InputError wraps a deterministic input validation failure.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput.Error(), e.Msg)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func inputf(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// Snapshot is the immutable input to one resolution run: the records to
// create, in input order, and the set of userids already present in the
// target system. All ids are canonicalized to lower case on construction,
// matching the case-insensitive identity rules of the source systems.
type Snapshot struct {
	newRecords []Record
	newIDs     map[string]struct{}
	existing   map[string]struct{}
}

// NewSnapshot validates and canonicalizes the two input sets. It fails with
// an InputError on an empty userid or a duplicate userid within or across
// the sets. Dependency field values are lowercased but otherwise untouched.
func NewSnapshot(newRecords []Record, existingIDs []string) (*Snapshot, error) {
	newIDs := make(map[string]struct{}, len(newRecords))

	recs := make([]Record, len(newRecords))
	for i, r := range newRecords {
		id := strings.ToLower(r.UserID)
		if id == "" {
			return nil, inputf("new record at index %d has empty userid", i)
		}
		if _, dup := newIDs[id]; dup {
			return nil, inputf("duplicate userid %q in new records", id)
		}
		newIDs[id] = struct{}{}

		r.UserID = id
		r.Manager = strings.ToLower(r.Manager)
		r.MatrixManager = strings.ToLower(r.MatrixManager)
		r.HR = strings.ToLower(r.HR)
		recs[i] = r
	}

	existing := make(map[string]struct{}, len(existingIDs))
	for i, raw := range existingIDs {
		id := strings.ToLower(raw)
		if id == "" {
			return nil, inputf("existing record at index %d has empty userid", i)
		}
		if _, dup := newIDs[id]; dup {
			return nil, inputf("duplicate userid %q across new and existing records", id)
		}
		if _, dup := existing[id]; dup {
			return nil, inputf("duplicate userid %q in existing records", id)
		}
		existing[id] = struct{}{}
	}

	return &Snapshot{newRecords: recs, newIDs: newIDs, existing: existing}, nil
}

// NewRecords returns the canonicalized records in input order. The returned
// slice is a copy; mutating it does not affect the snapshot.
func (s *Snapshot) NewRecords() []Record {
	out := make([]Record, len(s.newRecords))
	copy(out, s.newRecords)
	return out
}

// Len returns the number of records to create.
func (s *Snapshot) Len() int { return len(s.newRecords) }

// Existing reports whether id (case-insensitive) is already present in the
// target system.
func (s *Snapshot) Existing(id string) bool {
	_, ok := s.existing[strings.ToLower(id)]
	return ok
}

// ExistingCount returns the size of the existing-record set.
func (s *Snapshot) ExistingCount() int { return len(s.existing) }

// IsNew reports whether id (case-insensitive) names one of the records to
// create.
func (s *Snapshot) IsNew(id string) bool {
	_, ok := s.newIDs[strings.ToLower(id)]
	return ok
}
