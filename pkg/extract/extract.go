// Package extract loads personnel rosters from CSV exports and classifies a
// source roster against the target system's roster into the records to
// create and the already-present userid set.
package extract

import (
	"strings"

	"github.com/peoplehub/ecsync/pkg/employee"
)

// Classification is the result of diffing a source roster against the
// target system. New holds the source records absent from the target, in
// source order; Existing holds the userids present in both, lowercased.
type Classification struct {
	New      []employee.Record
	Existing []string

	SourceCount int
	TargetCount int
}

// Classify splits the source roster by membership in the target userid set.
// Matching is case-insensitive. Records are passed through unmodified;
// canonicalization and duplicate detection happen when the snapshot is
// built.
func Classify(source []employee.Record, targetIDs []string) Classification {
	target := make(map[string]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		target[strings.ToLower(id)] = struct{}{}
	}

	c := Classification{
		SourceCount: len(source),
		TargetCount: len(target),
	}
	for _, r := range source {
		id := strings.ToLower(r.UserID)
		if _, present := target[id]; present {
			c.Existing = append(c.Existing, id)
		} else {
			c.New = append(c.New, r)
		}
	}
	return c
}
