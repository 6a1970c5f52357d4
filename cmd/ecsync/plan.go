package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/peoplehub/ecsync/pkg/employee"
	"github.com/peoplehub/ecsync/pkg/engine"
	"github.com/peoplehub/ecsync/pkg/extract"
	"github.com/peoplehub/ecsync/pkg/resolver"
)

// planOutput is the machine-readable form of a plan, for piping into
// orchestrator logs or diffing between runs.
type planOutput struct {
	Summary        resolver.Summary  `json:"summary"`
	Plan           engine.RunPlan    `json:"plan"`
	TotalExisting  int               `json:"total_existing"`
	SourceWarnings []extract.Warning `json:"source_warnings,omitempty"`
	TargetWarnings []extract.Warning `json:"target_warnings,omitempty"`
}

func runPlan(args []string) int {
	flagSet := flag.NewFlagSet("ecsync plan", flag.ContinueOnError)
	flagSource := flagSet.String("source", "", "HR roster CSV with the records to sync")
	flagTarget := flagSet.String("target", "", "Employee Central roster CSV with existing userids")
	flagJSON := flagSet.Bool("json", false, "print the plan as JSON")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if *flagSource == "" || *flagTarget == "" {
		fmt.Println("Error: -source and -target are required")
		return 1
	}

	source, target, err := readRosters(*flagSource, *flagTarget)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	cls, res, err := engine.Preview(source.Records, target.UserIDs())
	if err != nil {
		if errors.Is(err, employee.ErrInvalidInput) {
			fmt.Printf("Error: invalid roster: %v\n", err)
		} else {
			fmt.Printf("Error: %v\n", err)
		}
		return 1
	}

	if *flagJSON {
		out := planOutput{
			Summary: res.Summary,
			Plan: engine.RunPlan{
				Batches:         res.BatchIDs(),
				CycleBatchIndex: res.CycleBatchIndex,
				CycleGroups:     res.CycleGroups,
				Cleared:         res.Cleared,
				Missing:         res.Missing,
			},
			TotalExisting:  len(cls.Existing),
			SourceWarnings: source.Warnings,
			TargetWarnings: target.Warnings,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Printf("Error: failed to encode plan: %v\n", err)
			return 1
		}
		return 0
	}

	printPlan(cls, res, source.Warnings, target.Warnings)
	return 0
}

func printPlan(cls extract.Classification, res *resolver.Resolution, sourceWarn, targetWarn []extract.Warning) {
	fmt.Printf("Plan: %d new, %d existing (%d in source, %d in target)\n",
		res.Summary.TotalNewEmployees, len(cls.Existing), cls.SourceCount, cls.TargetCount)

	fmt.Printf("Batches: %d\n", len(res.Batches))
	for i, ids := range res.BatchIDs() {
		label := fmt.Sprintf("batch %d", i)
		if i == res.CycleBatchIndex {
			label += " (cycle)"
		}
		fmt.Printf("  %s: %s\n", label, strings.Join(ids, ", "))
	}

	if len(res.Cleared) > 0 {
		fmt.Println("Cleared references:")
		for _, c := range res.Cleared {
			fmt.Printf("  %s: %s -> %s\n", c.UserID, c.Field, c.Value)
		}
	}

	if len(res.Missing) > 0 {
		fmt.Println("Missing dependencies:")
		for _, m := range res.Missing {
			fmt.Printf("  %s: %s -> %s\n", m.UserID, m.Field, m.Missing)
		}
	}

	for _, w := range sourceWarn {
		fmt.Printf("Warning (source row %d): %s\n", w.Row, w.Message)
	}
	for _, w := range targetWarn {
		fmt.Printf("Warning (target row %d): %s\n", w.Row, w.Message)
	}
}

// readRosters loads and parses both CSV exports.
func readRosters(sourcePath, targetPath string) (*extract.Roster, *extract.Roster, error) {
	source, err := readRoster(sourcePath)
	if err != nil {
		return nil, nil, fmt.Errorf("source roster: %w", err)
	}
	target, err := readRoster(targetPath)
	if err != nil {
		return nil, nil, fmt.Errorf("target roster: %w", err)
	}
	return source, target, nil
}

func readRoster(path string) (*extract.Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return extract.ReadRoster(f)
}
