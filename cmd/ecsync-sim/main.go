package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/peoplehub/ecsync/pkg/simulation"
)

func main() {
	scenarioFile := flag.String("scenario", "", "scenario JSON to run (omit for the built-in demo)")
	seed := flag.Int64("seed", 0, "replace the scenario seed (0 keeps it)")
	asJSON := flag.Bool("json", false, "emit the report as JSON")
	outPath := flag.String("out", "", "write the report to this file instead of stdout")
	flag.Parse()

	scenario, err := loadScenario(*scenarioFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ecsync-sim:", err)
		os.Exit(2)
	}
	if *seed != 0 {
		scenario.Seed = *seed
	}

	result := simulation.RunScenario(scenario)

	report, err := renderReport(result, *asJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ecsync-sim:", err)
		os.Exit(2)
	}
	if err := emit(report, *outPath); err != nil {
		fmt.Fprintln(os.Stderr, "ecsync-sim:", err)
		os.Exit(2)
	}

	if !result.Success {
		os.Exit(1)
	}
}

func loadScenario(path string) (simulation.Scenario, error) {
	if path == "" {
		fmt.Fprintln(os.Stderr, "no -scenario given, using the built-in demo roster")
		return demoScenario(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return simulation.Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	var sc simulation.Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return simulation.Scenario{}, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return sc, nil
}

func demoScenario() simulation.Scenario {
	return simulation.Scenario{
		Name:         "Default Demo",
		Description:  "Mid-size roster with two rings and dangling references",
		Employees:    500,
		Existing:     100,
		ManagerRate:  0.9,
		MatrixRate:   0.4,
		HRRate:       0.6,
		ExistingRate: 0.2,
		Cycles:       []int{2, 3},
		MissingRefs:  5,
	}
}

func renderReport(res simulation.SimulationResult, asJSON bool) ([]byte, error) {
	if asJSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal report: %w", err)
		}
		return out, nil
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\nscenario %s  seed=%d  took=%s\n", res.ScenarioName, res.Seed, res.Duration)
	fmt.Fprintf(&buf, "records: %d new, %d existing; %d batches", res.TotalNew, res.TotalExisting, res.Batches)
	if res.CycleBatch >= 0 {
		fmt.Fprintf(&buf, " (cycle batch at %d)", res.CycleBatch)
	}
	buf.WriteString("\n\ninvariants:\n")
	for _, inv := range res.Invariants {
		status := "FAIL"
		if inv.Passed {
			status = "ok  "
		}
		fmt.Fprintf(&buf, "  %s %s: want %s, have %s\n", status, inv.Name, inv.Expected, inv.Actual)
	}
	return buf.Bytes(), nil
}

func emit(report []byte, path string) error {
	if path == "" {
		os.Stdout.Write(report)
		fmt.Println()
		return nil
	}
	if err := os.WriteFile(path, report, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("report written to %s\n", path)
	return nil
}
