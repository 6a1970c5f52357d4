//go:build ignore

package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type runRow struct {
	RunID      string
	StartedAt  time.Time
	Status     string
	TotalNew   int
	BatchCount int
}

func main() {
	db, err := sql.Open("sqlite3", "deploy/dogfood/ecsync.db")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT run_id, started_at, status, total_new, batch_count
		FROM sync_runs
		ORDER BY started_at ASC
	`)
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	var runs []runRow
	for rows.Next() {
		var r runRow
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.Status, &r.TotalNew, &r.BatchCount); err != nil {
			log.Fatal(err)
		}
		runs = append(runs, r)
	}

	counts := make(map[string]map[string]int)
	crows, err := db.Query("SELECT run_id, status, count(*) FROM record_outcomes GROUP BY run_id, status")
	if err != nil {
		log.Fatal(err)
	}
	defer crows.Close()
	for crows.Next() {
		var runID, status string
		var n int
		if err := crows.Scan(&runID, &status, &n); err != nil {
			log.Fatal(err)
		}
		if counts[runID] == nil {
			counts[runID] = make(map[string]int)
		}
		counts[runID][status] = n
	}

	fmt.Printf("%-20s | %-24s | %-9s | %-7s | %-7s | %-7s | %-7s | %-7s | %-7s\n",
		"Started", "Run", "Status", "New", "Batches", "Created", "Warning", "Failed", "Skipped")
	fmt.Println("--------------------------------------------------------------------------------------------------------------------")

	for _, r := range runs {
		c := counts[r.RunID]
		fmt.Printf("%-20s | %-24s | %-9s | %-7d | %-7d | %-7d | %-7d | %-7d | %-7d\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.RunID, r.Status, r.TotalNew, r.BatchCount,
			c["created"], c["warning"], c["failed"], c["skipped"])
	}
}
