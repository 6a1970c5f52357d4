package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	db, err := sql.Open("sqlite3", "deploy/dogfood/ecsync.db")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	var totalRuns int
	err = db.QueryRow("SELECT count(*) FROM sync_runs").Scan(&totalRuns)
	if err != nil {
		log.Fatal(err)
	}

	var succeeded int
	err = db.QueryRow("SELECT count(*) FROM sync_runs WHERE status = 'succeeded'").Scan(&succeeded)
	if err != nil {
		log.Fatal(err)
	}

	var batches int
	err = db.QueryRow("SELECT count(*) FROM sync_batches").Scan(&batches)
	if err != nil {
		log.Fatal(err)
	}

	var outcomes int
	err = db.QueryRow("SELECT count(*) FROM record_outcomes").Scan(&outcomes)
	if err != nil {
		log.Fatal(err)
	}

	var orphanBatches int
	err = db.QueryRow("SELECT count(*) FROM sync_batches WHERE run_id NOT IN (SELECT run_id FROM sync_runs)").Scan(&orphanBatches)
	if err != nil {
		log.Fatal(err)
	}

	var orphanOutcomes int
	err = db.QueryRow("SELECT count(*) FROM record_outcomes WHERE run_id NOT IN (SELECT run_id FROM sync_runs)").Scan(&orphanOutcomes)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Total runs: %d (%d succeeded)\n", totalRuns, succeeded)
	fmt.Printf("Batches: %d, outcomes: %d\n", batches, outcomes)
	fmt.Printf("Orphan batches: %d, orphan outcomes: %d\n", orphanBatches, orphanOutcomes)

	if orphanBatches > 0 || orphanOutcomes > 0 {
		log.Fatal("orphan rows found; pruning left the store inconsistent")
	}
}
