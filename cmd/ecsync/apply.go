package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peoplehub/ecsync/pkg/ec"
	"github.com/peoplehub/ecsync/pkg/employee"
	"github.com/peoplehub/ecsync/pkg/engine"
	"github.com/peoplehub/ecsync/pkg/store"
	redisstore "github.com/peoplehub/ecsync/pkg/store/redis"
)

func runApply(args []string) int {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Printf("Error: determine working directory: %v\n", err)
		return 1
	}

	flagSet := flag.NewFlagSet("ecsync apply", flag.ContinueOnError)
	flagSource := flagSet.String("source", "", "HR roster CSV with the records to sync")
	flagTarget := flagSet.String("target", "", "Employee Central roster CSV with existing userids")
	flagConfig := flagSet.String("config", lookupEnv(filepath.Join(cwd, "ecsync.json"), "ECSYNC_CONFIG_PATH"), "sync config file")
	flagDB := flagSet.String("db", lookupEnv(filepath.Join(cwd, "ecsync.db"), "ECSYNC_DB_PATH"), "run history database")
	flagRedis := flagSet.String("redis", lookupEnv("", "ECSYNC_REDIS_ADDR", "REDIS_ADDR"), "redis address for the roster cache (empty disables caching)")
	flagDryRun := flagSet.Bool("dry-run", false, "resolve and record the run without calling the tenant")

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
	if len(source.Warnings) > 0 || len(target.Warnings) > 0 {
		fmt.Printf("Warnings: %d source rows, %d target rows (run plan for details)\n",
			len(source.Warnings), len(target.Warnings))
	}

	cfgPath := absolutize(cwd, *flagConfig)
	var runCfg engine.Config
	loaded, err := engine.LoadConfig(cfgPath)
	switch {
	case err == nil:
		runCfg = *loaded
	case errors.Is(err, os.ErrNotExist) && *flagDryRun:
		// Dry runs need no tenant connection, so a missing config is fine.
	case errors.Is(err, os.ErrNotExist):
		fmt.Printf("Error: config not found: %s (required unless -dry-run)\n", cfgPath)
		return 1
	default:
		fmt.Printf("Error: invalid config: %v\n", err)
		return 1
	}
	if *flagDryRun {
		runCfg.DryRun = true
	}

	st, err := store.NewStore(absolutize(cwd, *flagDB))
	if err != nil {
		fmt.Printf("Error: failed to open store: %v\n", err)
		return 1
	}
	defer st.Close()

	var creator ec.Creator
	if runCfg.DryRun {
		creator = ec.NewMockCreator()
	} else {
		secret := os.Getenv("ECSYNC_EC_SECRET")
		if secret == "" {
			fmt.Println("Error: ECSYNC_EC_SECRET is not set")
			return 1
		}
		if runCfg.EC.BaseURL == "" || runCfg.EC.AuthURL == "" {
			fmt.Printf("Error: config %s is missing the ec connection block\n", cfgPath)
			return 1
		}
		creator = ec.NewClient(runCfg.EC.ClientConfig(secret))
	}

	runner := engine.NewRunner(st, creator, st, runCfg)
	if len(runCfg.WebhookURLs) > 0 {
		runner.SetNotifier(engine.NewNotifier(runCfg.WebhookURLs))
	}

	if *flagRedis != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *flagRedis})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			fmt.Printf("Error: redis unreachable at %s: %v\n", *flagRedis, err)
			return 1
		}
		runner.SetRosterCache(redisstore.NewRosterCache(rdb, 24*time.Hour))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		fmt.Printf("Received %s, cancelling run\n", sig)
		cancel()
	}()

	run, runErr := runner.Run(ctx, source.Records, target.UserIDs())
	if run == nil {
		// Input and lease problems fail before a run row exists.
		switch {
		case errors.Is(runErr, engine.ErrRunInProgress):
			fmt.Println("Error: a sync run is already in progress")
		case errors.Is(runErr, employee.ErrInvalidInput):
			fmt.Printf("Error: invalid roster: %v\n", runErr)
		default:
			fmt.Printf("Error: %v\n", runErr)
		}
		return 1
	}

	printRun(st, run, runErr)
	if runErr != nil {
		return 1
	}
	return 0
}

func printRun(st *store.Store, run *store.Run, runErr error) {
	mode := ""
	if run.DryRun {
		mode = " (dry run)"
	}
	fmt.Printf("Run %s %s%s\n", run.RunID, run.Status, mode)
	fmt.Printf("  new: %d  existing: %d  batches: %d\n", run.TotalNew, run.TotalExisting, run.BatchCount)

	counts, err := st.CountOutcomes(context.Background(), run.RunID)
	if err == nil {
		fmt.Printf("  created: %d  warning: %d  failed: %d  skipped: %d\n",
			counts[store.OutcomeCreated], counts[store.OutcomeWarning],
			counts[store.OutcomeFailed], counts[store.OutcomeSkipped])
	}
	if runErr != nil {
		fmt.Printf("  error: %v\n", runErr)
	}
}
