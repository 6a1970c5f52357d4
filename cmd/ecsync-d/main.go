package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peoplehub/ecsync/pkg/api"
	"github.com/peoplehub/ecsync/pkg/engine"
	"github.com/peoplehub/ecsync/pkg/store"
	redisstore "github.com/peoplehub/ecsync/pkg/store/redis"
)

func main() {
	fmt.Println(`{"level":"info","msg":"system_started","component":"ecsync-d"}`)

	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Printf(`{"level":"fatal","msg":"invalid_config","error":"%v"}`+"\n", err)
		os.Exit(1)
	}

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		fmt.Printf(`{"level":"fatal","msg":"failed_to_init_store","error":"%v"}`+"\n", err)
		os.Exit(1)
	}
	fmt.Printf(`{"level":"info","msg":"store_initialized","path":"%s"}`+"\n", cfg.DBPath)

	// The sync config file is owned by the plan/apply CLI; the daemon only
	// needs it for the retention setting. Missing file is not an error.
	syncCfg := engine.Config{}
	if loaded, err := engine.LoadConfig(cfg.ConfigPath); err == nil {
		syncCfg = *loaded
		fmt.Printf(`{"level":"info","msg":"sync_config_loaded","path":"%s"}`+"\n", cfg.ConfigPath)
	} else if errors.Is(err, os.ErrNotExist) {
		fmt.Printf(`{"level":"info","msg":"sync_config_not_found","path":"%s"}`+"\n", cfg.ConfigPath)
	} else {
		fmt.Printf(`{"level":"fatal","msg":"invalid_sync_config","path":"%s","error":"%v"}`+"\n", cfg.ConfigPath, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fmt.Printf(`{"level":"fatal","msg":"redis_unreachable","addr":"%s","error":"%v"}`+"\n", cfg.RedisAddr, err)
			os.Exit(1)
		}
		fmt.Printf(`{"level":"info","msg":"redis_connected","addr":"%s"}`+"\n", cfg.RedisAddr)
	}

	maintainer := engine.NewMaintainer(st, syncCfg)
	maintainer.SetInterval(cfg.MaintenanceInterval)
	var elector *engine.Elector
	if rdb != nil {
		maintainer.SetRosterCache(redisstore.NewRosterCache(rdb, 24*time.Hour))

		// Several daemons may point at the same store; a Redis lease picks
		// which one runs maintenance.
		holderID := electionHolderID()
		elector = engine.NewElector(redisstore.NewLeaseStore(rdb), "maintenance-leader", holderID, 30*time.Second)
		elector.Start(ctx)
		maintainer.SetLeaderCheck(elector.IsLeader)
		fmt.Printf(`{"level":"info","msg":"leader_election_enabled","holder_id":"%s"}`+"\n", holderID)
	}
	go maintainer.Run(ctx)

	srv := api.NewServer(st, cfg.Addr)
	if cfg.TLSCertFile != "" {
		srv.SetTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	}
	go func() {
		if err := srv.Start(); err != nil {
			fmt.Printf(`{"level":"fatal","msg":"api_server_failed","error":"%v"}`+"\n", err)
			os.Exit(1)
		}
	}()
	fmt.Printf(`{"level":"info","msg":"api_listening","addr":"%s"}`+"\n", cfg.Addr)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigs
	fmt.Printf(`{"level":"info","msg":"shutdown_initiated","signal":"%s"}`+"\n", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		fmt.Printf(`{"level":"error","msg":"api_stop_failed","error":"%v"}`+"\n", err)
	}

	if elector != nil {
		elector.Stop(shutdownCtx)
	}

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			fmt.Printf(`{"level":"error","msg":"failed_to_close_redis","error":"%v"}`+"\n", err)
		}
	}

	if err := st.Close(); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_close_store","error":"%v"}`+"\n", err)
	} else {
		fmt.Println(`{"level":"info","msg":"store_closed"}`)
	}

	fmt.Println(`{"level":"info","msg":"shutdown_complete"}`)
}

// electionHolderID identifies this process in the lease table.
func electionHolderID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
