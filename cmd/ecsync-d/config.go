package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultAddr                = "127.0.0.1:8090"
	defaultMaintenanceInterval = 1 * time.Hour
)

type Config struct {
	DBPath              string
	ConfigPath          string
	Addr                string
	RedisAddr           string
	TLSCertFile         string
	TLSKeyFile          string
	MaintenanceInterval time.Duration
}

// LoadConfig layers flags over environment variables over built-in defaults.
// Flags win.
func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("determine working directory: %w", err)
	}

	addr := os.Getenv("ECSYNC_ADDR")
	if addr == "" {
		if port := os.Getenv("ECSYNC_PORT"); port != "" {
			addr = "127.0.0.1:" + port
		} else {
			addr = defaultAddr
		}
	}

	fs := flag.NewFlagSet("ecsync-d", flag.ContinueOnError)
	flagDB := fs.String("db", lookupEnv(filepath.Join(cwd, "ecsync.db"), "ECSYNC_DB_PATH"), "run history database")
	flagConfig := fs.String("config", lookupEnv(filepath.Join(cwd, "ecsync.json"), "ECSYNC_CONFIG_PATH"), "sync config file")
	flagAddr := fs.String("addr", addr, "listen address for the HTTP API")
	flagRedis := fs.String("redis", lookupEnv("", "ECSYNC_REDIS_ADDR", "REDIS_ADDR"), "redis address for the roster cache (empty disables caching)")
	flagTLSCert := fs.String("tls-cert", os.Getenv("ECSYNC_TLS_CERT"), "serve TLS with this certificate")
	flagTLSKey := fs.String("tls-key", os.Getenv("ECSYNC_TLS_KEY"), "serve TLS with this key")
	flagInterval := fs.String("maintenance-interval", lookupEnv(defaultMaintenanceInterval.String(), "ECSYNC_MAINTENANCE_INTERVAL"), "how often the retention pass runs")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	every, err := time.ParseDuration(*flagInterval)
	if err != nil {
		return Config{}, fmt.Errorf("maintenance interval %q: %w", *flagInterval, err)
	}
	if every <= 0 {
		return Config{}, fmt.Errorf("maintenance interval %q is not positive", *flagInterval)
	}

	cfg := Config{
		DBPath:              absolutize(cwd, *flagDB),
		ConfigPath:          absolutize(cwd, *flagConfig),
		Addr:                strings.TrimSpace(*flagAddr),
		RedisAddr:           strings.TrimSpace(*flagRedis),
		TLSCertFile:         absolutize(cwd, *flagTLSCert),
		TLSKeyFile:          absolutize(cwd, *flagTLSKey),
		MaintenanceInterval: every,
	}

	if cfg.Addr == "" {
		return Config{}, errors.New("listen address is empty")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return Config{}, errors.New("tls-cert and tls-key go together")
	}

	return cfg, nil
}

// lookupEnv returns the first set environment variable among keys, else fallback.
func lookupEnv(fallback string, keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return fallback
}

func absolutize(cwd, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cwd, p)
}
