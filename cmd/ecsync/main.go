package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	Version   = "v1.0.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "plan":
		os.Exit(runPlan(os.Args[2:]))
	case "apply":
		os.Exit(runApply(os.Args[2:]))
	case "version":
		fmt.Printf("ecsync %s (commit %s, built %s)\n", Version, Commit, BuildTime)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: ecsync <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  plan     resolve the creation order without writing anything")
	fmt.Println("  apply    execute a sync run against the configured tenant")
	fmt.Println("  version  print build information")
	fmt.Println()
	fmt.Println("Run 'ecsync <command> -h' for command flags.")
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
