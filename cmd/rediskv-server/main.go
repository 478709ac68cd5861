// Command rediskv-server runs the in-memory key-value store as a standalone
// Redis-compatible server.
//
// Settings come from flags, REDISKV_* environment variables (REDISKV_ADDR,
// REDISKV_READ_TIMEOUT, ...) or a YAML file given with --config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	rediskv "github.com/raniellyferreira/redis-inmemory-kv"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.ShowVersion {
		info := rediskv.VersionInfo()
		fmt.Printf("rediskv-server %s (%s)", info["version"], info["go"])
		if commit, ok := info["commit"]; ok {
			fmt.Printf(" commit %s", commit)
		}
		fmt.Println()
		os.Exit(0)
	}

	store, err := rediskv.New(cfg.options()...)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Start(ctx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	log.Printf("rediskv %s ready on %s", rediskv.Version, store.Addr())
	if addr := store.HTTPAddr(); addr != "" {
		log.Printf("HTTP admin API on http://%s", addr)
	}

	<-ctx.Done()
	log.Println("Shutting down...")

	if err := store.Close(); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
}
