// Shroud full node daemon.
//
// Usage:
//
//	shroudd [flags]   Run node
//	shroudd --help    Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shroudnet/shroud-node/config"
	klog "github.com/shroudnet/shroud-node/internal/log"
	"github.com/shroudnet/shroud-node/internal/node"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	// ── 1. Load config (defaults → file → flags) ────────────────────────
	cfg, flags, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if flags.Version {
		fmt.Printf("shroudd %s\n", Version)
		return
	}

	// ── 2. Init logger ──────────────────────────────────────────────────
	// Default to logging to <datadir>/logs/shroud.log alongside console.
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logs dir: %v\n", err)
			os.Exit(1)
		}
		logFile = logsDir + "/shroud.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("version", Version).
		Str("network", string(cfg.Network)).
		Str("datadir", cfg.DataDir).
		Msg("Starting shroudd")

	// ── 3. Build and start the node ─────────────────────────────────────
	n, err := node.New(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Node initialization failed")
		os.Exit(1)
	}
	if err := n.Start(); err != nil {
		logger.Error().Err(err).Msg("Node startup failed")
		n.Stop()
		os.Exit(1)
	}

	// ── 4. Wait for shutdown signal ─────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	n.Stop()
}
