// ============================================================================
// sysmasterd - Main Entry Point
// ============================================================================
//
// File: cmd/sysmasterd/main.go
// Purpose: Application entry point and CLI initialization
//
// Responsibilities:
//   1. Version Management - Inject build info via ldflags
//   2. Panic Recovery - Catch unexpected panics gracefully
//   3. CLI Setup - Build and configure Cobra command interface
//   4. Manager Wiring - Supply internal/cli.BuildCLI the RunFunc that
//      assembles internal/daemon.Manager from the loaded Config
//   5. Error Handling - Unified command execution error handling
//
// Version Injection:
//   Variables injected at build time via -ldflags:
//   go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
//
// Usage:
//   ./sysmasterd --help                        # Show help
//   ./sysmasterd --version                     # Show version
//   ./sysmasterd run                           # Start the manager
//   ./sysmasterd status                        # Query unit status
//   ./sysmasterd isolate multi-user.target     # Isolate to a target
//   ./sysmasterd enqueue -f transient.json      # Submit a transient unit
//
// ============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/sysmasterd/internal/cli"
	"github.com/ChuLiYu/sysmasterd/internal/daemon"
)

// Build-time version injection via ldflags
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "1.0.0"   // Semantic version
	commit  = "dev"     // Git commit hash
	date    = "unknown" // Build timestamp
)

// main is the program entry point
// Initializes CLI, handles panics, and executes commands
func main() {
	// Global panic recovery
	// Prevents uncaught panics from crashing the program
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	// Build CLI command tree, wiring the daemon's manager into the "run"
	// subcommand. Every other subcommand is a control-socket client and
	// needs no wiring here.
	rootCmd := cli.BuildCLI(runManager)

	// Set version info for --version flag
	// Format: "1.0.0 (commit: abc123, built: 2025-10-31)"
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	// Execute command parsing and business logic
	// Exit with error code if command fails
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runManager builds the daemon.Manager from cfg, serves the control socket
// and metrics endpoint, and blocks until a shutdown signal arrives.
func runManager(cfg *cli.Config) error {
	m, err := daemon.New(daemon.Config{
		StoreRoot:        cfg.Store.Root,
		ControlSockPath:  cfg.ControlSocket.Path,
		NotifySocketPath: cfg.Notify.SocketPath,
		MetricsEnabled:   cfg.Metrics.Enabled,
		MetricsPort:      cfg.Metrics.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to build manager: %w", err)
	}

	if err := m.Serve(); err != nil {
		return fmt.Errorf("failed to serve manager: %w", err)
	}

	sig := cli.WaitForShutdownSignal()
	fmt.Printf("received %s, shutting down\n", sig)

	return m.Shutdown()
}
