// Command dpmservice is the discretionary portfolio management decisioning
// service: an HTTP API over the deterministic rebalance and advisory
// pipelines, plus a migrate subcommand for the Postgres schema. Structured
// the way the teacher's cmd/cryptorun/main.go builds its cobra tree, scaled
// down to this service's three subcommands.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName        = "dpmservice"
	serviceVersion = "v1.0.0"
)

// Execute builds and runs the root cobra command.
func Execute() error {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Deterministic discretionary portfolio management and advisory decisioning service",
		Version: serviceVersion,
		Long: `dpmservice runs the deterministic rebalance and advisory proposal pipelines
behind an HTTP API (spec §6), with async operations, idempotency, workflow
gating, and Postgres-backed supportability/policy/proposal stores.

This binary has no interactive mode; use the subcommands below.`,
		Run: runDefaultEntry,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		return err
	}
	return nil
}

// runDefaultEntry is invoked when dpmservice is run with no subcommand. A
// TTY gets a short pointer to `serve`/`migrate`; a non-interactive caller
// (the common case — container entrypoints, CI) gets the same guidance on
// stderr and a non-zero exit, matching the teacher's non-TTY branch in
// runDefaultEntry.
func runDefaultEntry(cmd *cobra.Command, args []string) {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	fmt.Fprintf(os.Stderr, "dpmservice has no interactive mode.\n\n")
	fmt.Fprintf(os.Stderr, "  dpmservice serve      start the HTTP API\n")
	fmt.Fprintf(os.Stderr, "  dpmservice migrate    apply pending Postgres migrations\n")
	fmt.Fprintf(os.Stderr, "  dpmservice version    print the build version\n")
	if !interactive {
		os.Exit(2)
	}
}

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}
