// Command bartleby is an autonomous scrivener: it syncs work items from an
// external tracker, resolves readiness against a dependency graph, and
// drives ready items through AI transformations, committing finished work to
// git branches.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/elephantgerald/bartleby-sub001/internal/config"
	"github.com/elephantgerald/bartleby-sub001/internal/debug"
	"github.com/elephantgerald/bartleby-sub001/internal/storage/sqlite"
	"github.com/elephantgerald/bartleby-sub001/internal/telemetry"
)

// Version is stamped by the release build.
var Version = "dev"

var (
	projectDir string
	dbPath     string
	verbose    bool
	quiet      bool

	store *sqlite.Store
	cfg   *config.Manager

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:           "bartleby",
	Short:         "Autonomous work item scrivener",
	Long:          "Bartleby ingests tickets from an issue tracker, orders them by a dependency\ngraph, and works the ready ones through AI transformation steps.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			debug.SetVerbose(true)
		}
		if quiet {
			debug.SetQuiet(true)
		}
		if err := telemetry.Init(cmd.Context(), "bartleby", Version); err != nil {
			debug.Logf("telemetry init: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	},
}

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "project directory (config.yaml and graph file live here)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default <dir>/.bartleby/bartleby.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeStore()
		os.Exit(1)
	}
	closeStore()
}

// databasePath resolves the db path, defaulting under the project dir.
func databasePath() string {
	if dbPath != "" {
		return dbPath
	}
	return filepath.Join(projectDir, ".bartleby", "bartleby.db")
}

// openStore opens the sqlite store and layers the settings manager on top.
// Settings stored in the database win; a fresh database is seeded from
// config.yaml plus environment overrides.
func openStore(ctx context.Context) error {
	path := databasePath()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	s, err := sqlite.Open(path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	store = s
	cfg = config.NewManager(store)

	if _, err := store.GetConfig(ctx, "settings"); err != nil {
		settings, loadErr := config.LoadFile(projectDir)
		if loadErr != nil {
			return loadErr
		}
		if saveErr := cfg.Save(ctx, settings); saveErr != nil {
			return saveErr
		}
	}
	return nil
}

func closeStore() {
	if store != nil {
		if err := store.Close(); err != nil {
			debug.Logf("closing database: %v\n", err)
		}
		store = nil
	}
}
