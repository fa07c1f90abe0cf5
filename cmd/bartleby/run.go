package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/elephantgerald/bartleby-sub001/internal/eventbus"
	"github.com/elephantgerald/bartleby-sub001/internal/executor"
	"github.com/elephantgerald/bartleby-sub001/internal/gitops"
	"github.com/elephantgerald/bartleby-sub001/internal/orchestrator"
	"github.com/elephantgerald/bartleby-sub001/internal/syncer"
)

var runSyncOnStart bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the work loop and the periodic tracker sync",
	Long: `Starts the orchestrator and the sync loop and blocks until
interrupted. The orchestrator works one ready item per tick; the sync loop
reconciles with the tracker every sync_interval_minutes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := openStore(ctx); err != nil {
			return err
		}

		settings, err := currentSettings(ctx)
		if err != nil {
			return err
		}

		source, err := buildSource(settings)
		if err != nil {
			return err
		}
		if err := source.TestConnection(ctx); err != nil {
			return err
		}

		provider, err := buildProvider(settings)
		if err != nil {
			return err
		}
		if err := provider.TestConnection(ctx); err != nil {
			return err
		}

		graphs, err := loadGraphStore(settings, true)
		if err != nil {
			return err
		}
		defer func() { _ = graphs.Close() }()

		bus := eventbus.New()
		bus.Register(newLogHandler())

		exec := executor.New(store, provider, bus, settings.Git.WorkingDirectory)
		orch := orchestrator.New(store, cfg, graphs, exec, gitops.NewExecService(), bus)
		sync := syncer.New(store, source, cfg, bus, orch.Locks())

		if runSyncOnStart {
			if _, err := sync.Sync(ctx); err != nil {
				return err
			}
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return orch.Run(ctx)
		})
		g.Go(func() error {
			return runSyncLoop(ctx, sync, orch)
		})

		fmt.Println("bartleby is running; press Ctrl-C to stop")
		err = g.Wait()
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

// runSyncLoop reconciles on the configured interval and wakes the
// orchestrator after each successful run so fresh items are picked up
// without waiting for the next work tick.
func runSyncLoop(ctx context.Context, sync *syncer.Syncer, orch *orchestrator.Orchestrator) error {
	settings, err := cfg.Get(ctx)
	if err != nil {
		return err
	}
	interval := time.Duration(settings.SyncIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := sync.Sync(ctx)
			if err != nil {
				fmt.Printf("sync: %v\n", err)
				continue
			}
			if result != nil && result.Added > 0 {
				orch.Trigger()
			}
		}
	}
}

func init() {
	runCmd.Flags().BoolVar(&runSyncOnStart, "sync", true, "run a sync before starting the loops")
	rootCmd.AddCommand(runCmd)
}
