package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elephantgerald/bartleby-sub001/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local store with the tracker once",
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

		result, err := syncer.New(store, source, cfg, nil, nil).Sync(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Synced: %d added, %d updated, %d removed, %d statuses pushed\n",
			result.Added, result.Updated, result.Removed, result.StatusesPushed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
