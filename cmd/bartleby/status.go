package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store statistics and budget state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := openStore(ctx); err != nil {
			return err
		}

		stats, err := store.GetStatistics(ctx)
		if err != nil {
			return err
		}
		settings, err := currentSettings(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Work items: %d total\n", stats.TotalItems)
		fmt.Printf("  pending: %d  ready: %d  in progress: %d\n",
			stats.PendingItems, stats.ReadyItems, stats.InProgressItems)
		fmt.Printf("  blocked: %d  complete: %d  failed: %d\n",
			stats.BlockedItems, stats.CompleteItems, stats.FailedItems)
		fmt.Printf("Open questions: %d\n", stats.OpenQuestions)

		if settings.TokenBudget.Enabled {
			fmt.Printf("Token budget: %d / %d used today", settings.TokenBudget.TokensUsedToday, settings.TokenBudget.DailyLimit)
			if settings.TokenBudget.Exhausted() {
				fmt.Print("  (exhausted)")
			}
			fmt.Println()
		}
		if settings.QuietHours.Enabled {
			fmt.Printf("Quiet hours: %s - %s\n", settings.QuietHours.Start, settings.QuietHours.End)
		}
		if settings.LastSyncTime != nil {
			fmt.Printf("Last sync: %s\n", settings.LastSyncTime.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
