package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List work items",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := openStore(ctx); err != nil {
			return err
		}

		filter := types.WorkItemFilter{}
		if listStatus != "" {
			status := types.Status(listStatus)
			if !status.IsValid() {
				return fmt.Errorf("invalid status %q", listStatus)
			}
			filter.Status = &status
		}

		items, err := store.ListItems(ctx, filter)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No work items.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tEXTERNAL\tTITLE")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shortID(item.ID), item.Status, item.ExternalKey(), item.Title)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by status")
	rootCmd.AddCommand(listCmd)
}
