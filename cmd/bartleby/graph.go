package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elephantgerald/bartleby-sub001/internal/resolver"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the dependency graph, parse diagnostics, and cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := openStore(ctx); err != nil {
			return err
		}
		settings, err := currentSettings(ctx)
		if err != nil {
			return err
		}

		gs, err := loadGraphStore(settings, false)
		if err != nil {
			return err
		}
		defer func() { _ = gs.Close() }()

		g := gs.Graph()
		if len(g.Nodes) == 0 {
			fmt.Println("Graph is empty.")
		}
		for _, id := range g.IDs() {
			node := g.Nodes[id]
			alias, _ := gs.AliasFor(id)
			fmt.Printf("%s (%s)  %q\n", alias, shortID(id), node.Title)
			for _, dep := range g.Dependencies(id) {
				depAlias, _ := gs.AliasFor(dep)
				fmt.Printf("  depends on %s\n", depAlias)
			}
		}

		if parse := gs.LastParse(); parse != nil && len(parse.Errors) > 0 {
			fmt.Println("\nParse diagnostics:")
			for _, e := range parse.Errors {
				fmt.Printf("  line %d: %s\n", e.Line, e.Message)
			}
		}

		items, err := store.ListItems(ctx, types.WorkItemFilter{})
		if err != nil {
			return err
		}
		cycles := resolver.New(g, items).DetectCycles()
		if len(cycles) > 0 {
			fmt.Println("\nCycles detected:")
			for _, cycle := range cycles {
				fmt.Printf("  %v\n", cycle)
			}
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
