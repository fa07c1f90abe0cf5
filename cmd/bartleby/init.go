package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elephantgerald/bartleby-sub001/internal/config"
	"github.com/elephantgerald/bartleby-sub001/internal/graph"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a bartleby project in the current directory",
	Long: `Creates config.yaml, an empty dependency graph file, and the local
database. Existing files are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		configPath := projectDir + "/" + config.ConfigFileName
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if err := config.WriteFile(projectDir, config.Defaults()); err != nil {
				return err
			}
			fmt.Printf("Created %s\n", configPath)
		} else {
			fmt.Printf("%s already exists, skipping\n", configPath)
		}

		if err := openStore(ctx); err != nil {
			return err
		}

		settings, err := currentSettings(ctx)
		if err != nil {
			return err
		}

		graphPath := graphFilePath(settings)
		if _, err := os.Stat(graphPath); os.IsNotExist(err) {
			gs := graph.NewStore(graphPath)
			if err := gs.Save(graph.New()); err != nil {
				return fmt.Errorf("writing graph file: %w", err)
			}
			fmt.Printf("Created %s\n", graphPath)
		}

		fmt.Printf("Initialized database at %s\n", databasePath())
		fmt.Println("Next: set tracker.token/owner/repo and ai.api_key in config.yaml, then run `bartleby sync`.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
