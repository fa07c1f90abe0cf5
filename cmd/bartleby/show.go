package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/elephantgerald/bartleby-sub001/internal/storage"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

var showCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Show a work item with its sessions and questions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := openStore(ctx); err != nil {
			return err
		}

		item, err := resolveItem(cmd, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s  [%s]\n", item.Title, item.Status)
		fmt.Printf("  id: %s\n", item.ID)
		if item.HasExternalRef() {
			fmt.Printf("  tracker: %s (%s)\n", item.ExternalKey(), item.ExternalURL)
		}
		if len(item.Labels) > 0 {
			fmt.Printf("  labels: %s\n", strings.Join(item.Labels, ", "))
		}
		if len(item.Dependencies) > 0 {
			fmt.Printf("  depends on: %s\n", strings.Join(item.Dependencies, ", "))
		}
		if item.BranchName != "" {
			fmt.Printf("  branch: %s\n", item.BranchName)
		}
		if item.ErrorMessage != "" {
			fmt.Printf("  error: %s\n", item.ErrorMessage)
		}
		if item.Description != "" {
			fmt.Printf("\n%s\n", item.Description)
		}

		sessions, err := store.GetSessionsForItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if len(sessions) > 0 {
			fmt.Println("\nSessions:")
			for _, s := range sessions {
				line := fmt.Sprintf("  %s  %s  %s", s.StartedAt.Format("2006-01-02 15:04"), s.Transformation, s.Outcome)
				if s.TokensUsed > 0 {
					line += fmt.Sprintf("  (%d tokens)", s.TokensUsed)
				}
				fmt.Println(line)
				if s.Summary != "" {
					fmt.Printf("    %s\n", s.Summary)
				}
			}
		}

		questions, err := store.GetQuestionsForItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if len(questions) > 0 {
			fmt.Println("\nQuestions:")
			for _, q := range questions {
				fmt.Printf("  [%s] %s\n", shortID(q.ID), q.Question)
				if q.IsAnswered() {
					fmt.Printf("    answered: %s\n", *q.Answer)
				}
			}
		}
		return nil
	},
}

// resolveItem looks an item up by full id, id prefix, or external id.
func resolveItem(cmd *cobra.Command, ref string) (*types.WorkItem, error) {
	ctx := cmd.Context()

	item, err := store.GetItem(ctx, ref)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	items, err := store.ListItems(ctx, types.WorkItemFilter{})
	if err != nil {
		return nil, err
	}
	var matches []*types.WorkItem
	for _, i := range items {
		if strings.HasPrefix(i.ID, ref) || i.ExternalID == ref {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no work item matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%q is ambiguous (%d matches)", ref, len(matches))
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
}
