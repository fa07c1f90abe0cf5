package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/elephantgerald/bartleby-sub001/internal/eventbus"
	"github.com/elephantgerald/bartleby-sub001/internal/executor"
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "List unanswered questions blocking work items",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := openStore(ctx); err != nil {
			return err
		}

		questions, err := store.ListUnansweredQuestions(ctx)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			fmt.Println("No open questions.")
			return nil
		}

		for _, q := range questions {
			fmt.Printf("[%s] item %s\n  %s\n", shortID(q.ID), shortID(q.WorkItemID), q.Question)
			if q.Context != "" {
				fmt.Printf("  context: %s\n", q.Context)
			}
		}
		fmt.Println("\nAnswer with: bartleby answer <question-id> <answer...>")
		return nil
	},
}

var answerCmd = &cobra.Command{
	Use:   "answer <question-id> <answer...>",
	Short: "Answer a blocked question",
	Long: `Records the answer. When it is the last open question for its item,
the item returns to the scheduler.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := openStore(ctx); err != nil {
			return err
		}

		questionID, err := resolveQuestionID(cmd, args[0])
		if err != nil {
			return err
		}
		answer := strings.Join(args[1:], " ")

		bus := eventbus.New()
		bus.Register(newLogHandler())
		exec := executor.New(store, nil, bus, "")
		if err := exec.SubmitAnswer(ctx, questionID, answer); err != nil {
			return err
		}
		fmt.Println("Answer recorded.")
		return nil
	},
}

// resolveQuestionID accepts a full id or a unique prefix.
func resolveQuestionID(cmd *cobra.Command, ref string) (string, error) {
	ctx := cmd.Context()
	if _, err := store.GetQuestion(ctx, ref); err == nil {
		return ref, nil
	}

	questions, err := store.ListUnansweredQuestions(ctx)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, q := range questions {
		if strings.HasPrefix(q.ID, ref) {
			matches = append(matches, q.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no question matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous (%d matches)", ref, len(matches))
	}
}

func init() {
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(answerCmd)
}
