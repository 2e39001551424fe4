package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset <subtopic>",
	Short: "Restart a subtopic from zero",
	Long: "Restart a subtopic from a zeroed state. Mastered subtopics stay mastered and\n" +
		"past episodes are kept. Also clears a subtopic whose stored state is corrupt.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		sub, err := e.catalog.GetSubtopic(args[0])
		if err != nil {
			return err
		}

		student := resolveStudent(cmd)
		if err := e.mastery.ResetSubtopic(cmd.Context(), student, sub.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset %s for %s.\n", sub.ID, student)
		return nil
	},
}
