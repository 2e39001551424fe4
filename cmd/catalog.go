package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/sqltutor/internal/catalog"
	"github.com/abhisek/sqltutor/internal/ui/theme"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the question catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List topics, subtopics and clusters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		verbose, _ := cmd.Flags().GetBool("problems")

		for _, topic := range cat.Topics() {
			fmt.Fprintln(out, theme.Title.Render(topic.Name))
			for _, sub := range topic.Subtopics {
				fmt.Fprintf(out, "  %s %s\n", theme.Label.Render(sub.ID), theme.Subtitle.Render(fmt.Sprintf("(%d problems)", sub.ProblemCount())))
				for _, c := range sub.Clusters {
					fmt.Fprintf(out, "    %-10s %s  %s\n", c.ID, c.Name, theme.Hint.Render(strings.Join(c.Skills, ", ")))
					if !verbose {
						continue
					}
					for _, p := range c.Problems {
						fmt.Fprintf(out, "      %-8s %-6s %s\n", p.ID, p.Difficulty, p.Name)
					}
				}
			}
		}

		st := cat.Stats()
		fmt.Fprintf(out, "\n%d topics, %d subtopics, %d clusters, %d problems\n", st.Topics, st.Subtopics, st.Clusters, st.Problems)
		return nil
	},
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a catalog file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.LoadFile(args[0])
		if err != nil {
			return err
		}
		if err := cat.Validate(); err != nil {
			return err
		}
		st := cat.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d subtopics, %d problems\n", theme.Correct.Render("OK"), st.Subtopics, st.Problems)
		return nil
	},
}

func init() {
	catalogListCmd.Flags().Bool("problems", false, "Also list every problem")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
}
