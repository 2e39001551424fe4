package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/sqltutor/internal/mastery"
	"github.com/abhisek/sqltutor/internal/store"
	"github.com/abhisek/sqltutor/internal/ui/components"
	"github.com/abhisek/sqltutor/internal/ui/theme"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mastery per subtopic",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		cat := e.catalog

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if all, _ := cmd.Flags().GetBool("all"); all {
			profiles, err := e.store.ProfileRepo().List(ctx)
			if err != nil {
				return fmt.Errorf("list profiles: %w", err)
			}
			if len(profiles) == 0 {
				fmt.Fprintln(out, "No students yet.")
				return nil
			}
			fmt.Fprintf(out, "%-20s  %-20s  %8s  %s\n", "Student", "Current", "Mastered", "Updated")
			fmt.Fprintln(out, theme.Rule.Render(strings.Repeat("─", 72)))
			for _, p := range profiles {
				fmt.Fprintf(out, "%-20s  %-20s  %8d  %s\n",
					truncate(p.StudentID, 20), truncate(p.CurrentSubtopicID, 20), p.MasteredCount,
					p.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		}

		student := resolveStudent(cmd)
		profile, err := e.mastery.Profile(ctx, student)
		if err != nil {
			return err
		}

		fmt.Fprintln(out, theme.Title.Render("Mastery for "+student))
		for _, sub := range cat.Subtopics() {
			st := profile.Subtopics[sub.ID]
			if st == nil {
				st = mastery.NewSubtopicState(sub.ID, profile.CreatedAt)
			}
			mastered := profile.IsMastered(sub.ID)
			label := fmt.Sprintf("%-18s", truncate(sub.Name, 18))
			bar := components.MasteryBar{Label: label, Score: st.MasteryScore, Mastered: mastered, Width: 52}
			line := bar.View() + "  " + theme.Subtitle.Render(fmt.Sprintf("%d attempts", st.AttemptCount))
			if mastered {
				line += "  " + theme.Correct.Render("mastered")
			}
			if sub.ID == profile.CurrentSubtopicID {
				line += "  " + theme.Label.Render("current")
			}
			fmt.Fprintln(out, line)

			for _, w := range st.WeakConcepts {
				fmt.Fprintf(out, "    %s %s ×%d\n", theme.Hint.Render("weak:"), w.Name, w.Occurrences)
			}
			if len(st.ConceptGaps) > 0 {
				fmt.Fprintf(out, "    %s %s\n", theme.Hint.Render("gaps:"), strings.Join(st.ConceptGaps, ", "))
			}
		}

		if history, _ := cmd.Flags().GetInt("history"); history > 0 {
			events, err := e.store.EventRepo().QueryMasteryEvents(ctx, student, store.QueryOpts{})
			if err != nil {
				return fmt.Errorf("query mastery events: %w", err)
			}
			if len(events) > history {
				events = events[len(events)-history:]
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, theme.Label.Render("Recent activity"))
			for _, ev := range events {
				fmt.Fprintf(out, "  %s  %-9s %-14s %-8s %.2f → %.2f\n",
					ev.CreatedAt.Local().Format("01-02 15:04"), ev.Kind, ev.SubtopicID, ev.ProblemID,
					ev.MasteryBefore, ev.MasteryAfter)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("all", false, "List every stored student instead")
	statusCmd.Flags().Int("history", 0, "Also show the last N mastery events")
}
