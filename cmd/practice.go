package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/sqltutor/internal/catalog"
	"github.com/abhisek/sqltutor/internal/llm"
	"github.com/abhisek/sqltutor/internal/mastery"
	"github.com/abhisek/sqltutor/internal/oracle"
	"github.com/abhisek/sqltutor/internal/selector"
	"github.com/abhisek/sqltutor/internal/tutor"
	"github.com/abhisek/sqltutor/internal/ui/components"
	"github.com/abhisek/sqltutor/internal/ui/theme"
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Start a practice session",
	Long: "Start a practice session. Type your SQL and finish it with a semicolon or an\n" +
		"empty line. Type :quit to stop; \"idk\" or \"skip\" records a non-answer.",
	RunE: runPractice,
}

func init() {
	practiceCmd.Flags().String("subtopic", "", "Practice a specific subtopic instead of the next unmastered one")
	practiceCmd.Flags().String("oracle", "auto", "Grader: auto, llm or rules")
}

func runPractice(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	orc, err := newOracle(ctx, cmd, e)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, theme.Hint.Render("Grading with "+orc.Name()))

	t := tutor.New(e.catalog, e.mastery, orc, e.log)
	student := resolveStudent(cmd)

	var s *tutor.Session
	if sub, _ := cmd.Flags().GetString("subtopic"); sub != "" {
		s, err = t.StartAt(ctx, student, sub)
	} else {
		s, err = t.Start(ctx, student)
	}
	if err != nil {
		return err
	}
	if s.Done {
		fmt.Fprintln(out, theme.Correct.Render("Every subtopic is mastered. Nothing left to practice."))
		return nil
	}

	in := bufio.NewReader(cmd.InOrStdin())
	for !s.Done {
		printProblem(out, s.Subtopic, s.Current)

		answer, quit, err := readAnswer(in, out)
		if err != nil {
			return err
		}
		if quit {
			break
		}

		fb, err := t.Submit(ctx, s, answer)
		var unavail *oracle.UnavailableError
		var contract *mastery.OracleContractError
		switch {
		case errors.As(err, &unavail):
			fmt.Fprintln(out, theme.Incorrect.Render("The grader is unavailable right now. Nothing was recorded; try again."))
			e.log.Warn("grader unavailable", "error", err)
			continue
		case errors.As(err, &contract):
			fmt.Fprintln(out, theme.Incorrect.Render("The grader returned an unusable evaluation. Nothing was recorded; try again."))
			e.log.Warn("unusable evaluation", "error", err)
			continue
		case err != nil:
			return err
		}
		printFeedback(out, fb)
	}

	fmt.Fprintf(out, "\n%s %d answered, %d fully correct", theme.Label.Render("Session:"), s.Answered, s.Solved)
	if len(s.Mastered) > 0 {
		fmt.Fprintf(out, ", mastered %s", strings.Join(s.Mastered, ", "))
	}
	fmt.Fprintln(out)
	return nil
}

// newOracle picks the grader. In auto mode the LLM is used when a provider
// key is configured and the rule-based grader otherwise.
func newOracle(ctx context.Context, cmd *cobra.Command, e *env) (oracle.Oracle, error) {
	mode, _ := cmd.Flags().GetString("oracle")
	switch mode {
	case "rules":
		return oracle.NewRuleOracle(), nil
	case "llm", "auto":
	default:
		return nil, fmt.Errorf("unknown oracle %q (want auto, llm or rules)", mode)
	}

	cfg := llm.ConfigFromEnv()
	if !cfg.HasAPIKey() {
		if found, ok := llm.DiscoverConfig(); ok {
			cfg = found
		}
	}
	provider, err := llm.NewProvider(ctx, cfg, e.store.EventRepo(), e.log)
	if err != nil {
		if mode == "llm" {
			return nil, fmt.Errorf("LLM grader: %w", err)
		}
		e.log.Info("LLM not configured, grading with rules", "error", err)
		return oracle.NewRuleOracle(), nil
	}
	return oracle.NewLLMOracle(provider, oracle.DefaultLLMConfig()), nil
}

func printProblem(out io.Writer, sub *catalog.Subtopic, sel *selector.Selection) {
	p := sel.Problem
	fmt.Fprintln(out)
	fmt.Fprintln(out, theme.Title.Render(sub.Name)+theme.Subtitle.Render("  ·  "+sel.Cluster.Name+"  ·  "+p.Difficulty.String()))
	fmt.Fprintln(out, theme.Card.Render(theme.Label.Render(p.Name)+"\n"+theme.Body.Render(p.Description)))
	if len(sel.Targeted) > 0 {
		fmt.Fprintln(out, theme.Hint.Render("This question targets your weak areas: "+strings.Join(selector.Concepts(sel.Priority), ", ")))
	}
}

// readAnswer collects lines until one ends with ';' or a blank line follows
// some input. A lone non-answer such as "idk" is returned immediately.
func readAnswer(in *bufio.Reader, out io.Writer) (answer string, quit bool, err error) {
	var lines []string
	fmt.Fprint(out, theme.Code.Render("sql> "))
	for {
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", false, err
		}
		eof := err != nil
		trimmed := strings.TrimSpace(line)

		switch {
		case len(lines) == 0 && (trimmed == ":quit" || trimmed == ":q" || trimmed == "exit"):
			return "", true, nil
		case len(lines) == 0 && trimmed != "" && oracle.IsNonAnswer(trimmed):
			return trimmed, false, nil
		case trimmed == "" && len(lines) > 0:
			return strings.Join(lines, "\n"), false, nil
		case trimmed != "":
			lines = append(lines, strings.TrimRight(line, "\r\n"))
			if strings.HasSuffix(trimmed, ";") {
				return strings.Join(lines, "\n"), false, nil
			}
		}

		if eof {
			if len(lines) == 0 {
				return "", true, nil
			}
			return strings.Join(lines, "\n"), false, nil
		}
		if len(lines) > 0 {
			fmt.Fprint(out, theme.Code.Render("...> "))
		} else {
			fmt.Fprint(out, theme.Code.Render("sql> "))
		}
	}
}

func printFeedback(out io.Writer, fb *tutor.Feedback) {
	ev := fb.Evaluation
	verdict := "Incorrect"
	switch {
	case ev.Correctness >= 1:
		verdict = "Correct"
	case ev.Correctness > 0:
		verdict = "Partially correct"
	}
	fmt.Fprintf(out, "%s %s\n", theme.Grade(ev.Correctness).Render(verdict), theme.Subtitle.Render(fmt.Sprintf("(%.0f%%)", ev.Correctness*100)))
	if ev.Feedback != "" {
		fmt.Fprintln(out, theme.Body.Render(ev.Feedback))
	}
	if ev.Explanation != "" && ev.Correctness < 1 {
		fmt.Fprintln(out, theme.Hint.Render(ev.Explanation))
	}

	res := fb.Result
	if res.MasteryAchieved {
		fmt.Fprintln(out, theme.Correct.Render(fmt.Sprintf("Subtopic mastered in %d attempts (score %.2f).", len(res.Episode.Attempts), res.Episode.FinalScore)))
		switch {
		case fb.Completed:
			fmt.Fprintln(out, theme.Correct.Render("That was the last subtopic. Well done!"))
		case fb.Advanced != nil:
			fmt.Fprintln(out, theme.Label.Render("Next up: ")+fb.Advanced.Name)
		}
		return
	}

	bar := components.MasteryBar{Label: "Mastery", Score: res.State.MasteryScore, Width: 40}
	fmt.Fprintln(out, bar.View())
	if limit := mastery.MasteryCap(res.State.AttemptCount); limit < 1 {
		fmt.Fprintln(out, theme.Hint.Render(fmt.Sprintf("Early attempts are capped at %.0f%%.", limit*100)))
	}
	if len(res.State.WeakConcepts) > 0 {
		var names []string
		for _, w := range res.State.WeakConcepts {
			names = append(names, fmt.Sprintf("%s (%s)", w.Name, w.Severity))
		}
		fmt.Fprintln(out, theme.Label.Render("Weak concepts: ")+strings.Join(names, ", "))
	}
}
