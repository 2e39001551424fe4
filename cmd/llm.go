package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/sqltutor/internal/llm"
	"github.com/abhisek/sqltutor/internal/store"
	"github.com/abhisek/sqltutor/internal/ui/theme"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect grading model configuration and usage",
}

var llmProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported providers and the active configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, p := range llm.Providers() {
			aliases := make([]string, 0, len(p.Aliases))
			for a := range p.Aliases {
				aliases = append(aliases, a)
			}
			slices.Sort(aliases)
			fmt.Fprintf(out, "%-11s default %-20s key %s\n", p.Name, p.DefaultModel, p.KeyEnv)
			if len(aliases) > 0 {
				fmt.Fprintf(out, "            %s\n", theme.Hint.Render("aliases: "+strings.Join(aliases, ", ")))
			}
		}

		cfg := llm.ConfigFromEnv()
		if !cfg.HasAPIKey() {
			if found, ok := llm.DiscoverConfig(); ok {
				cfg = found
			}
		}
		fmt.Fprintln(out)
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(out, theme.Incorrect.Render("Not configured: ")+err.Error())
			fmt.Fprintln(out, theme.Hint.Render("practice will grade with the rule-based oracle"))
			return nil
		}
		fmt.Fprintf(out, "%s %s / %s\n", theme.Correct.Render("Active:"), cfg.Provider, cfg.Model())
		return nil
	},
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent grading requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purpose, _ := cmd.Flags().GetString("purpose")

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		events, err := e.store.EventRepo().QueryLLMRequests(cmd.Context(), store.QueryOpts{Limit: limit})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "No LLM requests recorded.")
			return nil
		}

		fmt.Fprintf(out, "%-5s  %-19s  %-10s  %-28s  %-6s  %-6s  %-7s  %s\n",
			"ID", "Timestamp", "Purpose", "Model", "In", "Out", "Ms", "OK")
		fmt.Fprintln(out, theme.Rule.Render(strings.Repeat("─", 96)))

		for _, ev := range events {
			if purpose != "" && ev.Purpose != purpose {
				continue
			}
			ok := theme.Correct.Render("✓")
			if !ev.Success {
				ok = theme.Incorrect.Render("✗ ") + truncate(ev.ErrorMessage, 40)
			}
			fmt.Fprintf(out, "%-5d  %-19s  %-10s  %-28s  %-6d  %-6d  %-7d  %s\n",
				ev.ID,
				ev.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				ev.Purpose,
				truncate(ev.Model, 28),
				ev.InputTokens,
				ev.OutputTokens,
				ev.LatencyMs,
				ok,
			)
		}
		return nil
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show token usage and estimated cost by model",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		usage, err := e.store.EventRepo().LLMUsageByModel(cmd.Context())
		if err != nil {
			return fmt.Errorf("query usage: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(usage) == 0 {
			fmt.Fprintln(out, "No LLM usage recorded yet.")
			return nil
		}

		rows, totalCost := llm.PriceUsage(usage)

		fmt.Fprintf(out, "%-12s  %-30s  %6s  %5s  %10s  %10s  %8s  %10s\n",
			"Provider", "Model", "Calls", "Fail", "Input", "Output", "Avg Ms", "Cost")
		fmt.Fprintln(out, theme.Rule.Render(strings.Repeat("─", 104)))

		var calls int
		var in, outTok int64
		var unpriced []string
		for _, r := range rows {
			avg := int64(0)
			if r.Calls > 0 {
				avg = r.LatencyMs / int64(r.Calls)
			}
			cost := "?"
			if r.Priced {
				cost = formatCost(r.CostUSD)
			} else {
				unpriced = append(unpriced, r.Model)
			}
			fmt.Fprintf(out, "%-12s  %-30s  %6d  %5d  %10d  %10d  %8d  %10s\n",
				r.Provider, truncate(r.Model, 30), r.Calls, r.Failures, r.InputTokens, r.OutputTokens, avg, cost)
			calls += r.Calls
			in += r.InputTokens
			outTok += r.OutputTokens
		}

		fmt.Fprintln(out, theme.Rule.Render(strings.Repeat("─", 104)))
		label := "TOTAL"
		if len(unpriced) > 0 {
			label = "TOTAL (partial)"
		}
		fmt.Fprintf(out, "%-44s  %6d  %5s  %10d  %10d  %8s  %10s\n", label, calls, "", in, outTok, "", formatCost(totalCost))
		if len(unpriced) > 0 {
			fmt.Fprintf(out, "\nPricing unavailable for: %s\n", strings.Join(unpriced, ", "))
		}
		return nil
	},
}

var llmPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send a one-line probe to the configured model",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		cfg := llm.ConfigFromEnv()
		if !cfg.HasAPIKey() {
			if found, ok := llm.DiscoverConfig(); ok {
				cfg = found
			}
		}
		ctx := llm.WithPurpose(cmd.Context(), llm.PurposeProbe)
		provider, err := llm.NewProvider(ctx, cfg, e.store.EventRepo(), e.log)
		if err != nil {
			return err
		}

		start := time.Now()
		resp, err := provider.Generate(ctx, llm.Prompt("Reply with the single word pong.", "ping", nil, 16))
		if err != nil {
			return fmt.Errorf("probe %s: %w", provider.Name(), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s replied %q in %s (%d tokens)\n",
			theme.Correct.Render("OK"), provider.Name(), resp.Model,
			strings.TrimSpace(string(resp.Content)), time.Since(start).Round(time.Millisecond), resp.Usage.TotalTokens)
		return nil
	},
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of requests to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Filter by purpose (evaluate, probe)")

	llmCmd.AddCommand(llmProvidersCmd)
	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmStatsCmd)
	llmCmd.AddCommand(llmPingCmd)
}
