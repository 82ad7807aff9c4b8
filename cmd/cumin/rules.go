package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/cumin/internal/cli"
	"github.com/Veraticus/cumin/internal/config"
	"github.com/Veraticus/cumin/internal/model"
	"github.com/Veraticus/cumin/internal/rules"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and maintain learned categorization rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesMatchCmd())
	cmd.AddCommand(rulesStatsCmd())
	cmd.AddCommand(rulesCleanupCmd())
	cmd.AddCommand(rulesAccuracyCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			owner, err := ownerFromFlags(cmd)
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer closeStorage(store)

			list, err := store.ListRules(ctx, owner)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.InfoStyle.Render("No rules yet. Use 'cumin categorize' to teach some."))
				return nil
			}

			printRules(cmd, list, nil)
			return nil
		},
	}

	addOwnerFlag(cmd)
	return cmd
}

func rulesMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <description>",
		Short: "Show which rules fire for a description, best first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			owner, err := ownerFromFlags(cmd)
			if err != nil {
				return err
			}
			amountFlag, _ := cmd.Flags().GetString("amount")
			currency, _ := cmd.Flags().GetString("currency")

			amount, err := parseAmount(amountFlag)
			if err != nil {
				return err
			}
			currency, err = rules.NormalizeCurrency(currency)
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer closeStorage(store)

			eng, err := initEngine(store)
			if err != nil {
				return err
			}

			query := eng.Sanitizer().Sanitize(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Tokens: %s\n", query.String())

			matches, err := eng.FindMatchingRules(ctx, owner, args[0], amount, currency)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.InfoStyle.Render("No rules match."))
				return nil
			}

			list := make([]model.Rule, len(matches))
			scores := make([]float64, len(matches))
			for i, m := range matches {
				list[i] = m.Rule
				scores[i] = m.Score
			}
			printRules(cmd, list, scores)
			return nil
		},
	}

	addOwnerFlag(cmd)
	cmd.Flags().String("amount", "", "Transaction amount")
	cmd.Flags().String("currency", "", "ISO 4217 currency code")
	return cmd
}

func rulesStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize an owner's rule set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			owner, err := ownerFromFlags(cmd)
			if err != nil {
				return err
			}
			top, _ := cmd.Flags().GetInt("top")

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer closeStorage(store)

			eng, err := initEngine(store)
			if err != nil {
				return err
			}

			stats, err := eng.GetUserRuleStats(ctx, owner, top)
			if err != nil {
				return err
			}

			body := fmt.Sprintf("Rules:            %d\nTotal usage:      %d\nAverage usage:    %.2f\nAverage accuracy: %.2f",
				stats.RuleCount, stats.TotalUsage, stats.AverageUsage, stats.AverageAccuracy)
			fmt.Fprintln(out, cli.RenderBox(cli.ChartIcon+" Rule stats for "+owner, body))

			if len(stats.TopRules) > 0 {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("Most used rules"))
				printRules(cmd, stats.TopRules, nil)
			}
			return nil
		},
	}

	addOwnerFlag(cmd)
	cmd.Flags().IntP("top", "n", 10, "Number of most used rules to show")
	return cmd
}

func rulesCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old, rarely used rules",
		Long: `Delete rules that were created before the cutoff, have been used fewer than
--min-usage times and have not been used since the cutoff.

Without --owner every owner is cleaned up. A checkpoint of the database is
taken first unless --no-checkpoint is given.`,
		RunE: runRulesCleanup,
	}

	cmd.Flags().StringP("owner", "o", "", "Owner to clean up (default: all owners)")
	cmd.Flags().Int("max-age-days", 0, "Age in days after which unused rules are stale (default: cleanup.max_age_days)")
	cmd.Flags().Int("min-usage", 0, "Rules used at least this often are kept (default: cleanup.min_usage)")
	cmd.Flags().Bool("no-checkpoint", false, "Skip the automatic checkpoint")

	_ = viper.BindPFlag("cleanup.max_age_days", cmd.Flags().Lookup("max-age-days"))
	_ = viper.BindPFlag("cleanup.min_usage", cmd.Flags().Lookup("min-usage"))

	return cmd
}

func runRulesCleanup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	owner, _ := cmd.Flags().GetString("owner")
	noCheckpoint, _ := cmd.Flags().GetBool("no-checkpoint")

	sched, err := config.LoadSchedule(viper.GetViper())
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	eng, err := initEngine(store)
	if err != nil {
		return err
	}

	if !noCheckpoint {
		cm, err := store.Checkpoints()
		if err != nil {
			return err
		}
		info, err := cm.AutoCheckpoint(ctx, "cleanup")
		if err != nil {
			return err
		}
		slog.Info("Created checkpoint", "id", info.ID)
	}

	var removed int
	if owner == "" {
		removed, err = eng.CleanupAllStaleRules(ctx, sched.MaxAgeDays, sched.MinUsage)
	} else {
		removed, err = eng.CleanupStaleRules(ctx, owner, sched.MaxAgeDays, sched.MinUsage)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Removed %d stale rules (older than %d days, used fewer than %d times)",
		removed, sched.MaxAgeDays, sched.MinUsage)))
	return nil
}

func rulesAccuracyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accuracy <rule-id> <accuracy>",
		Short: "Set a rule's accuracy between 0 and 1",
		Long: `Set how trustworthy a rule is. Rules whose accuracy falls below
engine.threshold_accuracy are no longer applied automatically.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			owner, err := ownerFromFlags(cmd)
			if err != nil {
				return err
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule id %q: %w", args[0], err)
			}
			accuracy, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid accuracy %q: %w", args[1], err)
			}

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer closeStorage(store)

			eng, err := initEngine(store)
			if err != nil {
				return err
			}

			rule, err := eng.AdjustRuleAccuracy(ctx, owner, id, accuracy)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule #%d accuracy set to %.2f", rule.ID, rule.Accuracy)))
			return nil
		},
	}

	addOwnerFlag(cmd)
	return cmd
}

// printRules writes rules as a table; scores, when given, adds a score column.
func printRules(cmd *cobra.Command, list []model.Rule, scores []float64) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer func() {
		if err := w.Flush(); err != nil {
			slog.Error("failed to flush table writer", "error", err)
		}
	}()

	header := []string{"ID", "Tokens", "Amount", "Currency", "Category", "Payee", "Uses", "Accuracy", "Last Used"}
	if scores != nil {
		header = append(header, "Score")
	}
	for i, h := range header {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, cli.HeaderStyle.Render(h))
	}
	fmt.Fprintln(w)

	for i, r := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%.2f\t%s",
			r.ID,
			r.Tokens.String(),
			orDash(model.AmountKey(r.Amount)),
			orDash(r.Currency),
			r.Category,
			orDash(r.Payee),
			r.UsageCount,
			r.Accuracy,
			formatLastUsed(r.LastUsedAt))
		if scores != nil {
			fmt.Fprintf(w, "\t%.2f", scores[i])
		}
		fmt.Fprintln(w)
	}
}

func formatLastUsed(lastUsed *time.Time) string {
	if lastUsed == nil {
		return "Never"
	}
	return lastUsed.Format("2006-01-02")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
