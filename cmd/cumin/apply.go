package main

import (
	"fmt"
	"log/slog"
	"sync"
	"text/tabwriter"

	"github.com/Veraticus/cumin/internal/cli"
	"github.com/Veraticus/cumin/internal/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func applyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply learned rules to uncategorized transactions",
		Long: `Apply each owner's rules to their uncategorized transactions, oldest first.

Without --owner every owner in the database is processed. Transactions that
already have a category are never touched, and a transaction that fails on
its own data is reported and skipped.`,
		RunE: runApply,
	}

	cmd.Flags().StringSliceP("owner", "o", nil, "Owners to process (default: all owners)")
	cmd.Flags().IntP("max", "m", 0, "Maximum transactions per owner (0 for no limit)")
	cmd.Flags().IntP("workers", "w", 0, "Owners processed in parallel (default: engine.workers)")
	cmd.Flags().Bool("no-progress", false, "Do not show a progress bar")

	_ = viper.BindPFlag("apply.max_transactions", cmd.Flags().Lookup("max"))

	return cmd
}

func runApply(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	owners, _ := cmd.Flags().GetStringSlice("owner")
	workers, _ := cmd.Flags().GetInt("workers")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx, stop := handler.HandleInterrupts(cmd.Context(), "Rule application", "cumin apply")
	defer stop()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	eng, err := initEngine(store)
	if err != nil {
		return err
	}

	opts := engine.BatchOptions{
		MaxTransactions: viper.GetInt("apply.max_transactions"),
		Workers:         workers,
	}
	if !noProgress {
		bar := cli.NewProgressBar(cmd.ErrOrStderr(), -1, "Applying rules...")
		var mu sync.Mutex
		opts.Progress = func(engine.ItemOutcome) {
			mu.Lock()
			defer mu.Unlock()
			_ = bar.Add(1)
		}
		defer func() { _ = bar.Finish() }()
	}

	summary, err := eng.ApplyRulesForOwners(ctx, owners, opts)
	if summary != nil {
		printBatchSummary(cmd, summary)
	}
	if err != nil {
		if handler.WasInterrupted() {
			return nil
		}
		return fmt.Errorf("rule application failed: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Categorized %d of %d transactions", summary.Updated, summary.Considered)))
	return nil
}

func printBatchSummary(cmd *cobra.Command, summary *engine.BatchSummary) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, cli.FormatTitle("Rule application "+summary.RunID))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		cli.HeaderStyle.Render("Owner"),
		cli.HeaderStyle.Render("Considered"),
		cli.HeaderStyle.Render("Updated"),
		cli.HeaderStyle.Render("Errors"))
	for _, r := range summary.Results {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", r.Owner, r.Considered, r.Updated, len(r.Errors))
	}
	if err := w.Flush(); err != nil {
		slog.Error("failed to flush table writer", "error", err)
	}

	for _, r := range summary.Results {
		for _, itemErr := range r.Errors {
			fmt.Fprintln(out, cli.FormatWarning(itemErr.Error()))
		}
	}
}
