package main

import (
	"fmt"

	"github.com/Veraticus/cumin/internal/cli"
	"github.com/Veraticus/cumin/internal/common"
	"github.com/Veraticus/cumin/internal/rules"
	"github.com/spf13/cobra"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize <transaction-id> <category>",
		Short: "Categorize a transaction by hand and learn rules from it",
		Long: `Record a manual category for one transaction. cumin then learns rules from
the transaction's description, amount and currency, so that similar
transactions are categorized automatically next time.`,
		Args: cobra.ExactArgs(2),
		RunE: runCategorize,
	}

	cmd.Flags().StringP("payee", "p", "", "Payee to record with the category")
	cmd.Flags().Bool("force", false, "Recategorize a transaction that already has a category")

	return cmd
}

func runCategorize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	id, category := args[0], args[1]
	payee, _ := cmd.Flags().GetString("payee")
	force, _ := cmd.Flags().GetBool("force")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	eng, err := initEngine(store)
	if err != nil {
		return err
	}

	txn, err := store.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}
	if txn.IsCategorized() && !force {
		return common.NewUserError(
			fmt.Sprintf("transaction %s is already categorized as %q; pass --force to change it", id, txn.Category),
			common.ErrAlreadyCategorized)
	}

	// Rule learning needs a usable currency; check it before anything is written.
	if _, err := rules.NormalizeCurrency(txn.Currency); err != nil {
		return common.NewUserError(fmt.Sprintf("transaction %s has a malformed currency %q", id, txn.Currency), err)
	}

	if err := store.SetTransactionCategory(ctx, id, category, payee); err != nil {
		return fmt.Errorf("failed to categorize transaction: %w", err)
	}

	learned, err := eng.OnCategorized(ctx, *txn, category, payee)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s categorized as %s", id, category)))
	if len(learned) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("Description has no usable tokens; no rules learned"))
		return nil
	}
	for _, r := range learned {
		fmt.Fprintf(out, "  %s rule #%d: %s (%s)\n", cli.RuleIcon, r.ID, r.Tokens.String(), r.Variant())
	}

	return nil
}
