package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/Veraticus/cumin/internal/cli"
	"github.com/Veraticus/cumin/internal/service"
	"github.com/spf13/cobra"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txns"},
		Short:   "Inspect stored transactions",
	}

	cmd.AddCommand(transactionsListCmd())
	return cmd
}

func transactionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's transactions, oldest first",
		RunE:  runTransactionsList,
	}

	addOwnerFlag(cmd)
	cmd.Flags().BoolP("uncategorized", "u", false, "Only show uncategorized transactions")
	cmd.Flags().IntP("limit", "n", 50, "Maximum number of transactions (0 for all)")

	return cmd
}

func runTransactionsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	owner, err := ownerFromFlags(cmd)
	if err != nil {
		return err
	}
	uncategorized, _ := cmd.Flags().GetBool("uncategorized")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	txns, err := store.ListTransactions(ctx, service.TransactionFilter{
		Owner:             owner,
		UncategorizedOnly: uncategorized,
		Limit:             limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list transactions: %w", err)
	}

	if len(txns) == 0 {
		fmt.Fprintln(out, cli.InfoStyle.Render("No transactions found."))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() {
		if flushErr := w.Flush(); flushErr != nil {
			slog.Error("failed to flush table writer", "error", flushErr)
		}
	}()

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		cli.HeaderStyle.Render("ID"),
		cli.HeaderStyle.Render("Date"),
		cli.HeaderStyle.Render("Amount"),
		cli.HeaderStyle.Render("Description"),
		cli.HeaderStyle.Render("Category"),
		cli.HeaderStyle.Render("Source"))

	for _, tx := range txns {
		category := tx.Category
		if category == "" {
			category = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
			tx.ID,
			tx.Date.Format("2006-01-02"),
			tx.Amount.StringFixed(2),
			tx.Currency,
			tx.Description,
			category,
			string(tx.Source))
	}

	return nil
}
