package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/Veraticus/cumin/internal/cli"
	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the categories an owner uses",
		Long: `List every category found on an owner's transactions or rules, with how
many transactions were categorized by hand, how many by rules, and how many
rules produce it.`,
		RunE: runCategories,
	}

	addOwnerFlag(cmd)
	return cmd
}

func runCategories(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	owner, err := ownerFromFlags(cmd)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	categories, err := store.ListCategories(ctx, owner)
	if err != nil {
		return err
	}
	if len(categories) == 0 {
		fmt.Fprintln(out, cli.InfoStyle.Render("No categories yet."))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() {
		if flushErr := w.Flush(); flushErr != nil {
			slog.Error("failed to flush table writer", "error", flushErr)
		}
	}()

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		cli.HeaderStyle.Render("Category"),
		cli.HeaderStyle.Render("Manual"),
		cli.HeaderStyle.Render("By Rule"),
		cli.HeaderStyle.Render("Rules"))
	for _, c := range categories {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", c.Name, c.Manual, c.ByRule, c.Rules)
	}

	return nil
}
