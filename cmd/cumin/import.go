package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/Veraticus/cumin/internal/cli"
	"github.com/Veraticus/cumin/internal/model"
	"github.com/Veraticus/cumin/internal/ofx"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import financial transactions from OFX or QFX (Quicken) files exported from your bank.

Transactions are stored for one owner. Re-importing a statement is safe:
transactions already stored are skipped.

Examples:
  # Import single file
  cumin import --owner alice ~/Downloads/itau_mar_2024.qfx

  # Import all QFX files in a directory and apply rules right away
  cumin import --owner alice --apply ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	addOwnerFlag(cmd)
	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")
	cmd.Flags().Bool("apply", false, "Apply rules to the owner's uncategorized transactions after importing")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	apply, _ := cmd.Flags().GetBool("apply")

	owner, err := ownerFromFlags(cmd)
	if err != nil {
		return err
	}

	// Expand globs and collect all files
	var allFiles []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			// If no glob matches, check if it's a direct file
			if _, err := os.Stat(pattern); err == nil {
				allFiles = append(allFiles, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
		} else {
			allFiles = append(allFiles, matches...)
		}
	}

	if len(allFiles) == 0 {
		return fmt.Errorf("no files found to import")
	}

	slog.Info("Importing OFX files",
		"owner", owner,
		"file_count", len(allFiles),
		"dry_run", dryRun)

	var allTransactions []model.Transaction
	seen := make(map[string]bool) // For deduplication across files
	fileResults := make(map[string]int)

	parser := ofx.NewParser()

	for _, filePath := range allFiles {
		transactions, err := parseOFXFile(cmd, parser, filePath, owner)
		if err != nil {
			slog.Error("Failed to parse OFX file",
				"file", filePath,
				"error", err)
			continue
		}

		added := 0
		for _, tx := range transactions {
			if !seen[tx.Hash] {
				seen[tx.Hash] = true
				allTransactions = append(allTransactions, tx)
				added++
			}
		}
		fileResults[filepath.Base(filePath)] = added
	}

	if len(allTransactions) == 0 {
		fmt.Fprintln(out, cli.FormatWarning("No transactions found in any file"))
		return nil
	}

	// Show summary
	fmt.Fprintln(out, cli.FormatTitle("File import summary"))
	files := make([]string, 0, len(fileResults))
	for file := range fileResults {
		files = append(files, file)
	}
	sort.Strings(files)
	for _, file := range files {
		fmt.Fprintf(out, "  - %s: %d transactions\n", file, fileResults[file])
	}

	if dryRun {
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Dry run: %d transactions parsed, nothing saved", len(allTransactions))))
		return nil
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	inserted, err := store.SaveTransactions(ctx, allTransactions)
	if err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d new transactions (%d already stored)",
		inserted, len(allTransactions)-inserted)))

	if !apply {
		return nil
	}

	eng, err := initEngine(store)
	if err != nil {
		return err
	}
	result, err := eng.ApplyRulesToAllTransactions(ctx, owner, 0)
	if err != nil {
		return fmt.Errorf("failed to apply rules: %w", err)
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Rules categorized %d of %d uncategorized transactions",
		result.Updated, result.Considered)))

	return nil
}

func parseOFXFile(cmd *cobra.Command, parser *ofx.Parser, path, owner string) ([]model.Transaction, error) {
	f, err := os.Open(path) // #nosec G304 -- path is supplied by the user on the command line
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return parser.ParseFile(cmd.Context(), f, owner)
}
