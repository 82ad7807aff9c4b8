package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/cumin/internal/common"
	"github.com/Veraticus/cumin/internal/config"
	"github.com/Veraticus/cumin/internal/engine"
	"github.com/Veraticus/cumin/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultDBPath = "$HOME/.local/share/cumin/cumin.db"

// openStorage opens the configured database without migrating it.
func openStorage() (*storage.SQLiteStorage, error) {
	// Get database path from config
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	// Expand tilde and environment variables
	return storage.NewSQLiteStorage(config.ExpandPath(dbPath))
}

// initStorage opens the configured database and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := openStorage()
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initEngine builds an engine over store from the engine configuration.
func initEngine(store *storage.SQLiteStorage) (*engine.Engine, error) {
	cfg, err := config.LoadEngine(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return engine.NewWithConfig(store, cfg), nil
}

func closeStorage(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		slog.Error("failed to close storage", "error", err)
	}
}

// addOwnerFlag registers --owner; the value defaults to the configured owner.
func addOwnerFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("owner", "o", "", "owner whose data to use (default: config 'owner')")
}

func ownerFromFlags(cmd *cobra.Command) (string, error) {
	owner, _ := cmd.Flags().GetString("owner")
	if owner == "" {
		owner = viper.GetString("owner")
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", common.NewUserError("no owner given; pass --owner or set 'owner' in the config file", common.ErrMissingConfig)
	}
	return owner, nil
}

// parseAmount parses an optional decimal amount; "" means absent.
func parseAmount(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, common.InvalidInput("invalid amount %q", s)
	}
	return decimal.NewNullDecimal(d), nil
}
