package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/muscatlabs/bankfeed/internal/bank"
	"github.com/muscatlabs/bankfeed/internal/engine"
	"github.com/muscatlabs/bankfeed/internal/model"
	"github.com/muscatlabs/bankfeed/internal/normalize"
	"github.com/muscatlabs/bankfeed/internal/service"
	"github.com/muscatlabs/bankfeed/internal/storage"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	// Get database path from config
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/bankfeed/bankfeed.db"
	}

	// Expand tilde and environment variables
	dbPath = expandPath(dbPath)

	// Initialize storage
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// expandPath resolves a leading tilde and any environment variables in a
// filesystem path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// buildEngine wires the ingestion engine with configured policy values.
func buildEngine(store service.Storage) *engine.Engine {
	registry := bank.NewRegistry()
	normalizer := normalize.New(viper.GetStringSlice("ingest.transfer_patterns")...)

	cfg := engine.Config{
		DedupWindow: time.Duration(viper.GetInt("ingest.dedup_window_hours")) * time.Hour,
		LockTimeout: time.Duration(viper.GetInt("ingest.lock_timeout_seconds")) * time.Second,
		Workers:     viper.GetInt("ingest.workers"),
	}

	return engine.New(store, registry, normalizer, cfg)
}

// resolveAccount accepts either an account ID or an account number.
func resolveAccount(ctx context.Context, store service.Storage, ref string) (*model.Account, error) {
	account, err := store.GetAccountByID(ctx, ref)
	if err == nil {
		return account, nil
	}

	account, err = store.GetAccountByNumber(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("no account with id or number %q: %w", ref, err)
	}
	return account, nil
}
