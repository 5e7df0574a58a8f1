package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS accounts (
					id TEXT PRIMARY KEY,
					number TEXT UNIQUE NOT NULL,
					bank_name TEXT NOT NULL DEFAULT '',
					currency TEXT NOT NULL,
					branch TEXT NOT NULL DEFAULT '',
					baseline TEXT NOT NULL DEFAULT '0',
					balance TEXT NOT NULL DEFAULT '0',
					balance_updated_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					account_id TEXT NOT NULL,
					fingerprint TEXT NOT NULL,
					value_date DATETIME NOT NULL,
					post_date DATETIME,
					narration TEXT NOT NULL,
					counterparty TEXT NOT NULL DEFAULT '',
					reference TEXT NOT NULL DEFAULT '',
					amount TEXT NOT NULL,
					currency TEXT NOT NULL,
					type TEXT NOT NULL,
					source TEXT NOT NULL,
					category TEXT NOT NULL DEFAULT '',
					category_source TEXT NOT NULL DEFAULT 'AUTO',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (account_id) REFERENCES accounts(id)
				)`,
				`CREATE UNIQUE INDEX idx_transactions_account_fingerprint ON transactions(account_id, fingerprint)`,
				`CREATE INDEX idx_transactions_value_date ON transactions(value_date)`,
				`CREATE INDEX idx_transactions_account_date ON transactions(account_id, value_date)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Categories and mapping rules",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					type TEXT NOT NULL,
					is_active BOOLEAN DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(name, type)
				)`,

				`CREATE TABLE IF NOT EXISTS mapping_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					pattern TEXT NOT NULL,
					category TEXT NOT NULL,
					kind TEXT NOT NULL DEFAULT 'substring',
					priority INTEGER NOT NULL DEFAULT 0,
					is_active BOOLEAN DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(pattern, kind)
				)`,
				`CREATE INDEX idx_mapping_rules_priority ON mapping_rules(priority DESC)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Seed default category taxonomy",
		Up: func(tx *sql.Tx) error {
			seed := []struct {
				name, description, typ string
			}{
				{"Salary", "Regular employment income", "income"},
				{"Other Income", "Deposits and incoming transfers", "income"},
				{"Groceries", "Supermarkets and food shops", "expense"},
				{"Dining", "Restaurants and cafes", "expense"},
				{"Utilities", "Electricity, water, telecom", "expense"},
				{"Fuel", "Petrol stations", "expense"},
				{"Shopping", "Retail purchases", "expense"},
				{"Fees", "Bank charges and service fees", "expense"},
				{"Cash", "ATM and CDM cash movement", "transfer"},
				{"Own Transfer", "Transfers between own accounts", "transfer"},
				// The fallback exists for every direction a transaction can have.
				{"Uncategorized", "No mapping rule matched", "income"},
				{"Uncategorized", "No mapping rule matched", "expense"},
				{"Uncategorized", "No mapping rule matched", "transfer"},
			}
			for _, c := range seed {
				if _, err := tx.Exec(
					`INSERT OR IGNORE INTO categories (name, description, type) VALUES (?, ?, ?)`,
					c.name, c.description, c.typ,
				); err != nil {
					return fmt.Errorf("failed to seed category %q: %w", c.name, err)
				}
			}

			rules := []struct {
				pattern, category, kind string
				priority                int
			}{
				{"SALARY", "Salary", "prefix", 100},
				{"LULU", "Groceries", "substring", 50},
				{"MART", "Groceries", "substring", 40},
				{"CDM", "Cash", "prefix", 60},
				{"ATM", "Cash", "prefix", 60},
				{"FEE", "Fees", "substring", 30},
			}
			for _, r := range rules {
				if _, err := tx.Exec(
					`INSERT OR IGNORE INTO mapping_rules (pattern, category, kind, priority) VALUES (?, ?, ?, ?)`,
					r.pattern, r.category, r.kind, r.priority,
				); err != nil {
					return fmt.Errorf("failed to seed rule %q: %w", r.pattern, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
