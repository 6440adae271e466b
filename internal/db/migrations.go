package db

import (
	"context"
	"fmt"
	"strings"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		sql:     initialSchemaV1,
	},
	{
		version: 2,
		name:    "post_history",
		sql:     postHistorySchemaV2,
	},
}

func ApplyMigrations(ctx context.Context, database *DB) error {
	if _, err := database.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_version (
	version     INTEGER PRIMARY KEY,
	name        TEXT NOT NULL,
	applied_at  TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure schema_version table: %w", err)
	}

	for _, m := range migrations {
		applied, err := migrationApplied(ctx, database, m.version)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if applied {
			continue
		}
		if err := applyMigration(ctx, database, m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
		database.logger.InfoContext(ctx, "migration applied", "version", m.version, "name", m.name)
	}

	return nil
}

// SchemaVersion returns the highest applied migration.
func SchemaVersion(ctx context.Context, database *DB) (int, error) {
	var latest int
	err := database.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&latest)
	return latest, err
}

func migrationApplied(ctx context.Context, database *DB, version int) (bool, error) {
	var count int
	if err := database.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM schema_version WHERE version = ?",
		version,
	).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func applyMigration(ctx context.Context, database *DB, m migration) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range statements(database.dialect, m.sql) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w\n%s", err, stmt)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, name, applied_at) VALUES (?, ?, ?)",
		m.version, m.name, formatTime(database.now()),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// statements expands dialect tokens and splits a migration into single
// statements. Migrations hold no semicolons inside literals.
func statements(d Dialect, script string) []string {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == Postgres {
		pk = "BIGSERIAL PRIMARY KEY"
	}
	script = strings.ReplaceAll(script, "{{pk}}", pk)

	out := make([]string, 0)
	for _, stmt := range strings.Split(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
