package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/benedict2310/sensorcast/internal/db/migrations"
)

var (
	ErrMigrationNotApplied = errors.New("migration is not applied")
	ErrMigrationNotLatest  = errors.New("a later migration is still applied")
)

// MigrationState describes one defined migration and whether it is recorded
// in schema_migrations.
type MigrationState struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *string
}

// RunMigrations applies every pending migration in ascending version order,
// each in its own transaction, and returns how many were applied. The first
// failure rolls back that migration and stops; later migrations are not
// attempted.
func RunMigrations(ctx context.Context, db *sql.DB) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("database is nil")
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return 0, err
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range migrations.All() {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return count, fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			_ = tx.Rollback()
			return count, fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES(?, ?)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return count, fmt.Errorf("record migration %d (%s): %w", m.Version, m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return count, fmt.Errorf("commit migration %d (%s): %w", m.Version, m.Name, err)
		}
		count++
	}

	return count, nil
}

// RollbackMigration reverts one applied migration and removes its tracking
// row. Only the newest applied version can be rolled back; anything older
// returns ErrMigrationNotLatest and leaves the schema untouched.
func RollbackMigration(ctx context.Context, db *sql.DB, version int) error {
	if db == nil {
		return fmt.Errorf("database is nil")
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	if _, ok := applied[version]; !ok {
		return fmt.Errorf("rollback migration %d: %w", version, ErrMigrationNotApplied)
	}
	for v := range applied {
		if v > version {
			return fmt.Errorf("rollback migration %d: %w (version %d)", version, ErrMigrationNotLatest, v)
		}
	}

	var target *migrations.Migration
	for _, m := range migrations.All() {
		if m.Version == version {
			m := m
			target = &m
			break
		}
	}
	if target == nil {
		return fmt.Errorf("rollback migration %d: no such migration defined", version)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollback %d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, target.DownSQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("rollback migration %d (%s): %w", target.Version, target.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, target.Version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("unrecord migration %d (%s): %w", target.Version, target.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback %d (%s): %w", target.Version, target.Name, err)
	}
	return nil
}

// RollbackLatest reverts the most recently applied migration and returns its
// version. It returns ErrMigrationNotApplied when nothing is applied.
func RollbackLatest(ctx context.Context, db *sql.DB) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("database is nil")
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return 0, err
	}
	var latest sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&latest); err != nil {
		return 0, fmt.Errorf("query latest migration: %w", err)
	}
	if !latest.Valid {
		return 0, ErrMigrationNotApplied
	}
	version := int(latest.Int64)
	if err := RollbackMigration(ctx, db, version); err != nil {
		return 0, err
	}
	return version, nil
}

func MigrationStatus(ctx context.Context, db *sql.DB) ([]MigrationState, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	all := migrations.All()
	out := make([]MigrationState, 0, len(all))
	for _, m := range all {
		state := MigrationState{Version: m.Version, Name: m.Name}
		if at, ok := applied[m.Version]; ok {
			at := at
			state.Applied = true
			state.AppliedAt = &at
		}
		out = append(out, state)
	}
	return out, nil
}

func IsUpToDate(ctx context.Context, db *sql.DB) (bool, error) {
	states, err := MigrationStatus(ctx, db)
	if err != nil {
		return false, err
	}
	for _, s := range states {
		if !s.Applied {
			return false, nil
		}
	}
	return true, nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
`); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	out := map[int]string{}
	for rows.Next() {
		var (
			v  int
			at string
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan applied migration version: %w", err)
		}
		out[v] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return out, nil
}
