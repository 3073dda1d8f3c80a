package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/benedict2310/sensorcast/internal/db/migrations"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.sqlite")
	db, err := Open(DefaultOptions(path))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	applied, err := RunMigrations(ctx, db)
	if err != nil {
		t.Fatalf("first RunMigrations() error = %v", err)
	}
	if applied != len(migrations.All()) {
		t.Fatalf("expected %d applied migrations, got %d", len(migrations.All()), applied)
	}
	upToDate, err := IsUpToDate(ctx, db)
	if err != nil {
		t.Fatalf("IsUpToDate() error = %v", err)
	}
	if !upToDate {
		t.Fatalf("expected schema to be up to date after first run")
	}

	applied, err = RunMigrations(ctx, db)
	if err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected no migrations on second run, got %d", applied)
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("query schema_migrations count: %v", err)
	}
	if count != len(migrations.All()) {
		t.Fatalf("expected %d tracking rows, got %d", len(migrations.All()), count)
	}
}

func TestMigrationStatusBeforeAndAfter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	states, err := MigrationStatus(ctx, db)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	for _, s := range states {
		if s.Applied || s.AppliedAt != nil {
			t.Fatalf("expected migration %d to be pending on a fresh db", s.Version)
		}
	}
	if upToDate, err := IsUpToDate(ctx, db); err != nil || upToDate {
		t.Fatalf("IsUpToDate() = %v, %v; want false, nil", upToDate, err)
	}

	if _, err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	states, err = MigrationStatus(ctx, db)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	for i, s := range states {
		if !s.Applied || s.AppliedAt == nil || *s.AppliedAt == "" {
			t.Fatalf("expected migration %d to be applied: %+v", s.Version, s)
		}
		if i > 0 && states[i-1].Version >= s.Version {
			t.Fatalf("migration status not in ascending order: %+v", states)
		}
	}
}

func TestRollbackLatestAndReapply(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	all := migrations.All()
	latest := all[len(all)-1].Version
	version, err := RollbackLatest(ctx, db)
	if err != nil {
		t.Fatalf("RollbackLatest() error = %v", err)
	}
	if version != latest {
		t.Fatalf("rolled back version %d, want %d", version, latest)
	}

	var tracked int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, latest).Scan(&tracked); err != nil {
		t.Fatalf("query tracking row: %v", err)
	}
	if tracked != 0 {
		t.Fatalf("expected tracking row for %d to be removed", latest)
	}
	if upToDate, _ := IsUpToDate(ctx, db); upToDate {
		t.Fatalf("expected schema to be behind after rollback")
	}

	applied, err := RunMigrations(ctx, db)
	if err != nil {
		t.Fatalf("RunMigrations() after rollback error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected exactly one re-applied migration, got %d", applied)
	}
}

func TestRollbackAllMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	for range migrations.All() {
		if _, err := RollbackLatest(ctx, db); err != nil {
			t.Fatalf("RollbackLatest() error = %v", err)
		}
	}
	if _, err := RollbackLatest(ctx, db); !errors.Is(err, ErrMigrationNotApplied) {
		t.Fatalf("expected ErrMigrationNotApplied on empty schema, got %v", err)
	}

	var tables int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('sensor_data', 'sensor_names')`).Scan(&tables); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if tables != 0 {
		t.Fatalf("expected all sensor tables dropped, found %d", tables)
	}
}

func TestRollbackMigrationNotApplied(t *testing.T) {
	db := openTestDB(t)
	if err := RollbackMigration(context.Background(), db, 2); !errors.Is(err, ErrMigrationNotApplied) {
		t.Fatalf("expected ErrMigrationNotApplied, got %v", err)
	}
}

func TestRollbackMigrationRefusesOlderVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	if err := RollbackMigration(ctx, db, 1); !errors.Is(err, ErrMigrationNotLatest) {
		t.Fatalf("RollbackMigration(1) error = %v, want ErrMigrationNotLatest", err)
	}

	var tracked int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&tracked); err != nil {
		t.Fatalf("query schema_migrations count: %v", err)
	}
	if tracked != len(migrations.All()) {
		t.Fatalf("expected %d tracking rows after refused rollback, got %d", len(migrations.All()), tracked)
	}
	if upToDate, err := IsUpToDate(ctx, db); err != nil || !upToDate {
		t.Fatalf("IsUpToDate() = %v, %v; want true, nil", upToDate, err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO sensor_data(sensor_mac, temperature, timestamp, rssi, gateway_id) VALUES(?, ?, ?, ?, ?)`,
		"aa:bb:cc:dd:ee:ff", 21.5, 1_700_000_000, -70, "gw1"); err != nil {
		t.Fatalf("insert after refused rollback: %v", err)
	}

	latest := migrations.All()[len(migrations.All())-1].Version
	if err := RollbackMigration(ctx, db, latest); err != nil {
		t.Fatalf("RollbackMigration(%d) error = %v", latest, err)
	}
}

func TestRunMigrationsNilDB(t *testing.T) {
	if _, err := RunMigrations(context.Background(), nil); err == nil {
		t.Fatalf("expected nil db error")
	}
}

func TestRunMigrationsClosedDBError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	db, err := Open(DefaultOptions(path))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := RunMigrations(context.Background(), db); err == nil {
		t.Fatalf("expected migration failure for closed db")
	}
}

func TestAppliedVersionsError(t *testing.T) {
	db := openTestDB(t)
	if _, err := appliedVersions(context.Background(), db); err == nil {
		t.Fatalf("expected error when schema_migrations table does not exist")
	}
}
