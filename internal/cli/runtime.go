package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	dbpkg "github.com/benedict2310/sensorcast/internal/db"
	"github.com/benedict2310/sensorcast/internal/server"
	"github.com/benedict2310/sensorcast/internal/store"
)

const storeCloseTimeout = 5 * time.Second

type globalOptions struct {
	configPath string
	dbPath     string
}

// resolveDBPath prefers --db, then the config file and SENSORCAST_* env.
func (o *globalOptions) resolveDBPath() (string, error) {
	if p := strings.TrimSpace(o.dbPath); p != "" {
		return p, nil
	}
	cfg, err := server.LoadConfig(o.configPath)
	if err != nil {
		return "", exitCodeError(exitUsage, err)
	}
	return cfg.ResolveDBPath(), nil
}

// openDB opens the database. Unless create is set, a missing file is an
// error instead of silently creating an empty database.
func (o *globalOptions) openDB(create bool) (*sql.DB, string, error) {
	path, err := o.resolveDBPath()
	if err != nil {
		return nil, "", err
	}
	if !create {
		if _, err := os.Stat(path); err != nil {
			return nil, path, fmt.Errorf("open database %s: %w", path, err)
		}
	}
	db, err := dbpkg.Open(dbpkg.DefaultOptions(path))
	if err != nil {
		return nil, path, err
	}
	return db, path, nil
}

type storeSession struct {
	db    *sql.DB
	path  string
	store *store.Store
}

func (s *storeSession) close() {
	ctx, cancel := context.WithTimeout(context.Background(), storeCloseTimeout)
	defer cancel()
	_ = s.store.Close(ctx)
	_ = s.db.Close()
}

// openStore refuses to run against a schema with pending migrations.
func (o *globalOptions) openStore(ctx context.Context) (*storeSession, error) {
	db, path, err := o.openDB(false)
	if err != nil {
		return nil, err
	}
	ok, err := dbpkg.IsUpToDate(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if !ok {
		_ = db.Close()
		return nil, exitCodeError(exitSchemaBehind, fmt.Errorf("database %s has pending migrations; run `sensorcast migrate up`", path))
	}
	st, err := store.New(db, store.Options{})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &storeSession{db: db, path: path, store: st}, nil
}
