package configstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Persistence stores module-namespace entries in SQLite so they
// survive restarts and atomic reloads.
type Persistence struct {
	db   *sql.DB
	path string
}

// NewPersistence creates a persistence layer backed by the SQLite
// database at path (":memory:" for tests).
func NewPersistence(path string) (*Persistence, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &Persistence{path: path}, nil
}

// Init opens the database, enables WAL mode and runs migrations.
func (p *Persistence) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", p.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	p.db = db
	return p.migrate()
}

// migrate runs the embedded schema migrations.
func (p *Persistence) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(p.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SaveEntry upserts one module-namespace entry. Values are stored as
// JSON.
func (p *Persistence) SaveEntry(ctx context.Context, module, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO module_entries (module, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (module, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		module, key, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to save entry %s/%s: %w", module, key, err)
	}
	return nil
}

// LoadEntries returns all persisted entries keyed by their fully
// qualified module:<name>:<key> form.
func (p *Persistence) LoadEntries(ctx context.Context) (map[string]any, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT module, key, value FROM module_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]any)
	for rows.Next() {
		var module, key, raw string
		if err := rows.Scan(&module, &key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("failed to decode entry %s/%s: %w", module, key, err)
		}
		entries[NamespaceModule+":"+module+":"+key] = value
	}
	return entries, rows.Err()
}

// Close closes the database.
func (p *Persistence) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
