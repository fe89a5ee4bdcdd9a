package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/sourcequal/codequal/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one versioned schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// Migrator applies embedded SQL migrations in version order, recording
// applied versions in a migrations table, following the teacher's
// embed.FS-backed AutoMigrate pattern.
type Migrator struct {
	db     *sql.DB
	logger logger.Logger
}

func NewMigrator(db *sql.DB, logger logger.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

func (m *Migrator) CreateMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version VARCHAR(255) PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("database: failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) GetAppliedMigrations() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("database: failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("database: failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// GetAvailableMigrations parses filenames of the form
// <14-digit-timestamp>_<action>_<description>.sql out of the embedded
// migrations directory.
func (m *Migrator) GetAvailableMigrations() ([]Migration, error) {
	files, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("database: failed to read embedded migrations: %w", err)
	}

	var migrations []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		baseName := strings.TrimSuffix(name, ".sql")
		parts := strings.Split(baseName, "_")
		if len(parts) < 3 {
			continue
		}
		version := parts[0]
		if len(version) != 14 {
			continue
		}
		action := parts[1]
		if action != "create" && action != "update" && action != "delete" {
			continue
		}

		content, err := fs.ReadFile(migrationFS, "migrations/"+name)
		if err != nil {
			return nil, fmt.Errorf("database: failed to read embedded migration %s: %w", name, err)
		}

		migrations = append(migrations, Migration{
			Version:     version,
			Description: baseName,
			SQL:         string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func (m *Migrator) ApplyMigration(migration Migration) error {
	m.logger.Info("applying migration %s", migration.Description)

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("database: failed to begin migration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("database: failed to execute migration %s: %w", migration.Description, err)
	}
	if _, err = tx.Exec(
		"INSERT INTO migrations (version, description, applied_at) VALUES (?, ?, ?)",
		migration.Version, migration.Description, time.Now(),
	); err != nil {
		return fmt.Errorf("database: failed to record migration %s: %w", migration.Description, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("database: failed to commit migration %s: %w", migration.Description, err)
	}

	m.logger.Info("migration %s applied", migration.Description)
	return nil
}

// AutoMigrate applies every available migration not yet recorded.
func (m *Migrator) AutoMigrate() error {
	if err := m.CreateMigrationTable(); err != nil {
		return err
	}
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return err
	}
	available, err := m.GetAvailableMigrations()
	if err != nil {
		return err
	}
	for _, migration := range available {
		if !applied[migration.Version] {
			if err := m.ApplyMigration(migration); err != nil {
				return fmt.Errorf("database: auto-migrate failed at %s: %w", migration.Version, err)
			}
		}
	}
	m.logger.Info("auto migration completed")
	return nil
}
