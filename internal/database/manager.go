// Package database owns the SQLite connection pool and schema migrations
// backing Storage (spec §4.A).
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sourcequal/codequal/pkg/logger"
)

// Config controls the SQLite connection pool.
type Config struct {
	DataDir         string
	DatabaseName    string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:         dataDir,
		DatabaseName:    "codequal.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 15 * time.Minute,
	}
}

// Manager owns the *sql.DB and runs migrations on Initialize.
type Manager struct {
	db     *sql.DB
	config Config
	logger logger.Logger
	mutex  sync.RWMutex
}

func NewManager(config Config, logger logger.Logger) *Manager {
	return &Manager{config: config, logger: logger}
}

func (m *Manager) Initialize() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := os.MkdirAll(m.config.DataDir, 0755); err != nil {
		return fmt.Errorf("database: failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(m.config.DataDir, m.config.DatabaseName)

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("database: failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(m.config.MaxOpenConns)
	db.SetMaxIdleConns(m.config.MaxIdleConns)
	db.SetConnMaxLifetime(m.config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return fmt.Errorf("database: failed to ping sqlite: %w", err)
	}

	m.db = db

	migrator := NewMigrator(db, m.logger)
	if err := migrator.AutoMigrate(); err != nil {
		return err
	}

	m.logger.Info("database initialized at %s", dbPath)
	return nil
}

func (m *Manager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *Manager) DB() *sql.DB {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.db
}
