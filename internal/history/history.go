// Package history records past connections and the commands sent through
// them in a local SQLite database.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connection is one session with a remote host, from connect to close.
type Connection struct {
	ID        string `gorm:"primaryKey"`
	Host      string
	User      string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Command is one line sent to the remote shell during a connection.
type Command struct {
	ID           uint `gorm:"primaryKey;autoIncrement"`
	ConnectionID string
	Line         string
	SentAt       time.Time
}

// Store is the command-history database.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the history database at dbPath and runs the
// schema migration.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("history: get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}

	if err := db.AutoMigrate(&Connection{}, &Command{}); err != nil {
		return nil, fmt.Errorf("history: auto-migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// StartConnection records a new session and returns its ID.
func (s *Store) StartConnection(host, user string) (string, error) {
	conn := Connection{
		ID:        uuid.NewString(),
		Host:      host,
		User:      user,
		StartedAt: time.Now(),
	}
	if err := s.db.Create(&conn).Error; err != nil {
		return "", fmt.Errorf("history: record connection: %w", err)
	}
	return conn.ID, nil
}

// EndConnection stamps the session's end time.
func (s *Store) EndConnection(id string) error {
	now := time.Now()
	if err := s.db.Model(&Connection{}).Where("id = ?", id).Update("ended_at", &now).Error; err != nil {
		return fmt.Errorf("history: end connection: %w", err)
	}
	return nil
}

// RecordCommand stores one shell line under the given connection.
func (s *Store) RecordCommand(connectionID, line string) error {
	cmd := Command{
		ConnectionID: connectionID,
		Line:         line,
		SentAt:       time.Now(),
	}
	if err := s.db.Create(&cmd).Error; err != nil {
		return fmt.Errorf("history: record command: %w", err)
	}
	return nil
}

// RecentConnections returns the latest sessions, newest first.
func (s *Store) RecentConnections(limit int) ([]Connection, error) {
	var conns []Connection
	if err := s.db.Order("started_at DESC").Limit(limit).Find(&conns).Error; err != nil {
		return nil, fmt.Errorf("history: list connections: %w", err)
	}
	return conns, nil
}

// Commands returns all lines sent during one connection, oldest first.
func (s *Store) Commands(connectionID string) ([]Command, error) {
	var cmds []Command
	if err := s.db.Where("connection_id = ?", connectionID).Order("id").Find(&cmds).Error; err != nil {
		return nil, fmt.Errorf("history: list commands: %w", err)
	}
	return cmds, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
