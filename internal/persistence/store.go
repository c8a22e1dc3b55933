package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/aristath/taskgraph/internal/scheduler"
	_ "modernc.org/sqlite"
)

// StatusChange is one entry of a task's status history.
type StatusChange struct {
	From      scheduler.Status `json:"from"`
	To        scheduler.Status `json:"to"`
	ChangedAt time.Time        `json:"changed_at"`
}

// Store defines the persistence interface for task records and their status history.
type Store interface {
	// Task records
	SaveTask(ctx context.Context, task scheduler.Task) error
	SaveTasks(ctx context.Context, tasks []scheduler.Task) error
	GetTask(ctx context.Context, taskID string) (scheduler.Task, error)
	ListTasks(ctx context.Context) ([]scheduler.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status scheduler.Status) error
	DeleteTask(ctx context.Context, taskID string) error

	// Status history
	History(ctx context.Context, taskID string) ([]StatusChange, error)

	// Load returns every record; it satisfies store.Source.
	Load(ctx context.Context) ([]scheduler.Task, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite ignores _foreign_keys; _pragma applies to every new connection
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(1)", dbPath)
	return open(ctx, connStr)
}

var memoryDBs atomic.Int64

// NewMemoryStore creates an in-memory SQLite store, used by tests and dry runs.
// Each call gets its own database; connections of one store share it.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:taskgraph-mem-%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", memoryDBs.Add(1))
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One connection for the primary query, one for nested lookups
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
