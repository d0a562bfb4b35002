package snapshot

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/proffectiv/warrantyflow/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS status_snapshot (
	ticket_id  TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// SQLiteStore keeps the snapshot in a local SQLite database, one row per
// tracked ticket. Save swaps the whole table inside a transaction.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *log.Logger
}

var _ Store = (*SQLiteStore)(nil)

// snapshotRow mirrors the status_snapshot table.
type snapshotRow struct {
	TicketID  string    `db:"ticket_id"`
	Status    string    `db:"status"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteLogger overrides the default logger.
func WithSQLiteLogger(logger *log.Logger) SQLiteOption {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OpenSQLite opens (creating if necessary) the database at path and
// ensures the snapshot table exists. Use ":memory:" for tests.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot db %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging snapshot db %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot schema: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: log.New(log.Writer(), "[SNAPSHOT] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads every tracked ticket. An empty table yields an empty map.
func (s *SQLiteStore) Load(ctx context.Context) (models.Snapshot, error) {
	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT ticket_id, status, updated_at FROM status_snapshot"); err != nil {
		return nil, fmt.Errorf("loading snapshot rows: %w", err)
	}

	snap := models.Snapshot{}
	for _, row := range rows {
		snap[row.TicketID] = models.Status(row.Status)
	}
	return snap, nil
}

// Save replaces the stored snapshot inside a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap models.Snapshot) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM status_snapshot"); err != nil {
		return fmt.Errorf("clearing snapshot table: %w", err)
	}

	now := time.Now().UTC()
	for id, status := range snap {
		row := snapshotRow{TicketID: id, Status: string(status), UpdatedAt: now}
		_, err := tx.NamedExecContext(ctx,
			"INSERT INTO status_snapshot (ticket_id, status, updated_at) VALUES (:ticket_id, :status, :updated_at)",
			row)
		if err != nil {
			return fmt.Errorf("inserting snapshot row %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	s.logger.Printf("saved %d tracked tickets to sqlite", len(snap))
	return nil
}
