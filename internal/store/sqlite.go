// Package store keeps datafeed state in SQLite so a restarted bot resumes
// the same feed and does not dispatch redelivered events twice.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"symphonybdk/internal/domain"

	_ "modernc.org/sqlite"
)

const datafeedIDKey = "datafeed_id"

// SQLiteStore implements domain.StateStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ domain.StateStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

func (s *SQLiteStore) DatafeedID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM datafeed_state WHERE key = ?`, datafeedIDKey,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("read datafeed id: %w", err)
	}

	id = uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO datafeed_state (key, value, updated_at) VALUES (?, ?, ?)`,
		datafeedIDKey, id, s.now().UnixMilli(),
	); err != nil {
		return "", fmt.Errorf("store datafeed id: %w", err)
	}
	s.logger.Info("created datafeed id", "datafeed_id", id)
	return id, nil
}

func (s *SQLiteStore) ResetDatafeedID(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM datafeed_state WHERE key = ?`, datafeedIDKey)
	if err != nil {
		return fmt.Errorf("reset datafeed id: %w", err)
	}
	return nil
}

// Unseen filters out events already recorded by MarkSeen. Events without an
// ID are always unseen.
func (s *SQLiteStore) Unseen(ctx context.Context, events []domain.V4Event) ([]domain.V4Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	inBatch := make(map[string]bool, len(events))
	unseen := make([]domain.V4Event, 0, len(events))
	for _, e := range events {
		if e.ID == "" {
			unseen = append(unseen, e)
			continue
		}
		if inBatch[e.ID] {
			continue
		}
		inBatch[e.ID] = true

		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM seen_events WHERE id = ?`, e.ID).Scan(&one)
		if err == sql.ErrNoRows {
			unseen = append(unseen, e)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("look up event %s: %w", e.ID, err)
		}
	}
	return unseen, nil
}

// MarkSeen records events by ID. Events without an ID cannot be tracked and
// are always returned as unseen.
func (s *SQLiteStore) MarkSeen(ctx context.Context, events []domain.V4Event) ([]domain.V4Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin mark seen: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	unseen := make([]domain.V4Event, 0, len(events))
	for _, e := range events {
		if e.ID == "" {
			unseen = append(unseen, e)
			continue
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO seen_events (id, type, received_at) VALUES (?, ?, ?)`,
			e.ID, e.Type, now,
		)
		if err != nil {
			return nil, fmt.Errorf("record event %s: %w", e.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 1 {
			unseen = append(unseen, e)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mark seen: %w", err)
	}
	return unseen, nil
}

func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM seen_events WHERE received_at < ?`, before.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune seen events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("pruned seen events", "count", n, "before", before)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
