// Package history persists conversation turns and per-user model
// preferences in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gembot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.HistoryStore using SQLite.
type SQLiteStore struct {
	db           *sql.DB
	defaultModel string
	logger       *slog.Logger
}

func NewSQLiteStore(dbPath, defaultModel string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, defaultModel: defaultModel, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id         TEXT NOT NULL,
		query           TEXT,
		response        TEXT,
		attachment_refs TEXT,
		model           TEXT,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_history_user ON history(user_id, created_at);

	CREATE TABLE IF NOT EXISTS user_models (
		user_id     TEXT PRIMARY KEY,
		model       TEXT NOT NULL,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, rec domain.ConversationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	refs := strings.Join(rec.AttachmentRefs, ",")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (user_id, query, response, attachment_refs, model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.Query, rec.Response, refs, rec.Model, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	s.logger.Info("history cleared", "user", userID)
	return nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, userID string) ([]domain.ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, query, response, attachment_refs, model, created_at
		 FROM history WHERE user_id = ?
		 ORDER BY created_at ASC, id ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var records []domain.ConversationRecord
	for rows.Next() {
		var rec domain.ConversationRecord
		var refs sql.NullString
		if err := rows.Scan(&rec.UserID, &rec.Query, &rec.Response, &refs, &rec.Model, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if refs.Valid && refs.String != "" {
			rec.AttachmentRefs = strings.Split(refs.String, ",")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CurrentModel returns the user's stored preference, or the baseline model
// when none is recorded.
func (s *SQLiteStore) CurrentModel(ctx context.Context, userID string) (string, error) {
	var model string
	err := s.db.QueryRowContext(ctx,
		`SELECT model FROM user_models WHERE user_id = ?`, userID,
	).Scan(&model)
	if err == sql.ErrNoRows {
		return s.defaultModel, nil
	}
	if err != nil {
		return "", fmt.Errorf("current model: %w", err)
	}
	return model, nil
}

func (s *SQLiteStore) SetModel(ctx context.Context, userID, model string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_models (user_id, model, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET model = excluded.model, updated_at = excluded.updated_at`,
		userID, model, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("set model: %w", err)
	}
	s.logger.Info("model preference updated", "user", userID, "model", model)
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
