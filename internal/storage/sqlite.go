package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"pagewatch/internal/model"
	"pagewatch/migrations"
)

// SQLite implements Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB

	mu sync.Mutex
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// LoadAll returns all targets ordered as they were last saved.
func (s *SQLite) LoadAll(ctx context.Context) ([]model.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, mode, interval_seconds, enabled, notify_on_check, attach_content, last_content, last_checked
		 FROM targets ORDER BY position, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	targets := []model.Target{}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// SaveAll replaces the whole targets table inside one transaction.
func (s *SQLite) SaveAll(ctx context.Context, targets []model.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM targets`); err != nil {
		return fmt.Errorf("clear targets: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO targets (id, position, url, mode, interval_seconds, enabled, notify_on_check, attach_content, last_content, last_checked)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, t := range targets {
		var content sql.NullString
		if t.LastContent != nil {
			content = sql.NullString{String: *t.LastContent, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			t.ID, i, t.URL, string(t.Mode), t.Interval,
			boolToInt(t.Enabled), boolToInt(t.NotifyOnCheck), boolToInt(t.AttachContent),
			content, t.LastChecked,
		)
		if err != nil {
			return fmt.Errorf("insert target %d: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// ReserveID advances the id high-water mark in the meta table.
func (s *SQLite) ReserveID(ctx context.Context, atLeast int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	err = tx.QueryRowContext(ctx, `SELECT last_id FROM meta WHERE id = 1`).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		// Databases created before the meta table existed.
		err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM targets`).Scan(&last)
	}
	if err != nil {
		return 0, fmt.Errorf("query last id: %w", err)
	}

	id := max(last+1, atLeast, 1)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO meta (id, last_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET last_id = excluded.last_id`,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("save last id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// LoadSettings returns the stored settings, or empty settings if none were saved.
func (s *SQLite) LoadSettings(ctx context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st model.Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_token, user_id FROM settings WHERE id = 1`,
	).Scan(&st.ChannelToken, &st.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Settings{}, nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("query settings: %w", err)
	}
	return st, nil
}

// SaveSettings upserts the single settings row.
func (s *SQLite) SaveSettings(ctx context.Context, st model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (id, channel_token, user_id) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET channel_token = excluded.channel_token, user_id = excluded.user_id`,
		st.ChannelToken, st.UserID,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTarget(row scannable) (model.Target, error) {
	var t model.Target
	var mode string
	var enabled, notify, attach int
	var content sql.NullString
	err := row.Scan(&t.ID, &t.URL, &mode, &t.Interval, &enabled, &notify, &attach, &content, &t.LastChecked)
	if err != nil {
		return t, fmt.Errorf("scan target: %w", err)
	}
	t.Mode = model.NormalizeMode(mode)
	t.Enabled = enabled == 1
	t.NotifyOnCheck = notify == 1
	t.AttachContent = attach == 1
	if content.Valid {
		c := content.String
		t.LastContent = &c
	}
	return t, nil
}
