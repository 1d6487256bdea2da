package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore implements Store on a local sqlite database.
type SQLiteStore struct {
	db          *sql.DB
	defaultLoc  *time.Location
	defaultZone string
}

// OpenSQLite opens (creating if needed) the reminder database at path,
// runs pending migrations, and returns the store. defaultZone is used
// for rows whose timezone cell cannot be resolved.
func OpenSQLite(path, defaultZone string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// sqlite allows one writer; serialize through the pool.
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	loc, err := time.LoadLocation(defaultZone)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("resolve default timezone %q: %w", defaultZone, err)
	}

	slog.Info("reminder store ready", "path", path, "timezone", defaultZone)
	return &SQLiteStore{db: db, defaultLoc: loc, defaultZone: defaultZone}, nil
}

// NewMigrator builds a migrator over the embedded schema migrations.
func NewMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, nil
}

// Migrate applies all pending schema migrations to db.
func Migrate(db *sql.DB) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, r NewReminder) (int64, error) {
	tz := r.Timezone
	if tz == "" {
		tz = s.defaultZone
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, due_at, task, timezone, comment, forward_author, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), r.DueAt, r.Task, tz, r.Comment, r.ForwardAuthor, r.UserID, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("append reminder: %w", err)
	}
	row, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("resolve appended row: %w", err)
	}
	slog.Info("reminder stored", "row", row, "due_at", r.DueAt, "user_id", r.UserID)
	return row, nil
}

func (s *SQLiteStore) MarkSent(ctx context.Context, row int64) error {
	return s.updateCell(ctx, row, "sent", 1)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, row int64, status string) error {
	return s.updateCell(ctx, row, "status", status)
}

func (s *SQLiteStore) UpdateDueAt(ctx context.Context, row int64, dueAt string) error {
	return s.updateCell(ctx, row, "due_at", dueAt)
}

// updateCell writes a single cell of one row. column is always one of
// the fixed identifiers above, never user input.
func (s *SQLiteStore) updateCell(ctx context.Context, row int64, column string, value any) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE reminders SET %s = ? WHERE rowid = ?", column), value, row)
	if err != nil {
		return fmt.Errorf("update %s for row %d: %w", column, row, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s for row %d: %w", column, row, err)
	}
	if n == 0 {
		return fmt.Errorf("row %d not found", row)
	}
	return nil
}

const selectColumns = `rowid, id, due_at, task, timezone, sent, status, comment, forward_author, user_id, created_at`

func (s *SQLiteStore) ListDue(ctx context.Context, before time.Time) ([]Reminder, error) {
	// Due comparison happens here rather than in SQL: due_at is a
	// wall-clock string local to each row's timezone.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM reminders WHERE sent = 0 AND due_at != '' ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var due []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		t, err := r.DueTime(s.defaultLoc)
		if err != nil {
			slog.Warn("skipping reminder with unparsable due time", "row", r.Row, "error", err)
			continue
		}
		if !t.After(before) {
			due = append(due, r)
		}
	}
	return due, rows.Err()
}

func (s *SQLiteStore) ListUndated(ctx context.Context, excluding ...string) ([]Reminder, error) {
	query := `SELECT ` + selectColumns + ` FROM reminders WHERE due_at = ''`
	args := make([]any, 0, len(excluding))
	for _, status := range excluding {
		query += ` AND status != ?`
		args = append(args, status)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list undated reminders: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetByRow(ctx context.Context, row int64) (*Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM reminders WHERE rowid = ?`, row)
	if err != nil {
		return nil, fmt.Errorf("get reminder row %d: %w", row, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get reminder row %d: %w", row, err)
		}
		return nil, fmt.Errorf("row %d not found", row)
	}
	r, err := scanReminder(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanReminder(rows *sql.Rows) (Reminder, error) {
	var r Reminder
	var sent int
	var createdAt int64
	err := rows.Scan(&r.Row, &r.ID, &r.DueAt, &r.Task, &r.Timezone, &sent,
		&r.Status, &r.Comment, &r.ForwardAuthor, &r.UserID, &createdAt)
	if err != nil {
		return Reminder{}, fmt.Errorf("scan reminder row: %w", err)
	}
	r.Sent = sent != 0
	r.CreatedAt = time.Unix(createdAt, 0)
	return r, nil
}
