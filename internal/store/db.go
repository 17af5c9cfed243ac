package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Migrate applies the schema. The composite primary key on
// attendance_records is the storage-level guard against double marking.
func (d *DB) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		student_id    TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_staff      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS courses (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS modules (
		id          BIGSERIAL PRIMARY KEY,
		course_code TEXT NOT NULL REFERENCES courses(code),
		name        TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lectures (
		id          BIGSERIAL PRIMARY KEY,
		module_id   BIGINT NOT NULL REFERENCES modules(id),
		lecturer_id TEXT NOT NULL REFERENCES users(student_id),
		room        TEXT,
		start_time  TIMESTAMPTZ NOT NULL,
		end_time    TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		student_id  TEXT NOT NULL REFERENCES users(student_id),
		course_code TEXT NOT NULL REFERENCES courses(code),
		PRIMARY KEY (student_id, course_code)
	);

	CREATE TABLE IF NOT EXISTS attendance_records (
		student_id TEXT NOT NULL REFERENCES users(student_id),
		lecture_id BIGINT NOT NULL REFERENCES lectures(id),
		marked_at  TIMESTAMPTZ NOT NULL,
		code_used  TEXT NOT NULL,
		record_id  TEXT NOT NULL,
		PRIMARY KEY (student_id, lecture_id)
	);

	CREATE INDEX IF NOT EXISTS idx_lectures_window   ON lectures(start_time, end_time);
	CREATE INDEX IF NOT EXISTS idx_lectures_lecturer ON lectures(lecturer_id);
	CREATE INDEX IF NOT EXISTS idx_records_student   ON attendance_records(student_id);
	`
	if _, err := d.Client.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
