// Package ledger is the append-only source of truth for attendance facts.
// Records are never updated or deleted; every derived view (streaks, day
// buckets, leaderboards) is recomputed from here.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Record is one immutable attendance fact.
type Record struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	LectureID int64     `json:"lecture_id"`
	MarkedAt  time.Time `json:"marked_at"`
	CodeUsed  string    `json:"code_used"`
}

// ErrDuplicate means a record already exists for (student, lecture).
var ErrDuplicate = errors.New("ledger: duplicate record")

const uniqueViolation = "23505"

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Append inserts a record. The composite primary key on
// (student_id, lecture_id) makes concurrent double-submits collapse to a
// single row; the loser gets ErrDuplicate.
func (r *Repository) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (student_id, lecture_id, marked_at, code_used, record_id)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.StudentID, rec.LectureID, rec.MarkedAt, rec.CodeUsed, rec.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// ByStudent returns the student's records, optionally bounded by marked_at.
// Zero bounds are open.
func (r *Repository) ByStudent(ctx context.Context, studentID string, from, to time.Time) ([]Record, error) {
	query := `
		SELECT record_id, student_id, lecture_id, marked_at, code_used
		FROM attendance_records
		WHERE student_id = $1`
	args := []any{studentID}
	if !from.IsZero() {
		args = append(args, from)
		query += ` AND marked_at >= $2`
	}
	if !to.IsZero() {
		args = append(args, to)
		if len(args) == 3 {
			query += ` AND marked_at <= $3`
		} else {
			query += ` AND marked_at <= $2`
		}
	}
	query += ` ORDER BY marked_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ByCourse returns every record for lectures belonging to the course.
func (r *Repository) ByCourse(ctx context.Context, courseCode string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.record_id, a.student_id, a.lecture_id, a.marked_at, a.code_used
		FROM attendance_records a
		JOIN lectures l ON l.id = a.lecture_id
		JOIN modules m ON m.id = l.module_id
		WHERE m.course_code = $1
		ORDER BY a.marked_at
	`, courseCode)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.LectureID, &rec.MarkedAt, &rec.CodeUsed); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
