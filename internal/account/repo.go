package account

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// User is a registered student or staff member. is_staff gates the
// instructor code endpoint.
type User struct {
	StudentID string `json:"student_id"`
	Username  string `json:"username"`
	IsStaff   bool   `json:"is_staff"`
}

var (
	// ErrNotFound is returned for unknown users.
	ErrNotFound = errors.New("account: user not found")
	// ErrExists means the student id or username is already taken.
	ErrExists = errors.New("account: user already exists")
)

const uniqueViolation = "23505"

// Repository persists users in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, u User, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (student_id, username, password_hash, is_staff)
		VALUES ($1, $2, $3, $4)
	`, u.StudentID, u.Username, passwordHash, u.IsStaff)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrExists
		}
		return err
	}
	return nil
}

// ByUsername returns a user and their password hash for login.
func (r *Repository) ByUsername(ctx context.Context, username string) (User, string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, username, password_hash, is_staff FROM users WHERE username = $1
	`, username)
	var u User
	var hash string
	if err := row.Scan(&u.StudentID, &u.Username, &hash, &u.IsStaff); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, "", ErrNotFound
		}
		return User{}, "", err
	}
	return u, hash, nil
}

// ByID returns a user by student id.
func (r *Repository) ByID(ctx context.Context, studentID string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, username, is_staff FROM users WHERE student_id = $1
	`, studentID)
	var u User
	if err := row.Scan(&u.StudentID, &u.Username, &u.IsStaff); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}
