package account

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"attendance/internal/auth"
)

// ErrBadCredentials covers both unknown usernames and wrong passwords so
// login failures do not leak which one it was.
var ErrBadCredentials = errors.New("account: invalid username or password")

// Users is the persistence surface the service needs.
type Users interface {
	Create(ctx context.Context, u User, passwordHash string) error
	ByUsername(ctx context.Context, username string) (User, string, error)
	ByID(ctx context.Context, studentID string) (User, error)
}

// Service handles registration and login.
type Service struct {
	users  Users
	issuer string
	key    string
	ttl    time.Duration
}

// NewService wires the account dependencies.
func NewService(users Users, issuer, key string, ttl time.Duration) *Service {
	return &Service{users: users, issuer: issuer, key: key, ttl: ttl}
}

// Register creates a user and issues their first token.
func (s *Service) Register(ctx context.Context, studentID, username, password string, isStaff bool) (User, auth.Token, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, auth.Token{}, err
	}
	u := User{StudentID: studentID, Username: username, IsStaff: isStaff}
	if err := s.users.Create(ctx, u, string(hash)); err != nil {
		return User{}, auth.Token{}, err
	}
	token, err := auth.Issue(u.StudentID, u.Username, u.IsStaff, s.issuer, s.key, s.ttl)
	return u, token, err
}

// Login authenticates a user and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (User, auth.Token, error) {
	u, hash, err := s.users.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, auth.Token{}, ErrBadCredentials
		}
		return User{}, auth.Token{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, auth.Token{}, ErrBadCredentials
	}
	token, err := auth.Issue(u.StudentID, u.Username, u.IsStaff, s.issuer, s.key, s.ttl)
	return u, token, err
}
