package code

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"
)

// Code is an ephemeral verification value bound to one lecture. At most one
// code is valid for a lecture at any instant; ValidUntil is a hard deadline
// checked on every read, independent of rotation timing.
type Code struct {
	Value      string    `json:"code"`
	LectureID  int64     `json:"lecture_id"`
	IssuedAt   time.Time `json:"issued_at"`
	ValidUntil time.Time `json:"valid_until"`
}

// Live reports whether the code is still valid at t.
func (c Code) Live(t time.Time) bool {
	return t.Before(c.ValidUntil)
}

var (
	// ErrNotFound means no code is currently valid for the lookup.
	ErrNotFound = errors.New("code: not found")
	// ErrExhausted means no collision-free candidate could be generated.
	ErrExhausted = errors.New("code: candidate space exhausted")
)

// Store holds the current valid code per lecture. Implementations must make
// rotate-or-fetch atomic per lecture: concurrent readers never observe two
// different active codes for the same instant.
type Store interface {
	// Active returns the current unexpired code for the lecture, atomically
	// issuing a fresh one when the stored code is absent or expired.
	Active(ctx context.Context, lectureID int64, now time.Time) (Code, error)
	// Resolve maps a submitted value to the lecture it is currently valid
	// for. Expired or unknown values return ErrNotFound.
	Resolve(ctx context.Context, value string, now time.Time) (int64, error)
	// Drop clears the lecture's code, typically when its window ends.
	Drop(ctx context.Context, lectureID int64) error
}

// Generator produces fixed-width numeric code values.
type Generator struct {
	digits int
	max    *big.Int
}

// NewGenerator creates a generator for codes of the given width.
func NewGenerator(digits int) Generator {
	if digits <= 0 {
		digits = 4
	}
	return Generator{
		digits: digits,
		max:    big.NewInt(int64(math.Pow10(digits))),
	}
}

// Digits returns the configured code width.
func (g Generator) Digits() int { return g.digits }

// Generate returns a random zero-padded numeric string.
func (g Generator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, g.max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", g.digits, n), nil
}

// ValidFormat reports whether s is exactly the configured number of digits.
func (g Generator) ValidFormat(s string) bool {
	if len(s) != g.digits {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
