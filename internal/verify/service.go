// Package verify implements the single mutating path into the attendance
// ledger: resolving a submitted code to a lecture and recording the fact.
// Per (student, lecture) the state machine is Unmarked -> Marked, terminal.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"attendance/internal/code"
	"attendance/internal/ledger"
	"attendance/internal/metrics"
	"attendance/internal/queue"
	"attendance/internal/schedule"
)

var (
	// ErrBadFormat means the submitted value is not a well-formed code.
	ErrBadFormat = errors.New("verify: code must be numeric with the configured width")
	// ErrInvalidCode means no lecture currently has this code.
	ErrInvalidCode = errors.New("verify: invalid or expired code")
	// ErrLectureNotActive guards against clock skew: the code resolved but
	// the lecture window has closed.
	ErrLectureNotActive = errors.New("verify: lecture is not currently active")
	// ErrNotEnrolled means the student does not belong to the lecture's
	// course. A valid code alone is not a ticket in.
	ErrNotEnrolled = errors.New("verify: student is not enrolled in this lecture")
	// ErrAlreadyMarked means attendance was recorded earlier. Idempotent
	// from the student's perspective, distinct for audit.
	ErrAlreadyMarked = errors.New("verify: attendance already marked")
)

// Resolver maps submitted codes to lectures.
type Resolver interface {
	Resolve(ctx context.Context, value string, now time.Time) (int64, error)
}

// Lectures loads lecture metadata.
type Lectures interface {
	ByID(ctx context.Context, id int64) (schedule.Lecture, error)
}

// Roster answers enrollment questions.
type Roster interface {
	IsEnrolled(ctx context.Context, studentID, courseCode string) (bool, error)
}

// Ledger appends attendance records.
type Ledger interface {
	Append(ctx context.Context, rec ledger.Record) (ledger.Record, error)
}

// Result reports the outcome of a verification.
type Result struct {
	Record        ledger.Record
	Lecture       schedule.Lecture
	AlreadyMarked bool
}

// Service validates codes and writes the ledger.
type Service struct {
	gen     code.Generator
	codes   Resolver
	sched   Lectures
	roster  Roster
	records Ledger
	events  queue.Queue
}

// NewService wires the verification dependencies. events may be nil.
func NewService(gen code.Generator, codes Resolver, sched Lectures, roster Roster, records Ledger, events queue.Queue) *Service {
	return &Service{gen: gen, codes: codes, sched: sched, roster: roster, records: records, events: events}
}

// Digits returns the expected code width, for client-facing messages.
func (s *Service) Digits() int { return s.gen.Digits() }

// Verify checks a student's submitted code and marks attendance. On
// ErrAlreadyMarked the returned Result still carries the lecture so callers
// can respond success-equivalently.
func (s *Service) Verify(ctx context.Context, studentID, submitted string, now time.Time) (Result, error) {
	if !s.gen.ValidFormat(submitted) {
		metrics.VerifyAttempts.WithLabelValues("bad_format").Inc()
		return Result{}, ErrBadFormat
	}

	lectureID, err := s.codes.Resolve(ctx, submitted, now)
	if err != nil {
		if errors.Is(err, code.ErrNotFound) {
			metrics.VerifyAttempts.WithLabelValues("invalid_code").Inc()
			return Result{}, ErrInvalidCode
		}
		return Result{}, err
	}

	lec, err := s.sched.ByID(ctx, lectureID)
	if err != nil {
		if errors.Is(err, schedule.ErrNotFound) {
			metrics.VerifyAttempts.WithLabelValues("invalid_code").Inc()
			return Result{}, ErrInvalidCode
		}
		return Result{}, err
	}
	if !lec.Active(now) {
		metrics.VerifyAttempts.WithLabelValues("not_active").Inc()
		return Result{}, ErrLectureNotActive
	}

	enrolled, err := s.roster.IsEnrolled(ctx, studentID, lec.CourseCode)
	if err != nil {
		return Result{}, err
	}
	if !enrolled {
		metrics.VerifyAttempts.WithLabelValues("not_enrolled").Inc()
		return Result{}, ErrNotEnrolled
	}

	rec, err := s.records.Append(ctx, ledger.Record{
		StudentID: studentID,
		LectureID: lectureID,
		MarkedAt:  now,
		CodeUsed:  submitted,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicate) {
			metrics.VerifyAttempts.WithLabelValues("already_marked").Inc()
			return Result{Lecture: lec, AlreadyMarked: true}, ErrAlreadyMarked
		}
		return Result{}, err
	}

	metrics.VerifyAttempts.WithLabelValues("ok").Inc()
	s.publish(ctx, studentID, lec)
	return Result{Record: rec, Lecture: lec}, nil
}

// publish notifies the worker of a ledger write, best-effort.
func (s *Service) publish(ctx context.Context, studentID string, lec schedule.Lecture) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(queue.LedgerWrite{
		StudentID:  studentID,
		LectureID:  lec.ID,
		CourseCode: lec.CourseCode,
	})
	if err != nil {
		return
	}
	if err := s.events.Publish(ctx, queue.Message{Type: queue.TypeLedgerWrite, Body: body}); err != nil {
		log.Printf("verify: publish ledger write: %v", err)
	}
}
