// Package leaderboard derives per-course rankings from the ledger. It is a
// pure read-side view: recomputed on demand, optionally cached in Redis,
// and invalidated by the worker whenever the ledger grows.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"attendance/internal/ledger"
	"attendance/internal/schedule"
	"attendance/internal/store"
	"attendance/internal/streak"
)

var cachePrefix = store.Key("leaderboard") + ":"

// Entry is one ranked student.
type Entry struct {
	Rank     int    `json:"rank"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Attended int    `json:"attended"`
	Streak   int    `json:"streak"`
}

// Board is the full leaderboard response for one course.
type Board struct {
	CourseCode    string  `json:"courseCode"`
	CourseName    string  `json:"courseName"`
	TotalLectures int     `json:"totalLectures"`
	CurrentUserID string  `json:"currentUserId"`
	ShowTop       int     `json:"showTop"`
	Students      []Entry `json:"students"`
	// You is set when the current user ranks below the top window, so the
	// caller can render their position outside the main list.
	You *Entry `json:"yourPosition,omitempty"`
}

// ScheduleSource is the scheduling data the builder needs.
type ScheduleSource interface {
	CourseByCode(ctx context.Context, code string) (schedule.Course, error)
	Members(ctx context.Context, courseCode string) ([]schedule.Member, error)
	ForCourse(ctx context.Context, courseCode string) ([]schedule.Lecture, error)
}

// LedgerSource reads course attendance records.
type LedgerSource interface {
	ByCourse(ctx context.Context, courseCode string) ([]ledger.Record, error)
}

// cached is the course-wide ranking stored in Redis; windowing for a
// particular viewer happens per request.
type cached struct {
	CourseName    string  `json:"course_name"`
	TotalLectures int     `json:"total_lectures"`
	Entries       []Entry `json:"entries"`
}

// Service builds leaderboards.
type Service struct {
	sched   ScheduleSource
	records LedgerSource
	cache   *redis.Client
	ttl     time.Duration
	showTop int
}

// NewService wires the leaderboard dependencies. cache may be nil.
func NewService(sched ScheduleSource, records LedgerSource, cache *redis.Client, ttl time.Duration, showTop int) *Service {
	if showTop <= 0 {
		showTop = 10
	}
	return &Service{sched: sched, records: records, cache: cache, ttl: ttl, showTop: showTop}
}

// Build returns the ranked board for a course, windowed for currentUserID.
func (s *Service) Build(ctx context.Context, courseCode, currentUserID string, now time.Time) (Board, error) {
	ranking, err := s.ranking(ctx, courseCode, now)
	if err != nil {
		return Board{}, err
	}

	top, you := window(ranking.Entries, currentUserID, s.showTop)
	return Board{
		CourseCode:    courseCode,
		CourseName:    ranking.CourseName,
		TotalLectures: ranking.TotalLectures,
		CurrentUserID: currentUserID,
		ShowTop:       s.showTop,
		Students:      top,
		You:           you,
	}, nil
}

// Invalidate drops the cached ranking for a course.
func (s *Service) Invalidate(ctx context.Context, courseCode string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, cachePrefix+courseCode).Err()
}

func (s *Service) ranking(ctx context.Context, courseCode string, now time.Time) (cached, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cachePrefix+courseCode).Bytes(); err == nil {
			var c cached
			if json.Unmarshal(raw, &c) == nil {
				return c, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			log.Printf("leaderboard: cache read %s: %v", courseCode, err)
		}
	}

	c, err := s.compute(ctx, courseCode, now)
	if err != nil {
		return cached{}, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(c); err == nil {
			if err := s.cache.Set(ctx, cachePrefix+courseCode, raw, s.ttl).Err(); err != nil {
				log.Printf("leaderboard: cache write %s: %v", courseCode, err)
			}
		}
	}
	return c, nil
}

func (s *Service) compute(ctx context.Context, courseCode string, now time.Time) (cached, error) {
	course, err := s.sched.CourseByCode(ctx, courseCode)
	if err != nil {
		return cached{}, err
	}
	members, err := s.sched.Members(ctx, courseCode)
	if err != nil {
		return cached{}, err
	}
	lectures, err := s.sched.ForCourse(ctx, courseCode)
	if err != nil {
		return cached{}, err
	}
	records, err := s.records.ByCourse(ctx, courseCode)
	if err != nil {
		return cached{}, err
	}

	started := 0
	for _, lec := range lectures {
		if !lec.Start.After(now) {
			started++
		}
	}

	byStudent := make(map[string][]ledger.Record)
	for _, rec := range records {
		byStudent[rec.StudentID] = append(byStudent[rec.StudentID], rec)
	}

	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		recs := byStudent[m.StudentID]
		buckets := streak.Build(lectures, recs, now)
		entries = append(entries, Entry{
			ID:       m.StudentID,
			Name:     m.Username,
			Attended: len(recs),
			Streak:   streak.Current(buckets, now),
		})
	}
	rank(entries)

	return cached{CourseName: course.Name, TotalLectures: started, Entries: entries}, nil
}

// rank sorts by streak desc, then attended desc, then student id asc, and
// assigns 1-based positions. The secondary keys make ties deterministic.
func rank(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Streak != b.Streak {
			return a.Streak > b.Streak
		}
		if a.Attended != b.Attended {
			return a.Attended > b.Attended
		}
		return a.ID < b.ID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// window returns the top showTop entries plus, when the viewer ranks below
// the window, their own entry with its true rank.
func window(entries []Entry, currentUserID string, showTop int) ([]Entry, *Entry) {
	top := entries
	if len(top) > showTop {
		top = top[:showTop]
	}
	out := make([]Entry, len(top))
	copy(out, top)

	for _, e := range entries[len(out):] {
		if e.ID == currentUserID {
			you := e
			return out, &you
		}
	}
	return out, nil
}
