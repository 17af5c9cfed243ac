// Package streak derives calendar views from the attendance ledger: per-day
// lecture buckets with tri-state outcomes, current and longest streaks,
// overall attendance rate and perfect days. Everything here is a pure
// function of schedule plus ledger data; nothing is stored.
package streak

import (
	"math"
	"sort"
	"time"

	"attendance/internal/ledger"
	"attendance/internal/schedule"
)

// dayKey buckets use UTC calendar days.
const dayKey = "2006-01-02"

// Lecture is one scheduled lecture with its tri-state outcome. Attended is
// nil while the lecture window has not closed yet: the day cannot be judged
// attended or missed until then, and collapsing nil to false would break
// streak and perfect-day semantics for in-progress or future lectures.
type Lecture struct {
	ID         int64     `json:"id"`
	ModuleCode string    `json:"code"`
	Name       string    `json:"name"`
	Start      time.Time `json:"time"`
	End        time.Time `json:"endTime"`
	Room       *string   `json:"room"`
	Attended   *bool     `json:"attended"`
}

// Day groups a student's lectures for one date.
type Day struct {
	Lectures []Lecture `json:"lectures"`
}

// Buckets maps "YYYY-MM-DD" to that day's lectures.
type Buckets map[string]Day

// Build buckets the student's scheduled lectures by day and resolves each
// against the ledger: attended if a record exists, missed if the window has
// closed without one, undetermined (nil) otherwise.
func Build(lectures []schedule.Lecture, records []ledger.Record, now time.Time) Buckets {
	marked := make(map[int64]bool, len(records))
	for _, rec := range records {
		marked[rec.LectureID] = true
	}

	buckets := make(Buckets)
	for _, lec := range lectures {
		var attended *bool
		switch {
		case marked[lec.ID]:
			attended = ptr(true)
		case lec.End.Before(now):
			attended = ptr(false)
		}
		key := lec.Start.UTC().Format(dayKey)
		day := buckets[key]
		day.Lectures = append(day.Lectures, Lecture{
			ID:         lec.ID,
			ModuleCode: lec.CourseCode,
			Name:       lec.ModuleName,
			Start:      lec.Start,
			End:        lec.End,
			Room:       lec.Room,
			Attended:   attended,
		})
		buckets[key] = day
	}
	return buckets
}

// Current walks resolved days backward from asOf. A day extends the streak
// when at least one of its lectures was attended; the first resolved day
// with none attended breaks it. Days where every lecture is still
// undetermined are skipped without breaking the run.
func Current(b Buckets, asOf time.Time) int {
	cutoff := asOf.UTC().Format(dayKey)
	dates := resolvedDates(b)

	streak := 0
	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i] > cutoff {
			continue
		}
		if !dayAttended(b[dates[i]]) {
			break
		}
		streak++
	}
	return streak
}

// Longest scans resolved days ascending and tracks the maximum run.
func Longest(b Buckets) int {
	run, best := 0, 0
	for _, date := range resolvedDates(b) {
		if dayAttended(b[date]) {
			run++
			if run > best {
				best = run
			}
		} else {
			run = 0
		}
	}
	return best
}

// OverallRate is attended/resolved lectures as a rounded percentage,
// 0 when nothing has resolved yet.
func OverallRate(b Buckets) int {
	attended, resolved := 0, 0
	for _, day := range b {
		for _, lec := range day.Lectures {
			if lec.Attended == nil {
				continue
			}
			resolved++
			if *lec.Attended {
				attended++
			}
		}
	}
	if resolved == 0 {
		return 0
	}
	return int(math.Round(float64(attended) / float64(resolved) * 100))
}

// PerfectDays counts days with at least one resolved lecture where every
// resolved lecture was attended.
func PerfectDays(b Buckets) int {
	count := 0
	for _, day := range b {
		resolved, allAttended := 0, true
		for _, lec := range day.Lectures {
			if lec.Attended == nil {
				continue
			}
			resolved++
			if !*lec.Attended {
				allAttended = false
			}
		}
		if resolved > 0 && allAttended {
			count++
		}
	}
	return count
}

// resolvedDates returns the sorted dates that have at least one lecture
// with a determinable outcome.
func resolvedDates(b Buckets) []string {
	dates := make([]string, 0, len(b))
	for date, day := range b {
		for _, lec := range day.Lectures {
			if lec.Attended != nil {
				dates = append(dates, date)
				break
			}
		}
	}
	sort.Strings(dates)
	return dates
}

// dayAttended reports whether at least one lecture that day was attended.
func dayAttended(d Day) bool {
	for _, lec := range d.Lectures {
		if lec.Attended != nil && *lec.Attended {
			return true
		}
	}
	return false
}

func ptr(b bool) *bool { return &b }
