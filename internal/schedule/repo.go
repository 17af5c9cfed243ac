package schedule

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Course groups modules for the leaderboard selector.
type Course struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Lecture is a scheduled class occurrence. It is immutable during its
// active window; "active" means now within [Start, End].
type Lecture struct {
	ID         int64     `json:"lecture_id"`
	ModuleID   int64     `json:"module_id"`
	ModuleName string    `json:"module_name"`
	CourseCode string    `json:"module_code"`
	LecturerID string    `json:"-"`
	Room       *string   `json:"room"`
	Start      time.Time `json:"start_time"`
	End        time.Time `json:"end_time"`
}

// Active reports whether the lecture window contains t. The window is
// exactly [Start, End], no grace period.
func (l Lecture) Active(t time.Time) bool {
	return !t.Before(l.Start) && !t.After(l.End)
}

// Member is an enrolled student, as needed by the leaderboard.
type Member struct {
	StudentID string
	Username  string
}

// ErrNotFound is returned for unknown courses or lectures.
var ErrNotFound = errors.New("schedule: not found")

// Repository reads scheduling data from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const lectureCols = `
	l.id, l.module_id, m.name, m.course_code, l.lecturer_id, l.room, l.start_time, l.end_time`

func scanLecture(row interface{ Scan(...any) error }) (Lecture, error) {
	var l Lecture
	err := row.Scan(&l.ID, &l.ModuleID, &l.ModuleName, &l.CourseCode, &l.LecturerID, &l.Room, &l.Start, &l.End)
	return l, err
}

// ByID returns a single lecture.
func (r *Repository) ByID(ctx context.Context, id int64) (Lecture, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+lectureCols+`
		FROM lectures l JOIN modules m ON m.id = l.module_id
		WHERE l.id = $1
	`, id)
	l, err := scanLecture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Lecture{}, ErrNotFound
	}
	return l, err
}

// ActiveForLecturer returns the lecturer's lectures whose window contains now.
func (r *Repository) ActiveForLecturer(ctx context.Context, lecturerID string, now time.Time) ([]Lecture, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lectureCols+`
		FROM lectures l JOIN modules m ON m.id = l.module_id
		WHERE l.lecturer_id = $1 AND l.start_time <= $2 AND l.end_time >= $2
		ORDER BY l.start_time
	`, lecturerID, now)
	if err != nil {
		return nil, err
	}
	return collectLectures(rows)
}

// ActiveIDs returns ids of all lectures currently in their window.
func (r *Repository) ActiveIDs(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM lectures WHERE start_time <= $1 AND end_time >= $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EndedBetween returns ids of lectures whose window closed within (from, to].
// The rotator uses it to drop codes promptly after a lecture ends.
func (r *Repository) EndedBetween(ctx context.Context, from, to time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM lectures WHERE end_time > $1 AND end_time <= $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ForStudent returns every lecture scheduled for the student's enrolled
// courses, for the day-bucket calendar.
func (r *Repository) ForStudent(ctx context.Context, studentID string) ([]Lecture, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lectureCols+`
		FROM lectures l
		JOIN modules m ON m.id = l.module_id
		JOIN enrollments e ON e.course_code = m.course_code
		WHERE e.student_id = $1
		ORDER BY l.start_time
	`, studentID)
	if err != nil {
		return nil, err
	}
	return collectLectures(rows)
}

// ForCourse returns every lecture belonging to the course.
func (r *Repository) ForCourse(ctx context.Context, courseCode string) ([]Lecture, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lectureCols+`
		FROM lectures l JOIN modules m ON m.id = l.module_id
		WHERE m.course_code = $1
		ORDER BY l.start_time
	`, courseCode)
	if err != nil {
		return nil, err
	}
	return collectLectures(rows)
}

// Courses lists all courses.
func (r *Repository) Courses(ctx context.Context) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, name FROM courses ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.Code, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CourseByCode returns a single course.
func (r *Repository) CourseByCode(ctx context.Context, code string) (Course, error) {
	row := r.db.QueryRowContext(ctx, `SELECT code, name FROM courses WHERE code = $1`, code)
	var c Course
	if err := row.Scan(&c.Code, &c.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, ErrNotFound
		}
		return Course{}, err
	}
	return c, nil
}

// Members returns students enrolled in the course.
func (r *Repository) Members(ctx context.Context, courseCode string) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.student_id, u.username
		FROM enrollments e JOIN users u ON u.student_id = e.student_id
		WHERE e.course_code = $1 AND u.is_staff = FALSE
		ORDER BY u.student_id
	`, courseCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.StudentID, &m.Username); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateCourse inserts a course, idempotently.
func (r *Repository) CreateCourse(ctx context.Context, c Course) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO courses (code, name)
		VALUES ($1, $2)
		ON CONFLICT (code) DO NOTHING
	`, c.Code, c.Name)
	return err
}

// CreateModule inserts a module and returns its id.
func (r *Repository) CreateModule(ctx context.Context, courseCode, name string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO modules (course_code, name) VALUES ($1, $2) RETURNING id
	`, courseCode, name).Scan(&id)
	return id, err
}

// CreateLecture inserts a lecture and returns its id.
func (r *Repository) CreateLecture(ctx context.Context, moduleID int64, lecturerID string, room *string, start, end time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO lectures (module_id, lecturer_id, room, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5) RETURNING id
	`, moduleID, lecturerID, room, start, end).Scan(&id)
	return id, err
}

// IsEnrolled reports whether the student belongs to the course.
func (r *Repository) IsEnrolled(ctx context.Context, studentID, courseCode string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollments WHERE student_id = $1 AND course_code = $2
		)
	`, studentID, courseCode).Scan(&exists)
	return exists, err
}

// Enroll adds a student to a course, idempotently.
func (r *Repository) Enroll(ctx context.Context, studentID, courseCode string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (student_id, course_code)
		VALUES ($1, $2)
		ON CONFLICT (student_id, course_code) DO NOTHING
	`, studentID, courseCode)
	return err
}

func collectLectures(rows *sql.Rows) ([]Lecture, error) {
	defer rows.Close()
	var out []Lecture
	for rows.Next() {
		l, err := scanLecture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
