package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attendance/internal/account"
	"attendance/internal/auth"
	"attendance/internal/code"
	"attendance/internal/leaderboard"
	"attendance/internal/ledger"
	"attendance/internal/schedule"
	"attendance/internal/streak"
	"attendance/internal/verify"
)

// Handler exposes the REST surface consumed by the mobile app and the
// lecturer dashboard.
type Handler struct {
	accounts *account.Service
	users    account.Users
	sched    *schedule.Repository
	codes    code.Store
	verifier *verify.Service
	boards   *leaderboard.Service
	records  *ledger.Repository
	denylist *auth.Denylist
}

// New wires the handler.
func New(
	accounts *account.Service,
	users account.Users,
	sched *schedule.Repository,
	codes code.Store,
	verifier *verify.Service,
	boards *leaderboard.Service,
	records *ledger.Repository,
	denylist *auth.Denylist,
) *Handler {
	return &Handler{
		accounts: accounts,
		users:    users,
		sched:    sched,
		codes:    codes,
		verifier: verifier,
		boards:   boards,
		records:  records,
		denylist: denylist,
	}
}

// ---------- Accounts ----------

type registerRequest struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required,min=8"`
	StudentID string `json:"student_id" binding:"required"`
	IsStaff   bool   `json:"is_staff"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, token, err := h.accounts.Register(c.Request.Context(), req.StudentID, req.Username, req.Password, req.IsStaff)
	if err != nil {
		if errors.Is(err, account.ErrExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "account created",
		"token":   token.Value,
		"user":    user,
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, token, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "logged in",
		"token":   token.Value,
		"user":    user,
	})
}

// Logout revokes the presented token until its expiry. Best-effort: the
// client clears its local session regardless.
func (h *Handler) Logout(c *gin.Context) {
	claims, ok := auth.FromContext(c)
	if ok && claims.ExpiresAt != nil {
		if err := h.denylist.Revoke(c.Request.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			log.Printf("logout: revoke token: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// ---------- Instructor codes ----------

type lectureWithCode struct {
	LectureID  int64     `json:"lecture_id"`
	ModuleID   int64     `json:"module_id"`
	ModuleName string    `json:"module_name"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Code       string    `json:"code"`
}

// ActiveCodes returns the lecturer's currently active lectures with their
// rotating verification codes. The dashboard polls this every 30 seconds.
func (h *Handler) ActiveCodes(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	now := time.Now().UTC()

	lectures, err := h.sched.ActiveForLecturer(c.Request.Context(), claims.StudentID, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if len(lectures) == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "No current lectures found for this lecturer",
		})
		return
	}

	out := make([]lectureWithCode, 0, len(lectures))
	for _, lec := range lectures {
		active, err := h.codes.Active(c.Request.Context(), lec.ID, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "code issue failed"})
			return
		}
		out = append(out, lectureWithCode{
			LectureID:  lec.ID,
			ModuleID:   lec.ModuleID,
			ModuleName: lec.ModuleName,
			StartTime:  lec.Start,
			EndTime:    lec.End,
			Code:       active.Value,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "lectures": out})
}

// ---------- Verification ----------

type verifyRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "code is required"})
		return
	}
	claims, _ := auth.FromContext(c)

	res, err := h.verifier.Verify(c.Request.Context(), claims.StudentID, req.Code, time.Now().UTC())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success":          true,
			"message":          "Attendance marked successfully",
			"lecture_id":       res.Lecture.ID,
			"module_name":      res.Lecture.ModuleName,
			"already_attended": false,
		})
	case errors.Is(err, verify.ErrAlreadyMarked):
		c.JSON(http.StatusOK, gin.H{
			"success":          true,
			"message":          "Attendance already marked",
			"lecture_id":       res.Lecture.ID,
			"module_name":      res.Lecture.ModuleName,
			"already_attended": true,
		})
	case errors.Is(err, verify.ErrBadFormat):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": fmt.Sprintf("Invalid code format. Code must be %d digits.", h.verifier.Digits()),
		})
	case errors.Is(err, verify.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid or expired code"})
	case errors.Is(err, verify.ErrLectureNotActive):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Lecture is not currently active"})
	case errors.Is(err, verify.ErrNotEnrolled):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Student is not enrolled in this lecture"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "verification failed"})
	}
}

// ---------- Attendance calendar ----------

// Attendance returns the authenticated student's per-day lecture map with
// tri-state outcomes, for the calendar and streak screens.
func (h *Handler) Attendance(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	now := time.Now().UTC()

	lectures, err := h.sched.ForStudent(c.Request.Context(), claims.StudentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	records, err := h.records.ByStudent(c.Request.Context(), claims.StudentID, time.Time{}, time.Time{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": streak.Build(lectures, records, now)})
}

// ---------- Profile ----------

// User returns a profile with derived streak figures.
func (h *Handler) User(c *gin.Context) {
	studentID := c.Param("id")
	now := time.Now().UTC()

	user, err := h.users.ByID(c.Request.Context(), studentID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	lectures, err := h.sched.ForStudent(c.Request.Context(), studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	records, err := h.records.ByStudent(c.Request.Context(), studentID, time.Time{}, time.Time{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	buckets := streak.Build(lectures, records, now)
	c.JSON(http.StatusOK, gin.H{
		"student_id":     user.StudentID,
		"username":       user.Username,
		"is_staff":       user.IsStaff,
		"current_streak": streak.Current(buckets, now),
		"longest_streak": streak.Longest(buckets),
		"overall_rate":   streak.OverallRate(buckets),
		"perfect_days":   streak.PerfectDays(buckets),
	})
}

// ---------- Leaderboard ----------

func (h *Handler) Leaderboard(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	courseCode := c.Param("courseCode")

	board, err := h.boards.Build(c.Request.Context(), courseCode, claims.StudentID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, schedule.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, board)
}

func (h *Handler) Courses(c *gin.Context) {
	courses, err := h.sched.Courses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if courses == nil {
		courses = []schedule.Course{}
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}
