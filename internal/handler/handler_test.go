package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance/internal/auth"
	"attendance/internal/code"
	"attendance/internal/ledger"
	"attendance/internal/schedule"
	"attendance/internal/verify"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "attendance-test"
)

type fakeLectures struct {
	byID map[int64]schedule.Lecture
}

func (f *fakeLectures) ByID(_ context.Context, id int64) (schedule.Lecture, error) {
	lec, ok := f.byID[id]
	if !ok {
		return schedule.Lecture{}, schedule.ErrNotFound
	}
	return lec, nil
}

type fakeRoster struct {
	enrolled map[string]bool
}

func (f *fakeRoster) IsEnrolled(_ context.Context, studentID, _ string) (bool, error) {
	return f.enrolled[studentID], nil
}

type fakeLedger struct {
	rows map[string]ledger.Record
}

func (f *fakeLedger) Append(_ context.Context, rec ledger.Record) (ledger.Record, error) {
	key := fmt.Sprintf("%s/%d", rec.StudentID, rec.LectureID)
	if _, exists := f.rows[key]; exists {
		return ledger.Record{}, ledger.ErrDuplicate
	}
	f.rows[key] = rec
	return rec, nil
}

// verifyRouter wires just enough of the API to exercise POST /verify with
// real bearer auth.
func verifyRouter(t *testing.T, lec schedule.Lecture) (*gin.Engine, *code.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gen := code.NewGenerator(4)
	codes := code.NewMemoryStore(gen, 30*time.Second)
	verifier := verify.NewService(gen, codes,
		&fakeLectures{byID: map[int64]schedule.Lecture{lec.ID: lec}},
		&fakeRoster{enrolled: map[string]bool{"sc0001abc": true}},
		&fakeLedger{rows: make(map[string]ledger.Record)}, nil)

	h := &Handler{verifier: verifier}

	r := gin.New()
	authed := r.Group("/", auth.Middleware(testKey, testIssuer, nil))
	authed.POST("/verify", h.Verify)
	return r, codes
}

func bearer(t *testing.T, studentID string) string {
	t.Helper()
	token, err := auth.Issue(studentID, "user-"+studentID, false, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token.Value
}

func postVerify(r *gin.Engine, authz, codeValue string) *httptest.ResponseRecorder {
	body := strings.NewReader(fmt.Sprintf(`{"code":%q}`, codeValue))
	req := httptest.NewRequest(http.MethodPost, "/verify", body)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func activeLecture() schedule.Lecture {
	now := time.Now().UTC()
	return schedule.Lecture{
		ID:         42,
		ModuleID:   7,
		ModuleName: "Machine Learning",
		CourseCode: "COMP3711",
		Start:      now.Add(-20 * time.Minute),
		End:        now.Add(40 * time.Minute),
	}
}

func TestVerifyEndpoint(t *testing.T) {
	lec := activeLecture()
	r, codes := verifyRouter(t, lec)

	active, err := codes.Active(context.Background(), lec.ID, time.Now().UTC())
	require.NoError(t, err)
	authz := bearer(t, "sc0001abc")

	w := postVerify(r, authz, active.Value)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success         bool   `json:"success"`
		AlreadyAttended bool   `json:"already_attended"`
		ModuleName      string `json:"module_name"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.False(t, resp.AlreadyAttended)
	assert.Equal(t, "Machine Learning", resp.ModuleName)

	// Resubmission is success-equivalent but flagged.
	w = postVerify(r, authz, active.Value)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.AlreadyAttended)
}

func TestVerifyEndpointRejectsBadCodes(t *testing.T) {
	r, _ := verifyRouter(t, activeLecture())
	authz := bearer(t, "sc0001abc")

	w := postVerify(r, authz, "12ab")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid code format")

	w = postVerify(r, authz, "9999")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid or expired code")
}

func TestVerifyEndpointRejectsUnenrolled(t *testing.T) {
	lec := activeLecture()
	r, codes := verifyRouter(t, lec)

	active, err := codes.Active(context.Background(), lec.ID, time.Now().UTC())
	require.NoError(t, err)

	w := postVerify(r, bearer(t, "sc9999zzz"), active.Value)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not enrolled")
}

func TestVerifyEndpointRequiresAuth(t *testing.T) {
	r, _ := verifyRouter(t, activeLecture())

	w := postVerify(r, "", "1234")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postVerify(r, "Bearer not-a-token", "1234")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
