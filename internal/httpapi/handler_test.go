package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"examination/internal/exam"
	"examination/internal/queue"
)

// fakeStore is an in-memory exam.Store with the repository's
// conditional-insert semantics.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]exam.User
	exams     map[string]exam.Exam
	questions map[string][]exam.Question
	attempts  map[string]exam.Attempt
	answers   map[string][]exam.Answer
	results   map[string]exam.Result
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]exam.User),
		exams:     make(map[string]exam.Exam),
		questions: make(map[string][]exam.Question),
		attempts:  make(map[string]exam.Attempt),
		answers:   make(map[string][]exam.Answer),
		results:   make(map[string]exam.Result),
	}
}

func (f *fakeStore) CreateUser(_ context.Context, u exam.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return exam.ErrDuplicateUser
		}
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) UserByID(_ context.Context, id string) (exam.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return exam.User{}, exam.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStore) UserByUsername(_ context.Context, username string) (exam.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return exam.User{}, exam.ErrUserNotFound
}

func (f *fakeStore) CreateExam(_ context.Context, e exam.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exams[e.ID] = e
	return nil
}

func (f *fakeStore) UpdateExam(_ context.Context, e exam.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.exams[e.ID]; !ok {
		return exam.ErrExamNotFound
	}
	f.exams[e.ID] = e
	return nil
}

func (f *fakeStore) ExamByID(_ context.Context, id string) (exam.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return exam.Exam{}, exam.ErrExamNotFound
	}
	return e, nil
}

func (f *fakeStore) ListExams(_ context.Context) ([]exam.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := make([]exam.Exam, 0, len(f.exams))
	for _, e := range f.exams {
		res = append(res, e)
	}
	return res, nil
}

func (f *fakeStore) CreateQuestion(_ context.Context, q exam.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions[q.ExamID] = append(f.questions[q.ExamID], q)
	return nil
}

func (f *fakeStore) QuestionsByExam(_ context.Context, examID string) ([]exam.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	qs := make([]exam.Question, len(f.questions[examID]))
	copy(qs, f.questions[examID])
	return qs, nil
}

func (f *fakeStore) CreateAttempt(_ context.Context, a exam.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.attempts {
		if existing.ExamID == a.ExamID && existing.StudentID == a.StudentID && existing.Status != exam.StatusAbandoned {
			return &exam.ConflictError{Err: exam.ErrAlreadyAttempted, ExistingID: existing.ID}
		}
	}
	f.attempts[a.ID] = a
	return nil
}

func (f *fakeStore) AttemptByID(_ context.Context, id string) (exam.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return exam.Attempt{}, exam.ErrAttemptNotFound
	}
	return a, nil
}

func (f *fakeStore) FinishAttempt(_ context.Context, a exam.Attempt, answers []exam.Answer, r exam.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.attempts[a.ID]
	if !ok {
		return exam.ErrAttemptNotFound
	}
	if cur.Status != exam.StatusInProgress {
		return &exam.ConflictError{Err: exam.ErrAlreadyCompleted, ExistingID: f.results[a.ID].ID}
	}
	f.attempts[a.ID] = a
	f.answers[a.ID] = answers
	f.results[a.ID] = r
	return nil
}

func (f *fakeStore) ExpiredInProgress(_ context.Context, now time.Time) ([]exam.Attempt, error) {
	return nil, nil
}

func (f *fakeStore) ResultByAttempt(_ context.Context, attemptID string) (exam.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[attemptID]
	if !ok {
		return exam.Result{}, exam.ErrResultNotFound
	}
	return r, nil
}

func (f *fakeStore) ResultsByExam(_ context.Context, examID string) ([]exam.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []exam.Result
	for attemptID, r := range f.results {
		if f.attempts[attemptID].ExamID == examID {
			res = append(res, r)
		}
	}
	return res, nil
}

func (f *fakeStore) AnswersByAttempt(_ context.Context, attemptID string) ([]exam.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answers[attemptID], nil
}

// ---------- helpers ----------

const (
	testKey    = "handler-test-key"
	testIssuer = "examination-test"
)

func newTestRouter() (*gin.Engine, *fakeStore) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	svc := exam.NewService(store)
	h := New(store, svc, queue.NewInMemory(16), testKey, testIssuer, false)
	r := gin.New()
	h.MountRoutes(r)
	return r, store
}

type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Message string                 `json:"message"`
	Errors  map[string]interface{} `json:"errors"`
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func register(t *testing.T, r *gin.Engine, username, role string) {
	t.Helper()
	w, _ := doJSON(t, r, http.MethodPost, "/v1/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.test",
		"password": "a-long-password",
		"role":     role,
		"name":     "Test " + username,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", username, w.Code, w.Body.String())
	}
}

func login(t *testing.T, r *gin.Engine, username string) string {
	t.Helper()
	w, env := doJSON(t, r, http.MethodPost, "/v1/auth/login", "", gin.H{
		"username": username,
		"password": "a-long-password",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, w.Code, w.Body.String())
	}
	token, _ := env.Data["token"].(string)
	if token == "" {
		t.Fatalf("login %s returned no token", username)
	}
	return token
}

// ---------- tests ----------

func TestLoginFailureIsGeneric(t *testing.T) {
	r, _ := newTestRouter()
	register(t, r, "alice", "student")

	for _, body := range []gin.H{
		{"username": "alice", "password": "wrong"},
		{"username": "nobody", "password": "a-long-password"},
	} {
		w, env := doJSON(t, r, http.MethodPost, "/v1/auth/login", "", body)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if env.Message != "invalid username or password" {
			t.Errorf("message = %q, must not reveal which field is wrong", env.Message)
		}
	}
}

func TestLoginSetsCookieAndCookieAuthenticates(t *testing.T) {
	r, _ := newTestRouter()
	register(t, r, "alice", "student")

	w, _ := doJSON(t, r, http.MethodPost, "/v1/auth/login", "", gin.H{
		"username": "alice", "password": "a-long-password",
	})
	var authCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "exam_token" {
			authCookie = c
		}
	}
	if authCookie == nil || authCookie.Value == "" {
		t.Fatal("login did not set the auth cookie")
	}
	if !authCookie.HttpOnly {
		t.Error("auth cookie is not http-only")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.AddCookie(authCookie)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("cookie auth: status = %d, want 200", rec.Code)
	}
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	r, _ := newTestRouter()
	register(t, r, "alice", "student")
	w, _ := doJSON(t, r, http.MethodPost, "/v1/auth/register", "", gin.H{
		"username": "alice",
		"email":    "alice@example.test",
		"password": "a-long-password",
		"role":     "student",
		"name":     "Alice",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register: status = %d, want 409", w.Code)
	}
}

func TestExamManagementOwnership(t *testing.T) {
	r, _ := newTestRouter()
	register(t, r, "owner", "teacher")
	register(t, r, "rival", "teacher")
	ownerTok := login(t, r, "owner")
	rivalTok := login(t, r, "rival")

	now := time.Now().UTC()
	w, env := doJSON(t, r, http.MethodPost, "/v1/exams", ownerTok, gin.H{
		"title":            "Algebra Midterm",
		"start_time":       now.Add(-time.Minute),
		"end_time":         now.Add(time.Hour),
		"duration_minutes": 30,
		"passing_score":    60,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create exam: status %d body %s", w.Code, w.Body.String())
	}
	examID, _ := env.Data["id"].(string)

	w, _ = doJSON(t, r, http.MethodDelete, "/v1/exams/"+examID, rivalTok, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("rival deactivate: status = %d, want 403", w.Code)
	}

	w, env = doJSON(t, r, http.MethodDelete, "/v1/exams/"+examID, ownerTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("owner deactivate: status %d", w.Code)
	}
	if active, _ := env.Data["is_active"].(bool); active {
		t.Error("deactivate did not clear is_active")
	}
}

func TestExamCreationValidation(t *testing.T) {
	r, _ := newTestRouter()
	register(t, r, "teach", "teacher")
	tok := login(t, r, "teach")
	now := time.Now().UTC()

	cases := []gin.H{
		{"title": "Bad window", "start_time": now.Add(time.Hour), "end_time": now, "duration_minutes": 30, "passing_score": 60},
		{"title": "Bad duration", "start_time": now, "end_time": now.Add(time.Hour), "duration_minutes": 0, "passing_score": 60},
		{"title": "Bad threshold", "start_time": now, "end_time": now.Add(time.Hour), "duration_minutes": 30, "passing_score": 101},
	}
	for _, body := range cases {
		w, _ := doJSON(t, r, http.MethodPost, "/v1/exams", tok, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body["title"], w.Code)
		}
	}
}

func TestExamLifecycleEndToEnd(t *testing.T) {
	r, _ := newTestRouter()
	register(t, r, "teacher1", "teacher")
	register(t, r, "student1", "student")
	register(t, r, "student2", "student")
	teacherTok := login(t, r, "teacher1")
	student1Tok := login(t, r, "student1")
	student2Tok := login(t, r, "student2")

	now := time.Now().UTC()
	w, env := doJSON(t, r, http.MethodPost, "/v1/exams", teacherTok, gin.H{
		"title":            "Geography Final",
		"start_time":       now.Add(-time.Minute),
		"end_time":         now.Add(time.Hour),
		"duration_minutes": 45,
		"passing_score":    60,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create exam: status %d body %s", w.Code, w.Body.String())
	}
	examID, _ := env.Data["id"].(string)

	answers := map[string]string{}
	for i, qa := range []struct{ text, qtype, correct string }{
		{"Capital of France?", "multiple_choice", "Paris"},
		{"2+2?", "multiple_choice", "4"},
		{"Name the process plants use to make food.", "essay", "Photosynthesis"},
	} {
		body := gin.H{
			"position":       i + 1,
			"type":           qa.qtype,
			"text":           qa.text,
			"correct_answer": qa.correct,
			"points":         10,
		}
		if qa.qtype == "multiple_choice" {
			body["options"] = []string{qa.correct, "other"}
		}
		w, env = doJSON(t, r, http.MethodPost, "/v1/exams/"+examID+"/questions", teacherTok, body)
		if w.Code != http.StatusCreated {
			t.Fatalf("add question: status %d body %s", w.Code, w.Body.String())
		}
		qid, _ := env.Data["id"].(string)
		answers[qid] = qa.correct
	}

	// Student view of the exam must not leak the answer key. The essay
	// answer never appears in an options list, so its text only shows up
	// if correct_answer itself leaks. Options stay visible to students.
	w, _ = doJSON(t, r, http.MethodGet, "/v1/exams/"+examID, student1Tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("student get exam: status %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "correct_answer") {
		t.Error("student exam view carries a correct_answer field")
	}
	if strings.Contains(w.Body.String(), "Photosynthesis") {
		t.Error("student exam view leaks the answer key")
	}
	if !strings.Contains(w.Body.String(), "Paris") {
		t.Error("student exam view should still show the option choices")
	}

	// The full question listing is manage-gated.
	w, _ = doJSON(t, r, http.MethodGet, "/v1/exams/"+examID+"/questions", student1Tok, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("student question listing: status = %d, want 403", w.Code)
	}

	// Teachers cannot take exams.
	w, _ = doJSON(t, r, http.MethodPost, "/v1/exams/"+examID+"/attempts", teacherTok, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("teacher start attempt: status = %d, want 403", w.Code)
	}

	// Unauthenticated start is rejected.
	w, _ = doJSON(t, r, http.MethodPost, "/v1/exams/"+examID+"/attempts", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous start attempt: status = %d, want 401", w.Code)
	}

	// Student 1 starts; response carries questions without answers.
	w, env = doJSON(t, r, http.MethodPost, "/v1/exams/"+examID+"/attempts", student1Tok, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("start attempt: status %d body %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "correct_answer") {
		t.Error("attempt response carries a correct_answer field")
	}
	if strings.Contains(w.Body.String(), "Photosynthesis") {
		t.Error("attempt response leaks the answer key")
	}
	attemptID, _ := env.Data["attempt_id"].(string)
	if attemptID == "" {
		t.Fatal("no attempt id in start response")
	}

	// Student 1 submits all correct answers.
	w, env = doJSON(t, r, http.MethodPost, "/v1/attempts/"+attemptID+"/submit", student1Tok, gin.H{
		"answers":         answers,
		"elapsed_seconds": 300,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("submit: status %d body %s", w.Code, w.Body.String())
	}
	if pct, _ := env.Data["percentage"].(float64); pct != 100 {
		t.Errorf("percentage = %v, want 100", pct)
	}
	if grade, _ := env.Data["grade"].(string); grade != "A" {
		t.Errorf("grade = %v, want A", env.Data["grade"])
	}
	if passed, _ := env.Data["passed"].(bool); !passed {
		t.Error("passed = false, want true")
	}

	// Student 2's start is independent of student 1.
	w, _ = doJSON(t, r, http.MethodPost, "/v1/exams/"+examID+"/attempts", student2Tok, nil)
	if w.Code != http.StatusCreated {
		t.Errorf("second student start: status = %d, want 201", w.Code)
	}

	// Resubmission conflicts.
	w, env = doJSON(t, r, http.MethodPost, "/v1/attempts/"+attemptID+"/submit", student1Tok, gin.H{
		"answers": answers,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("resubmit: status = %d, want 409", w.Code)
	}
	if env.Message != "already completed" {
		t.Errorf("resubmit message = %q, want %q", env.Message, "already completed")
	}

	// Starting again conflicts and names the existing attempt.
	w, env = doJSON(t, r, http.MethodPost, "/v1/exams/"+examID+"/attempts", student1Tok, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("restart: status = %d, want 409", w.Code)
	}
	if env.Message != "already attempted" {
		t.Errorf("restart message = %q, want %q", env.Message, "already attempted")
	}
	if existing, _ := env.Errors["existing_id"].(string); existing != attemptID {
		t.Errorf("restart existing_id = %q, want %q", existing, attemptID)
	}

	// Student 1 reads their own result; student 2 may not.
	w, env = doJSON(t, r, http.MethodGet, "/v1/attempts/"+attemptID+"/result", student1Tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("own result: status %d", w.Code)
	}
	result, _ := env.Data["result"].(map[string]interface{})
	if total, _ := result["total_points"].(float64); total != 20 {
		t.Errorf("total_points = %v, want 20", result["total_points"])
	}
	w, _ = doJSON(t, r, http.MethodGet, "/v1/attempts/"+attemptID+"/result", student2Tok, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("other student result: status = %d, want 403", w.Code)
	}

	// The owning teacher sees the exam's result listing.
	w, env = doJSON(t, r, http.MethodGet, "/v1/exams/"+examID+"/results", teacherTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("exam results: status %d", w.Code)
	}
	results, _ := env.Data["results"].([]interface{})
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

func TestStartAttemptWindowFailures(t *testing.T) {
	r, _ := newTestRouter()
	register(t, r, "teach", "teacher")
	register(t, r, "kid", "student")
	teacherTok := login(t, r, "teach")
	kidTok := login(t, r, "kid")
	now := time.Now().UTC()

	mk := func(start, end time.Time) string {
		w, env := doJSON(t, r, http.MethodPost, "/v1/exams", teacherTok, gin.H{
			"title":            "Window test",
			"start_time":       start,
			"end_time":         end,
			"duration_minutes": 30,
			"passing_score":    60,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("create exam: %d", w.Code)
		}
		id, _ := env.Data["id"].(string)
		return id
	}

	early := mk(now.Add(time.Hour), now.Add(2*time.Hour))
	w, env := doJSON(t, r, http.MethodPost, "/v1/exams/"+early+"/attempts", kidTok, nil)
	if w.Code != http.StatusConflict || env.Message != exam.ErrExamNotStarted.Error() {
		t.Errorf("early start: status %d message %q", w.Code, env.Message)
	}

	closed := mk(now.Add(-2*time.Hour), now.Add(-time.Hour))
	w, env = doJSON(t, r, http.MethodPost, "/v1/exams/"+closed+"/attempts", kidTok, nil)
	if w.Code != http.StatusConflict || env.Message != exam.ErrExamClosed.Error() {
		t.Errorf("closed start: status %d message %q", w.Code, env.Message)
	}

	inactive := mk(now.Add(-time.Minute), now.Add(time.Hour))
	if w, _ := doJSON(t, r, http.MethodDelete, "/v1/exams/"+inactive, teacherTok, nil); w.Code != http.StatusOK {
		t.Fatalf("deactivate: %d", w.Code)
	}
	w, env = doJSON(t, r, http.MethodPost, "/v1/exams/"+inactive+"/attempts", kidTok, nil)
	if w.Code != http.StatusConflict || env.Message != exam.ErrExamInactive.Error() {
		t.Errorf("inactive start: status %d message %q", w.Code, env.Message)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/v1/exams/"+fmt.Sprintf("%d", now.UnixNano())+"/attempts", kidTok, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing exam start: status = %d, want 404", w.Code)
	}
}
