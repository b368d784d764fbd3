package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"examination/internal/auth"
	"examination/internal/exam"
	"examination/internal/queue"
)

// Handler carries the dependencies of every endpoint.
type Handler struct {
	store      exam.Store
	svc        *exam.Service
	q          queue.Queue
	signingKey string
	issuer     string
	secure     bool
}

// New creates a handler. secure controls the cookie's Secure flag and should
// be true whenever the service terminates TLS.
func New(store exam.Store, svc *exam.Service, q queue.Queue, signingKey, issuer string, secure bool) *Handler {
	return &Handler{store: store, svc: svc, q: q, signingKey: signingKey, issuer: issuer, secure: secure}
}

// MountRoutes attaches every endpoint to the router.
func (h *Handler) MountRoutes(r *gin.Engine) {
	v1 := r.Group("/v1")
	v1.POST("/auth/register", h.Register)
	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/logout", h.Logout)

	authed := v1.Group("", auth.RequireAuth(h.signingKey, h.issuer))
	authed.GET("/auth/me", h.Me)
	authed.GET("/exams", h.ListExams)
	authed.POST("/exams", h.CreateExam)
	authed.GET("/exams/:id", h.GetExam)
	authed.PUT("/exams/:id", h.UpdateExam)
	authed.DELETE("/exams/:id", h.DeactivateExam)
	authed.POST("/exams/:id/questions", h.AddQuestion)
	authed.GET("/exams/:id/questions", h.ExamQuestions)
	authed.GET("/exams/:id/results", h.ExamResults)
	authed.POST("/exams/:id/attempts", h.StartAttempt)
	authed.POST("/attempts/:id/submit", h.SubmitAttempt)
	authed.GET("/attempts/:id/result", h.AttemptResult)
}

// ---------- Auth ----------

type registerRequest struct {
	Username string  `json:"username" binding:"required"`
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required,min=8"`
	Role     string  `json:"role" binding:"required"`
	Name     string  `json:"name" binding:"required"`
	Class    *string `json:"class"`
	Subject  *string `json:"subject"`
}

// Register creates an identity. Role is immutable afterwards.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request", gin.H{"detail": err.Error()})
		return
	}
	if !auth.ValidRole(req.Role) {
		fail(c, http.StatusBadRequest, "invalid request", gin.H{"role": "must be admin, teacher, or student"})
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		failDomain(c, err)
		return
	}
	u := exam.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		Name:         req.Name,
		Class:        req.Class,
		Subject:      req.Subject,
	}
	if err := h.store.CreateUser(c.Request.Context(), u); err != nil {
		failDomain(c, err)
		return
	}
	respond(c, http.StatusCreated, "registered", u)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates credentials and issues a 7-day token, both in the body
// and as an http-only cookie. The failure message never reveals which field
// was wrong.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request", gin.H{"detail": err.Error()})
		return
	}
	u, err := h.store.UserByUsername(c.Request.Context(), req.Username)
	if err != nil || !auth.CheckPassword(req.Password, u.PasswordHash) {
		loginTotal.WithLabelValues("failure").Inc()
		fail(c, http.StatusUnauthorized, "invalid username or password", nil)
		return
	}
	issued, err := auth.Issue(u.ID, u.Username, u.Role, h.issuer, h.signingKey)
	if err != nil {
		failDomain(c, err)
		return
	}
	loginTotal.WithLabelValues("success").Inc()
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, issued.Token, int(auth.TokenTTL.Seconds()), "/", "", h.secure, true)
	respond(c, http.StatusOK, "authenticated", gin.H{
		"token":      issued.Token,
		"expires_at": issued.ExpiresAt.Unix(),
		"user":       u,
	})
}

// Logout clears the auth cookie. Tokens have no revocation list; an already
// issued token stays valid until natural expiry.
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", h.secure, true)
	respond(c, http.StatusOK, "logged out", nil)
}

// Me resolves the token to the live identity record; role and name reflect
// the store, not the token snapshot.
func (h *Handler) Me(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	u, err := h.store.UserByID(c.Request.Context(), claims.Subject)
	if err != nil {
		failDomain(c, err)
		return
	}
	respond(c, http.StatusOK, "ok", u)
}

// ---------- Exams ----------

type examRequest struct {
	Title            string    `json:"title" binding:"required"`
	Description      string    `json:"description"`
	StartTime        time.Time `json:"start_time" binding:"required"`
	EndTime          time.Time `json:"end_time" binding:"required"`
	DurationMinutes  int       `json:"duration_minutes" binding:"required"`
	PassingScore     float64   `json:"passing_score"`
	AllowReview      bool      `json:"allow_review"`
	ShuffleQuestions bool      `json:"shuffle_questions"`
	TeacherID        string    `json:"teacher_id"`
}

func (req *examRequest) validate() (string, gin.H) {
	switch {
	case !req.EndTime.After(req.StartTime):
		return "invalid request", gin.H{"end_time": "must be after start_time"}
	case req.DurationMinutes <= 0:
		return "invalid request", gin.H{"duration_minutes": "must be positive"}
	case req.PassingScore < 0 || req.PassingScore > 100:
		return "invalid request", gin.H{"passing_score": "must be between 0 and 100"}
	}
	return "", nil
}

// CreateExam creates an exam owned by the calling teacher. Admins may create
// on behalf of a teacher via teacher_id.
func (h *Handler) CreateExam(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role != auth.RoleTeacher && claims.Role != auth.RoleAdmin {
		fail(c, http.StatusForbidden, "not allowed", nil)
		return
	}
	var req examRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request", gin.H{"detail": err.Error()})
		return
	}
	if msg, errs := req.validate(); msg != "" {
		fail(c, http.StatusBadRequest, msg, errs)
		return
	}
	ownerID := claims.Subject
	if claims.Role == auth.RoleAdmin && req.TeacherID != "" {
		ownerID = req.TeacherID
	}
	e := exam.Exam{
		ID:               uuid.NewString(),
		TeacherID:        ownerID,
		Title:            req.Title,
		Description:      req.Description,
		StartTime:        req.StartTime.UTC(),
		EndTime:          req.EndTime.UTC(),
		DurationMinutes:  req.DurationMinutes,
		PassingScore:     req.PassingScore,
		IsActive:         true,
		AllowReview:      req.AllowReview,
		ShuffleQuestions: req.ShuffleQuestions,
	}
	if err := h.store.CreateExam(c.Request.Context(), e); err != nil {
		failDomain(c, err)
		return
	}
	respond(c, http.StatusCreated, "exam created", e)
}

// manageableExam loads the exam and enforces the management policy.
func (h *Handler) manageableExam(c *gin.Context) (exam.Exam, bool) {
	claims, _ := auth.ClaimsFrom(c)
	e, err := h.store.ExamByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		failDomain(c, err)
		return exam.Exam{}, false
	}
	if !auth.CanManageExam(claims.Role, claims.Subject, e.TeacherID) {
		fail(c, http.StatusForbidden, "not allowed", nil)
		return exam.Exam{}, false
	}
	return e, true
}

// UpdateExam rewrites an owned exam's settings.
func (h *Handler) UpdateExam(c *gin.Context) {
	e, ok := h.manageableExam(c)
	if !ok {
		return
	}
	var req examRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request", gin.H{"detail": err.Error()})
		return
	}
	if msg, errs := req.validate(); msg != "" {
		fail(c, http.StatusBadRequest, msg, errs)
		return
	}
	e.Title = req.Title
	e.Description = req.Description
	e.StartTime = req.StartTime.UTC()
	e.EndTime = req.EndTime.UTC()
	e.DurationMinutes = req.DurationMinutes
	e.PassingScore = req.PassingScore
	e.AllowReview = req.AllowReview
	e.ShuffleQuestions = req.ShuffleQuestions
	if err := h.store.UpdateExam(c.Request.Context(), e); err != nil {
		failDomain(c, err)
		return
	}
	respond(c, http.StatusOK, "exam updated", e)
}

// DeactivateExam sets is_active=false. Historical attempts and results are
// preserved; nothing is physically deleted.
func (h *Handler) DeactivateExam(c *gin.Context) {
	e, ok := h.manageableExam(c)
	if !ok {
		return
	}
	e.IsActive = false
	if err := h.store.UpdateExam(c.Request.Context(), e); err != nil {
		failDomain(c, err)
		return
	}
	respond(c, http.StatusOK, "exam deactivated", e)
}

// ListExams returns all exams. Exam metadata is readable by every role.
func (h *Handler) ListExams(c *gin.Context) {
	exams, err := h.store.ListExams(c.Request.Context())
	if err != nil {
		failDomain(c, err)
		return
	}
	respond(c, http.StatusOK, "ok", gin.H{"exams": exams})
}

// GetExam returns one exam with its questions. Correct answers appear only
// for identities passing the answer-key gate.
func (h *Handler) GetExam(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	e, err := h.store.ExamByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		failDomain(c, err)
		return
	}
	if !auth.CanAccessExam(claims.Role, claims.Subject, e.TeacherID) {
		fail(c, http.StatusForbidden, "not allowed", nil)
		return
	}
	questions, err := h.store.QuestionsByExam(c.Request.Context(), e.ID)
	if err != nil {
		failDomain(c, err)
		return
	}
	if !auth.CanViewAnswerKey(claims.Role) {
		questions = exam.StudentView(questions, false)
	}
	respond(c, http.StatusOK, "ok", gin.H{"exam": e, "questions": questions})
}

type questionRequest struct {
	Position      int      `json:"position"`
	Type          string   `json:"type" binding:"required"`
	Text          string   `json:"text" binding:"required"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer" binding:"required"`
	Points        int      `json:"points" binding:"required"`
}

// AddQuestion appends a question to an owned exam.
func (h *Handler) AddQuestion(c *gin.Context) {
	e, ok := h.manageableExam(c)
	if !ok {
		return
	}
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request", gin.H{"detail": err.Error()})
		return
	}
	if req.Type != exam.TypeMultipleChoice && req.Type != exam.TypeTrueFalse && req.Type != exam.TypeEssay {
		fail(c, http.StatusBadRequest, "invalid request", gin.H{"type": "unknown question type"})
		return
	}
	if req.Points <= 0 {
		fail(c, http.StatusBadRequest, "invalid request", gin.H{"points": "must be positive"})
		return
	}
	q := exam.Question{
		ID:            uuid.NewString(),
		ExamID:        e.ID,
		Position:      req.Position,
		Type:          req.Type,
		Text:          req.Text,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Points:        req.Points,
	}
	if err := h.store.CreateQuestion(c.Request.Context(), q); err != nil {
		failDomain(c, err)
		return
	}
	respond(c, http.StatusCreated, "question added", q)
}

// ExamQuestions returns the full question set including the answer key;
// management policy gates it.
func (h *Handler) ExamQuestions(c *gin.Context) {
	e, ok := h.manageableExam(c)
	if !ok {
		return
	}
	questions, err := h.store.QuestionsByExam(c.Request.Context(), e.ID)
	if err != nil {
		failDomain(c, err)
		return
	}
	respond(c, http.StatusOK, "ok", gin.H{"questions": questions})
}

// ExamResults lists every result for an owned exam.
func (h *Handler) ExamResults(c *gin.Context) {
	e, ok := h.manageableExam(c)
	if !ok {
		return
	}
	results, err := h.store.ResultsByExam(c.Request.Context(), e.ID)
	if err != nil {
		failDomain(c, err)
		return
	}
	respond(c, http.StatusOK, "ok", gin.H{"results": results})
}

// ---------- Attempts ----------

// StartAttempt opens an attempt for the calling student.
func (h *Handler) StartAttempt(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role != auth.RoleStudent {
		fail(c, http.StatusForbidden, "only students take exams", nil)
		return
	}
	started, err := h.svc.StartAttempt(c.Request.Context(), claims.Subject, c.Param("id"),
		c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if _, ok := exam.AsConflict(err); ok {
			attemptConflicts.Inc()
		}
		failDomain(c, err)
		return
	}
	attemptsStarted.Inc()
	respond(c, http.StatusCreated, "attempt started", gin.H{
		"attempt_id": started.Attempt.ID,
		"started_at": started.Attempt.StartedAt,
		"exam": gin.H{
			"id":               started.Exam.ID,
			"title":            started.Exam.Title,
			"duration_minutes": started.Exam.DurationMinutes,
			"end_time":         started.Exam.EndTime,
		},
		"questions": started.Questions,
	})
}

type submitRequest struct {
	Answers        map[string]string `json:"answers" binding:"required"`
	ElapsedSeconds int               `json:"elapsed_seconds"`
}

type completionEvent struct {
	AttemptID string `json:"attempt_id"`
	ResultID  string `json:"result_id"`
	Grade     string `json:"grade"`
}

// SubmitAttempt grades and completes the attempt, then publishes a
// completion event for the worker. Queue failures are logged, not surfaced;
// the grade is already durable.
func (h *Handler) SubmitAttempt(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role != auth.RoleStudent {
		fail(c, http.StatusForbidden, "only students take exams", nil)
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request", gin.H{"detail": err.Error()})
		return
	}
	result, err := h.svc.SubmitAttempt(c.Request.Context(), claims.Subject, c.Param("id"),
		req.Answers, req.ElapsedSeconds)
	if err != nil {
		failDomain(c, err)
		return
	}
	attemptsCompleted.WithLabelValues(result.Grade).Inc()

	if h.q != nil {
		body, _ := json.Marshal(completionEvent{AttemptID: result.AttemptID, ResultID: result.ID, Grade: result.Grade})
		if err := h.q.Publish(context.WithoutCancel(c.Request.Context()), queue.Message{Type: queue.TypeAttemptCompleted, Body: body}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}

	respond(c, http.StatusOK, "attempt submitted", gin.H{
		"result_id":     result.ID,
		"score":         result.TotalScore,
		"total_points":  result.TotalPoints,
		"percentage":    exam.RoundPercent(result.Percentage),
		"grade":         result.Grade,
		"passed":        result.Passed,
		"correct_count": result.CorrectCount,
		"wrong_count":   result.WrongCount,
		"skipped_count": result.SkippedCount,
	})
}

// AttemptResult returns a graded outcome to the attempt's student or the
// exam's manager.
func (h *Handler) AttemptResult(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	att, err := h.store.AttemptByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		failDomain(c, err)
		return
	}
	if claims.Subject != att.StudentID {
		e, err := h.store.ExamByID(c.Request.Context(), att.ExamID)
		if err != nil {
			failDomain(c, err)
			return
		}
		if !auth.CanManageExam(claims.Role, claims.Subject, e.TeacherID) {
			fail(c, http.StatusForbidden, "not allowed", nil)
			return
		}
	}
	result, err := h.store.ResultByAttempt(c.Request.Context(), att.ID)
	if err != nil {
		failDomain(c, err)
		return
	}
	result.Percentage = exam.RoundPercent(result.Percentage)
	respond(c, http.StatusOK, "ok", gin.H{"attempt": att, "result": result})
}
