package exam

import "time"

// Attempt states. An attempt is created in_progress and ends completed (via
// submit) or time_out (via the reconciliation sweep). abandoned is reachable
// only by external housekeeping and frees the (exam, student) slot.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusTimeOut    = "time_out"
	StatusAbandoned  = "abandoned"
)

// Question types.
const (
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeEssay          = "essay"
)

// User is an identity record. Role is fixed at registration.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Name         string    `json:"name"`
	Class        *string   `json:"class,omitempty"`
	Subject      *string   `json:"subject,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Exam is owned by exactly one teacher and taken within [StartTime, EndTime).
type Exam struct {
	ID               string    `json:"id"`
	TeacherID        string    `json:"teacher_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	DurationMinutes  int       `json:"duration_minutes"`
	PassingScore     float64   `json:"passing_score"`
	IsActive         bool      `json:"is_active"`
	AllowReview      bool      `json:"allow_review"`
	ShuffleQuestions bool      `json:"shuffle_questions"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Question belongs to one exam. CorrectAnswer is the canonical value a
// submission must match exactly; it is stripped before student-facing
// responses.
type Question struct {
	ID            string   `json:"id"`
	ExamID        string   `json:"exam_id"`
	Position      int      `json:"position"`
	Type          string   `json:"type"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Points        int      `json:"points"`
}

// Attempt is one student's single recorded run through an exam.
type Attempt struct {
	ID               string     `json:"id"`
	ExamID           string     `json:"exam_id"`
	StudentID        string     `json:"student_id"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	Score            float64    `json:"score"`
	Percentage       float64    `json:"percentage"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
	IPAddress        string     `json:"-"`
	UserAgent        string     `json:"-"`
}

// Answer is written exactly once per (attempt, question) at submission time.
// A skipped question still produces a row with an empty answer.
// TimeSpentSeconds is accepted from clients but recorded as zero; per-question
// timing analytics are deferred.
type Answer struct {
	ID               string `json:"id"`
	AttemptID        string `json:"attempt_id"`
	QuestionID       string `json:"question_id"`
	Answer           string `json:"answer"`
	IsCorrect        bool   `json:"is_correct"`
	PointsEarned     int    `json:"points_earned"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

// Result is the immutable graded outcome of a completed attempt.
type Result struct {
	ID           string    `json:"id"`
	AttemptID    string    `json:"attempt_id"`
	TotalScore   int       `json:"total_score"`
	TotalPoints  int       `json:"total_points"`
	CorrectCount int       `json:"correct_count"`
	WrongCount   int       `json:"wrong_count"`
	SkippedCount int       `json:"skipped_count"`
	Percentage   float64   `json:"percentage"`
	Grade        string    `json:"grade"`
	Passed       bool      `json:"passed"`
	CreatedAt    time.Time `json:"created_at"`
}
