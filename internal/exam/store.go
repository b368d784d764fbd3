package exam

import (
	"context"
	"time"
)

// Store is the record store behind the exam system. The Postgres
// implementation lives in Repository; tests substitute an in-memory double.
//
// CreateAttempt must enforce the one-non-abandoned-attempt-per-(exam, student)
// invariant atomically: under concurrent calls for the same pair exactly one
// succeeds and the rest observe a ConflictError wrapping ErrAlreadyAttempted.
//
// FinishAttempt writes the attempt transition, all answer rows, and the
// result in one transaction, and fails with a ConflictError wrapping
// ErrAlreadyCompleted when the attempt is no longer in_progress.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	UserByID(ctx context.Context, id string) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)

	CreateExam(ctx context.Context, e Exam) error
	UpdateExam(ctx context.Context, e Exam) error
	ExamByID(ctx context.Context, id string) (Exam, error)
	ListExams(ctx context.Context) ([]Exam, error)

	CreateQuestion(ctx context.Context, q Question) error
	QuestionsByExam(ctx context.Context, examID string) ([]Question, error)

	CreateAttempt(ctx context.Context, a Attempt) error
	AttemptByID(ctx context.Context, id string) (Attempt, error)
	FinishAttempt(ctx context.Context, a Attempt, answers []Answer, r Result) error
	ExpiredInProgress(ctx context.Context, now time.Time) ([]Attempt, error)

	ResultByAttempt(ctx context.Context, attemptID string) (Result, error)
	ResultsByExam(ctx context.Context, examID string) ([]Result, error)
	AnswersByAttempt(ctx context.Context, attemptID string) ([]Answer, error)
}
