package exam

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Service is the attempt lifecycle manager. It owns every transition of an
// attempt; nothing else mutates attempt state.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a service backed by a record store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// StartedAttempt is what a student receives when an attempt opens: the
// attempt row plus the question set with correct answers stripped.
type StartedAttempt struct {
	Attempt   Attempt
	Exam      Exam
	Questions []Question
}

// StartAttempt opens an attempt for a student. Preconditions are checked in
// order and the first failure wins: exam exists, exam active, window open at
// both ends, no prior non-abandoned attempt. The store's conditional insert
// is the authority for the last check; a lost race surfaces as the same
// conflict a sequential duplicate would.
func (s *Service) StartAttempt(ctx context.Context, studentID, examID, ipAddress, userAgent string) (StartedAttempt, error) {
	e, err := s.store.ExamByID(ctx, examID)
	if err != nil {
		return StartedAttempt{}, err
	}
	now := s.now().UTC()
	if !e.IsActive {
		return StartedAttempt{}, ErrExamInactive
	}
	if now.Before(e.StartTime) {
		return StartedAttempt{}, ErrExamNotStarted
	}
	if now.After(e.EndTime) {
		return StartedAttempt{}, ErrExamClosed
	}

	att := Attempt{
		ID:        uuid.NewString(),
		ExamID:    examID,
		StudentID: studentID,
		Status:    StatusInProgress,
		StartedAt: now,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	if err := s.store.CreateAttempt(ctx, att); err != nil {
		return StartedAttempt{}, err
	}

	questions, err := s.store.QuestionsByExam(ctx, examID)
	if err != nil {
		return StartedAttempt{}, err
	}
	questions = StudentView(questions, e.ShuffleQuestions)
	return StartedAttempt{Attempt: att, Exam: e, Questions: questions}, nil
}

// SubmitAttempt grades and completes an in_progress attempt. Exactly one
// answer row is written per question; omitted questions score zero. The
// attempt update, answers, and result land in one store transaction.
// Re-submission is rejected with the existing result id.
func (s *Service) SubmitAttempt(ctx context.Context, studentID, attemptID string, submitted map[string]string, elapsedSeconds int) (Result, error) {
	att, err := s.store.AttemptByID(ctx, attemptID)
	if err != nil {
		return Result{}, err
	}
	if att.StudentID != studentID {
		return Result{}, ErrNotAttemptOwner
	}
	if att.Status != StatusInProgress {
		return Result{}, s.completedConflict(ctx, attemptID)
	}

	e, err := s.store.ExamByID(ctx, att.ExamID)
	if err != nil {
		return Result{}, err
	}
	questions, err := s.store.QuestionsByExam(ctx, att.ExamID)
	if err != nil {
		return Result{}, err
	}

	now := s.now().UTC()
	result, answers := s.grade(att, e, questions, submitted, now)

	att.Status = StatusCompleted
	att.EndedAt = &now
	att.Score = float64(result.TotalScore)
	att.Percentage = result.Percentage
	att.TimeSpentSeconds = elapsedSeconds

	if err := s.store.FinishAttempt(ctx, att, answers, result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// ReconcileTimeouts transitions every in_progress attempt whose per-attempt
// duration or exam window has elapsed into time_out, scoring whatever was
// submitted (nothing, in this model, since answers arrive at submit time).
// It is idempotent: already-transitioned attempts fall out of the query and
// a concurrent submit wins the FinishAttempt race cleanly.
func (s *Service) ReconcileTimeouts(ctx context.Context) (int, error) {
	now := s.now().UTC()
	expired, err := s.store.ExpiredInProgress(ctx, now)
	if err != nil {
		return 0, err
	}
	transitioned := 0
	for _, att := range expired {
		e, err := s.store.ExamByID(ctx, att.ExamID)
		if err != nil {
			return transitioned, err
		}
		questions, err := s.store.QuestionsByExam(ctx, att.ExamID)
		if err != nil {
			return transitioned, err
		}
		result, answers := s.grade(att, e, questions, nil, now)

		att.Status = StatusTimeOut
		att.EndedAt = &now
		att.Score = float64(result.TotalScore)
		att.Percentage = result.Percentage
		att.TimeSpentSeconds = e.DurationMinutes * 60

		if err := s.store.FinishAttempt(ctx, att, answers, result); err != nil {
			if _, ok := AsConflict(err); ok {
				continue // submit beat the sweep, nothing to do
			}
			return transitioned, err
		}
		transitioned++
	}
	return transitioned, nil
}

// grade runs the scoring engine and materializes the answer and result rows.
func (s *Service) grade(att Attempt, e Exam, questions []Question, submitted map[string]string, now time.Time) (Result, []Answer) {
	tally, evals := Score(questions, submitted)
	answers := make([]Answer, 0, len(evals))
	for _, ev := range evals {
		answers = append(answers, Answer{
			ID:           uuid.NewString(),
			AttemptID:    att.ID,
			QuestionID:   ev.QuestionID,
			Answer:       ev.Answer,
			IsCorrect:    ev.Correct,
			PointsEarned: ev.PointsEarned,
		})
	}
	result := Result{
		ID:           uuid.NewString(),
		AttemptID:    att.ID,
		TotalScore:   tally.TotalScore,
		TotalPoints:  tally.TotalPoints,
		CorrectCount: tally.CorrectCount,
		WrongCount:   tally.WrongCount,
		SkippedCount: tally.SkippedCount,
		Percentage:   tally.Percentage,
		Grade:        tally.Grade,
		Passed:       tally.Percentage >= e.PassingScore,
		CreatedAt:    now,
	}
	return result, answers
}

// completedConflict builds the re-submission conflict, attaching the stored
// result id when one exists.
func (s *Service) completedConflict(ctx context.Context, attemptID string) error {
	existingID := ""
	if r, err := s.store.ResultByAttempt(ctx, attemptID); err == nil {
		existingID = r.ID
	}
	return &ConflictError{Err: ErrAlreadyCompleted, ExistingID: existingID}
}

// AsConflict unwraps a ConflictError if err carries one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// StudentView strips answer keys and, when shuffle is set, reorders the
// questions for this response only. The stored order is never mutated; each
// call draws from a fresh time-seeded source.
func StudentView(questions []Question, shuffle bool) []Question {
	view := make([]Question, len(questions))
	copy(view, questions)
	for i := range view {
		view[i].CorrectAnswer = ""
	}
	if shuffle {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		rng.Shuffle(len(view), func(i, j int) {
			view[i], view[j] = view[j], view[i]
		})
	}
	return view
}
