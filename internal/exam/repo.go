package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists exam data in Postgres. It satisfies Store.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// CreateUser inserts a user; a unique-field collision maps to ErrDuplicateUser.
func (r *Repository) CreateUser(ctx context.Context, u User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, name, class, subject)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT DO NOTHING
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.Name, u.Class, u.Subject)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateUser
	}
	return nil
}

// UserByID returns a single user by id.
func (r *Repository) UserByID(ctx context.Context, id string) (User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, role, name, class, subject, created_at
		FROM users WHERE id = $1
	`, id))
}

// UserByUsername returns a single user by its unique username.
func (r *Repository) UserByUsername(ctx context.Context, username string) (User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, role, name, class, subject, created_at
		FROM users WHERE username = $1
	`, username))
}

func (r *Repository) scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Name, &u.Class, &u.Subject, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// CreateExam writes a new exam.
func (r *Repository) CreateExam(ctx context.Context, e Exam) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exams (id, teacher_id, title, description, start_time, end_time,
			duration_minutes, passing_score, is_active, allow_review, shuffle_questions)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, e.ID, e.TeacherID, e.Title, e.Description, e.StartTime, e.EndTime,
		e.DurationMinutes, e.PassingScore, e.IsActive, e.AllowReview, e.ShuffleQuestions)
	return err
}

// UpdateExam rewrites the mutable exam fields. Deactivation goes through
// here as is_active=false; exams are never physically deleted.
func (r *Repository) UpdateExam(ctx context.Context, e Exam) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE exams
		SET title = $2, description = $3, start_time = $4, end_time = $5,
			duration_minutes = $6, passing_score = $7, is_active = $8,
			allow_review = $9, shuffle_questions = $10, updated_at = NOW()
		WHERE id = $1
	`, e.ID, e.Title, e.Description, e.StartTime, e.EndTime,
		e.DurationMinutes, e.PassingScore, e.IsActive, e.AllowReview, e.ShuffleQuestions)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExamNotFound
	}
	return nil
}

const examColumns = `id, teacher_id, title, description, start_time, end_time,
	duration_minutes, passing_score, is_active, allow_review, shuffle_questions,
	created_at, updated_at`

// ExamByID returns a single exam by id.
func (r *Repository) ExamByID(ctx context.Context, id string) (Exam, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
	var e Exam
	err := row.Scan(&e.ID, &e.TeacherID, &e.Title, &e.Description, &e.StartTime, &e.EndTime,
		&e.DurationMinutes, &e.PassingScore, &e.IsActive, &e.AllowReview, &e.ShuffleQuestions,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, ErrExamNotFound
	}
	if err != nil {
		return Exam{}, err
	}
	return e, nil
}

// ListExams returns all exams, newest first.
func (r *Repository) ListExams(ctx context.Context) ([]Exam, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+examColumns+` FROM exams ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Exam
	for rows.Next() {
		var e Exam
		if err := rows.Scan(&e.ID, &e.TeacherID, &e.Title, &e.Description, &e.StartTime, &e.EndTime,
			&e.DurationMinutes, &e.PassingScore, &e.IsActive, &e.AllowReview, &e.ShuffleQuestions,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// CreateQuestion writes a new question.
func (r *Repository) CreateQuestion(ctx context.Context, q Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO questions (id, exam_id, position, type, text, options, correct_answer, points)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, q.ID, q.ExamID, q.Position, q.Type, q.Text, jsonArray(q.Options), q.CorrectAnswer, q.Points)
	return err
}

// QuestionsByExam returns an exam's questions in canonical order.
func (r *Repository) QuestionsByExam(ctx context.Context, examID string) ([]Question, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, exam_id, position, type, text, options, correct_answer, points
		FROM questions WHERE exam_id = $1 ORDER BY position
	`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Question
	for rows.Next() {
		var q Question
		var options []byte
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Position, &q.Type, &q.Text, &options, &q.CorrectAnswer, &q.Points); err != nil {
			return nil, err
		}
		if err := unmarshalOptions(options, &q.Options); err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

// CreateAttempt inserts an attempt. The partial unique index over
// non-abandoned (exam_id, student_id) pairs arbitrates concurrent starts:
// the conditional insert either lands or reports the existing attempt.
func (r *Repository) CreateAttempt(ctx context.Context, a Attempt) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attempts (id, exam_id, student_id, status, started_at, ip_address, user_agent)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (exam_id, student_id) WHERE status <> 'abandoned' DO NOTHING
		RETURNING id
	`, a.ID, a.ExamID, a.StudentID, a.Status, a.StartedAt, a.IPAddress, a.UserAgent)
	var inserted string
	err := row.Scan(&inserted)
	if errors.Is(err, sql.ErrNoRows) {
		existing := ""
		_ = r.db.QueryRowContext(ctx, `
			SELECT id FROM attempts
			WHERE exam_id = $1 AND student_id = $2 AND status <> 'abandoned'
		`, a.ExamID, a.StudentID).Scan(&existing)
		return &ConflictError{Err: ErrAlreadyAttempted, ExistingID: existing}
	}
	return err
}

const attemptColumns = `id, exam_id, student_id, status, started_at, ended_at,
	score, percentage, time_spent_seconds, ip_address, user_agent`

// AttemptByID returns a single attempt by id.
func (r *Repository) AttemptByID(ctx context.Context, id string) (Attempt, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id)
	var a Attempt
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.StartedAt, &a.EndedAt,
		&a.Score, &a.Percentage, &a.TimeSpentSeconds, &a.IPAddress, &a.UserAgent)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}

// FinishAttempt atomically transitions an in_progress attempt to its terminal
// state and writes the answer rows and result. The guarded UPDATE is the
// serialization point: whichever of submit and the timeout sweep commits
// first wins, the loser sees ErrAlreadyCompleted.
func (r *Repository) FinishAttempt(ctx context.Context, a Attempt, answers []Answer, result Result) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE attempts
		SET status = $2, ended_at = $3, score = $4, percentage = $5, time_spent_seconds = $6
		WHERE id = $1 AND status = 'in_progress'
	`, a.ID, a.Status, a.EndedAt, a.Score, a.Percentage, a.TimeSpentSeconds)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		existing := ""
		_ = r.db.QueryRowContext(ctx, `SELECT id FROM results WHERE attempt_id = $1`, a.ID).Scan(&existing)
		return &ConflictError{Err: ErrAlreadyCompleted, ExistingID: existing}
	}

	for _, ans := range answers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO answers (id, attempt_id, question_id, answer, is_correct, points_earned, time_spent_seconds)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, ans.ID, ans.AttemptID, ans.QuestionID, ans.Answer, ans.IsCorrect, ans.PointsEarned, ans.TimeSpentSeconds); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO results (id, attempt_id, total_score, total_points, correct_count,
			wrong_count, skipped_count, percentage, grade, passed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, result.ID, result.AttemptID, result.TotalScore, result.TotalPoints, result.CorrectCount,
		result.WrongCount, result.SkippedCount, result.Percentage, result.Grade, result.Passed,
		result.CreatedAt); err != nil {
		return err
	}

	return tx.Commit()
}

// ExpiredInProgress returns attempts still in_progress past their per-attempt
// duration or their exam's end time.
func (r *Repository) ExpiredInProgress(ctx context.Context, now time.Time) ([]Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.exam_id, a.student_id, a.status, a.started_at, a.ended_at,
			a.score, a.percentage, a.time_spent_seconds, a.ip_address, a.user_agent
		FROM attempts a
		JOIN exams e ON e.id = a.exam_id
		WHERE a.status = 'in_progress'
		  AND ($1::timestamptz > a.started_at + e.duration_minutes * interval '1 minute'
		       OR $1::timestamptz > e.end_time)
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.StartedAt, &a.EndedAt,
			&a.Score, &a.Percentage, &a.TimeSpentSeconds, &a.IPAddress, &a.UserAgent); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

const resultColumns = `id, attempt_id, total_score, total_points, correct_count,
	wrong_count, skipped_count, percentage, grade, passed, created_at`

// ResultByAttempt returns the result for a completed attempt.
func (r *Repository) ResultByAttempt(ctx context.Context, attemptID string) (Result, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE attempt_id = $1`, attemptID)
	return scanResult(row)
}

// ResultsByExam returns every result for an exam, newest first.
func (r *Repository) ResultsByExam(ctx context.Context, examID string) ([]Result, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.attempt_id, r.total_score, r.total_points, r.correct_count,
			r.wrong_count, r.skipped_count, r.percentage, r.grade, r.passed, r.created_at
		FROM results r
		JOIN attempts a ON a.id = r.attempt_id
		WHERE a.exam_id = $1
		ORDER BY r.created_at DESC
	`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Result
	for rows.Next() {
		var rr Result
		if err := rows.Scan(&rr.ID, &rr.AttemptID, &rr.TotalScore, &rr.TotalPoints, &rr.CorrectCount,
			&rr.WrongCount, &rr.SkippedCount, &rr.Percentage, &rr.Grade, &rr.Passed, &rr.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rr)
	}
	return res, rows.Err()
}

// AnswersByAttempt returns the answer rows written at submission.
func (r *Repository) AnswersByAttempt(ctx context.Context, attemptID string) ([]Answer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, attempt_id, question_id, answer, is_correct, points_earned, time_spent_seconds
		FROM answers WHERE attempt_id = $1
	`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Answer
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.Answer, &a.IsCorrect, &a.PointsEarned, &a.TimeSpentSeconds); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// jsonArray encodes options for the JSONB column; nil becomes [].
func jsonArray(vals []string) []byte {
	if vals == nil {
		vals = []string{}
	}
	b, _ := json.Marshal(vals)
	return b
}

func unmarshalOptions(data []byte, into *[]string) error {
	if len(data) == 0 {
		*into = nil
		return nil
	}
	return json.Unmarshal(data, into)
}

func scanResult(row *sql.Row) (Result, error) {
	var rr Result
	err := row.Scan(&rr.ID, &rr.AttemptID, &rr.TotalScore, &rr.TotalPoints, &rr.CorrectCount,
		&rr.WrongCount, &rr.SkippedCount, &rr.Percentage, &rr.Grade, &rr.Passed, &rr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, ErrResultNotFound
	}
	if err != nil {
		return Result{}, err
	}
	return rr, nil
}
