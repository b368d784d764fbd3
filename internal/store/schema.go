package store

import "context"

// schema is applied at startup. Statements are idempotent so repeated boots
// against the same database are safe.
//
// The partial unique index on attempts is the authority for the
// one-attempt-per-(exam, student) invariant: abandoned attempts fall outside
// it so a student may retry after an admin abandons a broken attempt.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL CHECK (role IN ('admin', 'teacher', 'student')),
	name          TEXT NOT NULL,
	class         TEXT,
	subject       TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS exams (
	id                UUID PRIMARY KEY,
	teacher_id        UUID NOT NULL REFERENCES users(id),
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	start_time        TIMESTAMPTZ NOT NULL,
	end_time          TIMESTAMPTZ NOT NULL,
	duration_minutes  INT NOT NULL,
	passing_score     DOUBLE PRECISION NOT NULL,
	is_active         BOOLEAN NOT NULL DEFAULT TRUE,
	allow_review      BOOLEAN NOT NULL DEFAULT FALSE,
	shuffle_questions BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS questions (
	id             UUID PRIMARY KEY,
	exam_id        UUID NOT NULL REFERENCES exams(id),
	position       INT NOT NULL,
	type           TEXT NOT NULL CHECK (type IN ('multiple_choice', 'true_false', 'essay')),
	text           TEXT NOT NULL,
	options        JSONB NOT NULL DEFAULT '[]',
	correct_answer TEXT NOT NULL,
	points         INT NOT NULL CHECK (points > 0)
);
CREATE INDEX IF NOT EXISTS idx_questions_exam ON questions (exam_id, position);

CREATE TABLE IF NOT EXISTS attempts (
	id                 UUID PRIMARY KEY,
	exam_id            UUID NOT NULL REFERENCES exams(id),
	student_id         UUID NOT NULL REFERENCES users(id),
	status             TEXT NOT NULL DEFAULT 'in_progress'
		CHECK (status IN ('in_progress', 'completed', 'time_out', 'abandoned')),
	started_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	ended_at           TIMESTAMPTZ,
	score              DOUBLE PRECISION NOT NULL DEFAULT 0,
	percentage         DOUBLE PRECISION NOT NULL DEFAULT 0,
	time_spent_seconds INT NOT NULL DEFAULT 0,
	ip_address         TEXT NOT NULL DEFAULT '',
	user_agent         TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_one_per_pair
	ON attempts (exam_id, student_id)
	WHERE status <> 'abandoned';

CREATE TABLE IF NOT EXISTS answers (
	id                 UUID PRIMARY KEY,
	attempt_id         UUID NOT NULL REFERENCES attempts(id),
	question_id        UUID NOT NULL REFERENCES questions(id),
	answer             TEXT NOT NULL DEFAULT '',
	is_correct         BOOLEAN NOT NULL DEFAULT FALSE,
	points_earned      INT NOT NULL DEFAULT 0,
	time_spent_seconds INT NOT NULL DEFAULT 0,
	UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS results (
	id            UUID PRIMARY KEY,
	attempt_id    UUID NOT NULL UNIQUE REFERENCES attempts(id),
	total_score   INT NOT NULL,
	total_points  INT NOT NULL,
	correct_count INT NOT NULL,
	wrong_count   INT NOT NULL,
	skipped_count INT NOT NULL,
	percentage    DOUBLE PRECISION NOT NULL,
	grade         TEXT NOT NULL,
	passed        BOOLEAN NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}
