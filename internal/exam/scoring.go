package exam

import "math"

// Tally is the aggregate outcome of scoring one attempt.
type Tally struct {
	TotalScore   int
	TotalPoints  int
	CorrectCount int
	WrongCount   int
	SkippedCount int
	Percentage   float64
	Grade        string
}

// Evaluation is the per-question outcome, in question order.
type Evaluation struct {
	QuestionID   string
	Answer       string
	Correct      bool
	PointsEarned int
}

// Score grades submitted answers against the exam's questions. It is pure:
// no I/O, no randomness, identical inputs always yield identical output.
//
// A missing or empty submission counts as skipped with zero points. Anything
// else is compared to the canonical correct answer as an exact, case-sensitive
// string match and earns the full question weight or nothing.
func Score(questions []Question, submitted map[string]string) (Tally, []Evaluation) {
	var t Tally
	evals := make([]Evaluation, 0, len(questions))
	for _, q := range questions {
		t.TotalPoints += q.Points
		ev := Evaluation{QuestionID: q.ID, Answer: submitted[q.ID]}
		switch {
		case ev.Answer == "":
			t.SkippedCount++
		case ev.Answer == q.CorrectAnswer:
			ev.Correct = true
			ev.PointsEarned = q.Points
			t.TotalScore += q.Points
			t.CorrectCount++
		default:
			t.WrongCount++
		}
		evals = append(evals, ev)
	}
	if t.TotalPoints > 0 {
		t.Percentage = 100 * float64(t.TotalScore) / float64(t.TotalPoints)
	}
	t.Grade = Grade(t.Percentage)
	return t, evals
}

// Grade maps a percentage to a letter with inclusive lower bounds.
func Grade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	}
	return "E"
}

// RoundPercent rounds to two decimals for response payloads; stored
// percentages keep full precision.
func RoundPercent(p float64) float64 {
	return math.Round(p*100) / 100
}
