package attempt

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gatesmart/quizgate/internal/domain"
)

// scoreAnswers computes the local result for an answer sheet. Unanswered
// questions contribute nothing; wrong answers add the question's negative
// marks. The total is not clamped: heavy negative marking can push the score
// below zero, matching GATE-style exams.
func scoreAnswers(questions []domain.Question, answers []int) domain.Result {
	r := domain.Result{
		Score:      decimal.Zero,
		TotalMarks: decimal.Zero,
	}

	for i, q := range questions {
		r.TotalMarks = r.TotalMarks.Add(q.Marks)

		if i >= len(answers) || answers[i] == unanswered {
			continue
		}
		if answers[i] == q.CorrectOption {
			r.Score = r.Score.Add(q.Marks)
			r.Correct++
		} else {
			r.Score = r.Score.Add(q.NegativeMarks)
			r.Incorrect++
		}
	}

	return r
}

// degradedResult reconstructs a result view for a quiz the upstream already
// reports completed. Only the aggregate percentage survives server-side, so
// the achieved marks are derived from it and per-question counts stay zero.
func degradedResult(quiz domain.Quiz) domain.Result {
	total := decimal.Zero
	for _, q := range quiz.Questions {
		total = total.Add(q.Marks)
	}

	score := decimal.Zero
	if quiz.Score != nil && !total.IsZero() {
		score = total.Mul(decimal.NewFromFloat(*quiz.Score)).Div(decimal.NewFromInt(100))
	}

	return domain.Result{
		Score:      score,
		TotalMarks: total,
		Degraded:   true,
	}
}

// FormatClock renders a second count as m:ss with zero-padded seconds.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
