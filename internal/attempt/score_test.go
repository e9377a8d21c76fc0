package attempt

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/gatesmart/quizgate/internal/domain"
)

func TestScoreAnswers(t *testing.T) {
	// Q1: marks=2, negative=-0.5, correct=0. Q2: marks=3, negative=0, correct=1.
	questions := []domain.Question{
		{
			Prompt:        "q1",
			Options:       []string{"a", "b", "c"},
			CorrectOption: 0,
			Marks:         decimal.NewFromInt(2),
			NegativeMarks: decimal.NewFromFloat(-0.5),
		},
		{
			Prompt:        "q2",
			Options:       []string{"a", "b"},
			CorrectOption: 1,
			Marks:         decimal.NewFromInt(3),
			NegativeMarks: decimal.Zero,
		},
	}

	tests := map[string]struct {
		answers        []int
		wantScore      string
		wantCorrect    int
		wantIncorrect  int
		wantPercentage float64
	}{
		"one correct one incorrect": {
			answers:        []int{0, 0},
			wantScore:      "2",
			wantCorrect:    1,
			wantIncorrect:  1,
			wantPercentage: 40,
		},
		"one unanswered one correct": {
			answers:        []int{-1, 1},
			wantScore:      "3",
			wantCorrect:    1,
			wantIncorrect:  0,
			wantPercentage: 60,
		},
		"all unanswered": {
			answers:        []int{-1, -1},
			wantScore:      "0",
			wantCorrect:    0,
			wantIncorrect:  0,
			wantPercentage: 0,
		},
		"all correct": {
			answers:        []int{0, 1},
			wantScore:      "5",
			wantCorrect:    2,
			wantIncorrect:  0,
			wantPercentage: 100,
		},
		"negative marking applies": {
			answers:        []int{1, 0},
			wantScore:      "-0.5",
			wantCorrect:    0,
			wantIncorrect:  2,
			wantPercentage: -10,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := scoreAnswers(questions, tt.answers)

			assert.Equal(t, tt.wantScore, r.Score.String())
			assert.Equal(t, "5", r.TotalMarks.String())
			assert.Equal(t, tt.wantCorrect, r.Correct)
			assert.Equal(t, tt.wantIncorrect, r.Incorrect)
			assert.InDelta(t, tt.wantPercentage, r.Percentage(), 1e-9)
			assert.False(t, r.Degraded)
		})
	}
}

func TestScoreAnswersZeroTotal(t *testing.T) {
	questions := []domain.Question{
		{Prompt: "q1", Options: []string{"a", "b"}, CorrectOption: 0, Marks: decimal.Zero, NegativeMarks: decimal.Zero},
	}

	r := scoreAnswers(questions, []int{0})

	assert.Equal(t, "0", r.TotalMarks.String())
	assert.Equal(t, 0.0, r.Percentage(), "zero total marks yields zero percent, not a division by zero")
}

func TestDegradedResult(t *testing.T) {
	pct := 40.0
	quiz := domain.Quiz{
		Questions: []domain.Question{
			{Marks: decimal.NewFromInt(2)},
			{Marks: decimal.NewFromInt(3)},
		},
		Score: &pct,
	}

	r := degradedResult(quiz)

	assert.True(t, r.Degraded)
	assert.Equal(t, "5", r.TotalMarks.String())
	assert.Equal(t, "2", r.Score.String())
	assert.InDelta(t, 40, r.Percentage(), 1e-9)
	assert.Zero(t, r.Correct)
	assert.Zero(t, r.Incorrect)
}

func TestDegradedResultNoScore(t *testing.T) {
	quiz := domain.Quiz{
		Questions: []domain.Question{{Marks: decimal.NewFromInt(2)}},
	}

	r := degradedResult(quiz)

	assert.True(t, r.Degraded)
	assert.Equal(t, "0", r.Score.String())
}

func TestFormatClock(t *testing.T) {
	tests := map[string]struct {
		seconds int
		want    string
	}{
		"zero":               {seconds: 0, want: "0:00"},
		"single digit":       {seconds: 9, want: "0:09"},
		"under a minute":     {seconds: 59, want: "0:59"},
		"exactly one minute": {seconds: 60, want: "1:00"},
		"typical":            {seconds: 754, want: "12:34"},
		"three hours":        {seconds: 10800, want: "180:00"},
		"negative clamps":    {seconds: -5, want: "0:00"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatClock(tt.seconds))
		})
	}
}
