package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AttemptStatus is the upstream-reported status of a user's attempt on a quiz.
type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not-started"
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// Valid reports whether the status is one the upstream API may send.
func (s AttemptStatus) Valid() bool {
	switch s {
	case AttemptNotStarted, AttemptInProgress, AttemptCompleted:
		return true
	}
	return false
}

// Question is a single-select multiple-choice question. The option index is the
// answer encoding; CorrectOption is zero-based.
type Question struct {
	Prompt        string
	Options       []string
	CorrectOption int
	Marks         decimal.Decimal
	NegativeMarks decimal.Decimal
}

// Quiz is the content of one quiz as served by the upstream API, immutable for
// the lifetime of an attempt. Question order is significant: the question index
// is the addressing scheme used throughout.
type Quiz struct {
	ID          string
	Title       string
	Description string
	Subject     string
	Topic       string
	Difficulty  string
	Questions   []Question
	TimeLimit   int // minutes, authoritative only for fresh attempts
	Status      AttemptStatus
	Score       *float64   // percentage, set only when Status is completed
	LastAttempt *time.Time // set only when Status is completed
}

// Result is the outcome of scoring an attempt locally.
type Result struct {
	Score      decimal.Decimal
	TotalMarks decimal.Decimal
	Correct    int
	Incorrect  int
	// Degraded marks results reconstructed from an already-completed upstream
	// attempt: only the aggregate percentage survives server-side, so Correct
	// and Incorrect are unknown and reported as zero.
	Degraded bool
}

// Percentage returns the score as a percentage of total marks, 0 when the quiz
// carries no marks at all.
func (r Result) Percentage() float64 {
	if r.TotalMarks.IsZero() {
		return 0
	}
	pct, _ := r.Score.Div(r.TotalMarks).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}
