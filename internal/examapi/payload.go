package examapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gatesmart/quizgate/internal/domain"
	"github.com/gatesmart/quizgate/internal/errors"
)

// quizPayload mirrors the upstream quiz response. Fields are validated before
// anything reaches the engine; the upstream has historically been loose about
// types here, so the boundary is strict on purpose.
type quizPayload struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Subject     string            `json:"subject"`
	Topic       string            `json:"topic"`
	Difficulty  string            `json:"difficulty"`
	Questions   []questionPayload `json:"questions"`
	TimeLimit   int               `json:"time_limit"`
	Status      string            `json:"status"`
	Score       *float64          `json:"score"`
	LastAttempt *time.Time        `json:"last_attempt"`
}

type questionPayload struct {
	QuestionText  string          `json:"question_text"`
	Options       []string        `json:"options"`
	CorrectAnswer int             `json:"correct_answer"`
	Marks         decimal.Decimal `json:"marks"`
	NegativeMarks decimal.Decimal `json:"negative_marks"`
}

func (p quizPayload) toDomain() (domain.Quiz, error) {
	invalid := func(format string, args ...any) (domain.Quiz, error) {
		return domain.Quiz{}, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("malformed quiz payload: "+format, args...))
	}

	if p.ID == "" {
		return invalid("missing id")
	}
	status := domain.AttemptStatus(p.Status)
	if !status.Valid() {
		return invalid("unknown status %q", p.Status)
	}
	if len(p.Questions) == 0 {
		return invalid("quiz %s has no questions", p.ID)
	}
	if p.TimeLimit <= 0 {
		return invalid("quiz %s has non-positive time limit %d", p.ID, p.TimeLimit)
	}

	questions := make([]domain.Question, 0, len(p.Questions))
	for i, q := range p.Questions {
		if len(q.Options) == 0 {
			return invalid("question %d has no options", i)
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return invalid("question %d correct answer %d out of range", i, q.CorrectAnswer)
		}
		if q.Marks.IsNegative() {
			return invalid("question %d has negative marks", i)
		}
		if q.NegativeMarks.IsPositive() {
			return invalid("question %d has positive negative-marks", i)
		}

		questions = append(questions, domain.Question{
			Prompt:        q.QuestionText,
			Options:       q.Options,
			CorrectOption: q.CorrectAnswer,
			Marks:         q.Marks,
			NegativeMarks: q.NegativeMarks,
		})
	}

	return domain.Quiz{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Subject:     p.Subject,
		Topic:       p.Topic,
		Difficulty:  p.Difficulty,
		Questions:   questions,
		TimeLimit:   p.TimeLimit,
		Status:      status,
		Score:       p.Score,
		LastAttempt: p.LastAttempt,
	}, nil
}
