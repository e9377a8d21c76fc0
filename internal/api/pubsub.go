package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gatesmart/quizgate/internal/domain"
)

const maxConcurrentPublishes = 16

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	AttemptStarted struct {
		AttemptID string `json:"attempt_id"`
		QuizID    string `json:"quiz_id"`
	}

	AttemptSubmitted struct {
		AttemptID     string    `json:"attempt_id"`
		QuizID        string    `json:"quiz_id"`
		Score         string    `json:"score"`
		TotalMarks    string    `json:"total_marks"`
		Correct       int       `json:"correct"`
		Incorrect     int       `json:"incorrect"`
		Percentage    float64   `json:"percentage"`
		AutoSubmitted bool      `json:"auto_submitted"`
		CompletedAt   time.Time `json:"completed_at"`
	}
)

func (a *API) publishAttemptStarted(ctx context.Context, e domain.EventAttemptStarted) error {
	return a.publishNotification(ctx, e.Name(), AttemptStarted{
		AttemptID: e.AttemptID,
		QuizID:    e.QuizID,
	}, e.AttemptID, e.QuizID)
}

func (a *API) publishAttemptSubmitted(ctx context.Context, e domain.EventAttemptSubmitted) error {
	return a.publishNotification(ctx, e.Name(), AttemptSubmitted{
		AttemptID:     e.AttemptID,
		QuizID:        e.QuizID,
		Score:         e.Result.Score.String(),
		TotalMarks:    e.Result.TotalMarks.String(),
		Correct:       e.Result.Correct,
		Incorrect:     e.Result.Incorrect,
		Percentage:    e.Percentage,
		AutoSubmitted: e.AutoSubmitted,
		CompletedAt:   e.CompletedAt,
	}, e.AttemptID, e.QuizID)
}

// publishNotification fans the event out to the per-attempt and per-quiz
// channels so both a session watcher and a dashboard listing can react.
func (a *API) publishNotification(ctx context.Context, event string, data any, attemptID, quizID string) error {
	b, err := json.Marshal(Notification{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	channels := []string{
		fmt.Sprintf("%s:attempt:%s", a.prefix, attemptID),
		fmt.Sprintf("%s:quiz:%s", a.prefix, quizID),
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentPublishes)

	for _, ch := range channels {
		ch := ch
		eg.Go(func() error {
			return a.redis.Publish(ctx, ch, b).Err()
		})
	}

	return eg.Wait()
}
