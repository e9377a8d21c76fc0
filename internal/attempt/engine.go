package attempt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatesmart/quizgate/internal/domain"
	"github.com/gatesmart/quizgate/internal/errors"
	"github.com/gatesmart/quizgate/internal/event"
)

// State is the lifecycle phase of an attempt session.
type State string

const (
	StateLoading          State = "loading"
	StateActive           State = "active"
	StateAlreadyCompleted State = "already-completed"
	StateSubmitting       State = "submitting"
	StateSubmitted        State = "submitted"
	StateLoadFailed       State = "load-failed"
	StateClosed           State = "closed"
)

// unanswered marks an empty answer-sheet slot.
const unanswered = -1

const (
	fetchTimeout  = 15 * time.Second
	submitTimeout = 15 * time.Second
)

// QuizFetcher loads quiz content and the caller's attempt status from the
// upstream exam API.
type QuizFetcher interface {
	FetchQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AttemptRecorder posts attempt status transitions to the upstream exam API.
type AttemptRecorder interface {
	RecordInProgress(ctx context.Context, quizID string) error
	RecordCompleted(ctx context.Context, quizID string, percentage float64, completedAt time.Time) error
}

// CredentialInvalidator discards a bearer credential the upstream has rejected,
// so later calls fail fast instead of replaying a dead token.
type CredentialInvalidator interface {
	Invalidate()
}

// Ticker abstracts time.Ticker so tests can drive the countdown deterministically.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

type Config struct {
	QuizID   string
	Fetcher  QuizFetcher
	Recorder AttemptRecorder

	// Credentials is optional; when set it is invalidated on an unauthenticated
	// load failure.
	Credentials CredentialInvalidator

	// EventBus is optional; lifecycle events are published when set.
	EventBus *event.Bus

	NewTickerFunc func(d time.Duration) Ticker
	Now           func() time.Time
}

// Engine owns all state for one quiz-taking session from load to submission.
// It is safe for concurrent use; every intent and tick is serialized behind one
// mutex, and each state change broadcasts a fresh snapshot to subscribers.
type Engine struct {
	id     string
	quizID string

	fetcher   QuizFetcher
	recorder  AttemptRecorder
	creds     CredentialInvalidator
	eb        *event.Bus
	newTicker func(d time.Duration) Ticker
	now       func() time.Time

	mu              sync.Mutex
	state           State
	quiz            domain.Quiz
	answers         []int
	current         int
	remaining       int // seconds, never negative
	result          *domain.Result
	completedAt     time.Time
	autoSubmitted   bool
	loadErr         *errors.Error
	submitErr       *errors.Error
	redirectToLogin bool
	submitInFlight  bool
	subscribers     map[chan Snapshot]struct{}

	countdownStop chan struct{}
	stopCountdown sync.Once
}

func New(c Config) (*Engine, error) {
	if c.QuizID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("attempt: quiz ID is required"))
	}
	if c.Fetcher == nil || c.Recorder == nil {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("attempt: fetcher and recorder are required"))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	e := &Engine{
		id:            id.String(),
		quizID:        c.QuizID,
		fetcher:       c.Fetcher,
		recorder:      c.Recorder,
		creds:         c.Credentials,
		eb:            c.EventBus,
		newTicker:     c.NewTickerFunc,
		now:           c.Now,
		state:         StateLoading,
		subscribers:   make(map[chan Snapshot]struct{}),
		countdownStop: make(chan struct{}),
	}
	if e.newTicker == nil {
		e.newTicker = func(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

func (e *Engine) ID() string     { return e.id }
func (e *Engine) QuizID() string { return e.quizID }

// Start kicks off the quiz fetch. The load continues independently of the
// caller's request lifetime; a session torn down mid-fetch discards the late
// response instead of applying it.
func (e *Engine) Start(ctx context.Context) {
	go e.load(context.WithoutCancel(ctx))
}

func (e *Engine) load(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	quiz, err := e.fetcher.FetchQuiz(fctx, e.quizID)

	e.mu.Lock()
	if e.state != StateLoading {
		// Session was torn down while the fetch was in flight.
		e.mu.Unlock()
		return
	}

	if err != nil {
		e.loadErr = errors.Convert(err)
		e.state = StateLoadFailed
		unauthenticated := e.loadErr.Code == errors.CodeUnauthenticated
		if unauthenticated {
			e.redirectToLogin = true
		}
		kind := e.loadErr.Kind()
		e.broadcastLocked()
		e.mu.Unlock()

		slog.Warn("attempt: quiz load failed", "attempt", e.id, "quiz", e.quizID, "kind", kind, "error", err)
		if unauthenticated {
			if e.creds != nil {
				e.creds.Invalidate()
			}
			e.publish(ctx, domain.EventCredentialRejected{AttemptID: e.id, QuizID: e.quizID})
		}
		e.publish(ctx, domain.EventAttemptLoadFailed{AttemptID: e.id, QuizID: e.quizID, Kind: kind})
		return
	}

	e.quiz = quiz
	e.answers = make([]int, len(quiz.Questions))
	for i := range e.answers {
		e.answers[i] = unanswered
	}
	e.current = 0

	if quiz.Status == domain.AttemptCompleted {
		// Per-question answers are not persisted upstream, so only the aggregate
		// outcome can be shown.
		e.state = StateAlreadyCompleted
		e.remaining = 0
		res := degradedResult(quiz)
		e.result = &res
		e.broadcastLocked()
		e.mu.Unlock()
		return
	}

	e.state = StateActive
	e.remaining = quiz.TimeLimit * 60
	notifyInProgress := quiz.Status != domain.AttemptInProgress
	e.broadcastLocked()
	e.mu.Unlock()

	go e.runCountdown()

	if notifyInProgress {
		// Fire-and-forget: failing to record in-progress never blocks the user.
		go func() {
			nctx, ncancel := context.WithTimeout(ctx, submitTimeout)
			defer ncancel()
			if err := e.recorder.RecordInProgress(nctx, e.quizID); err != nil {
				slog.Warn("attempt: record in-progress failed", "attempt", e.id, "quiz", e.quizID, "error", err)
			}
		}()
		e.publish(ctx, domain.EventAttemptStarted{AttemptID: e.id, QuizID: e.quizID})
	}
}

func (e *Engine) runCountdown() {
	t := e.newTicker(time.Second)
	defer t.Stop()

	for {
		select {
		case <-t.C():
			if e.tick() {
				return
			}
		case <-e.countdownStop:
			return
		}
	}
}

// tick decrements the countdown by one second and reports whether the countdown
// loop should stop. When the clock hits zero the engine submits exactly once,
// identical in effect to a manual submit.
func (e *Engine) tick() bool {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return true
	}

	e.remaining--
	if e.remaining > 0 {
		e.broadcastLocked()
		e.mu.Unlock()
		return false
	}

	e.remaining = 0
	e.broadcastLocked()
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	if err := e.submit(ctx, true); err != nil {
		slog.Warn("attempt: auto-submit failed", "attempt", e.id, "quiz", e.quizID, "error", err)
	}
	return true
}

// SelectAnswer records the selected option for a question, overwriting any
// earlier selection. Outside the active state it is a no-op, not an error.
func (e *Engine) SelectAnswer(question, option int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return nil
	}
	if question < 0 || question >= len(e.quiz.Questions) {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("question index %d out of range", question))
	}
	if option < 0 || option >= len(e.quiz.Questions[question].Options) {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("option index %d out of range for question %d", option, question))
	}

	e.answers[question] = option
	e.broadcastLocked()
	return nil
}

// Next advances the question pointer, clamped to the last question.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return
	}
	if e.current < len(e.quiz.Questions)-1 {
		e.current++
		e.broadcastLocked()
	}
}

// Previous moves the question pointer back, clamped to the first question.
func (e *Engine) Previous() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return
	}
	if e.current > 0 {
		e.current--
		e.broadcastLocked()
	}
}

// JumpTo sets the question pointer directly. An out-of-range index is rejected
// and leaves the pointer unchanged.
func (e *Engine) JumpTo(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return nil
	}
	if index < 0 || index >= len(e.quiz.Questions) {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("question index %d out of range", index))
	}

	e.current = index
	e.broadcastLocked()
	return nil
}

// Submit scores the answer sheet locally and records the completed attempt
// upstream. A second call while a send is in flight, or after the attempt is
// submitted, is ignored. After a failed send Submit re-sends the same computed
// payload without re-scoring.
func (e *Engine) Submit(ctx context.Context) error {
	return e.submit(ctx, false)
}

func (e *Engine) submit(ctx context.Context, auto bool) error {
	e.mu.Lock()
	switch e.state {
	case StateActive:
		res := scoreAnswers(e.quiz.Questions, e.answers)
		e.result = &res
		e.completedAt = e.now().UTC()
		e.autoSubmitted = auto
		e.state = StateSubmitting
		e.submitInFlight = true
		e.stopCountdownLocked()
	case StateSubmitting:
		if e.submitInFlight || e.submitErr == nil {
			e.mu.Unlock()
			return nil
		}
		// Retry after a failed send: same payload, no re-scoring.
		e.submitErr = nil
		e.submitInFlight = true
	default:
		e.mu.Unlock()
		return nil
	}

	percentage := e.result.Percentage()
	completedAt := e.completedAt
	e.broadcastLocked()
	e.mu.Unlock()

	err := e.recorder.RecordCompleted(ctx, e.quizID, percentage, completedAt)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.submitInFlight = false
	if e.state == StateClosed {
		return nil
	}
	if err != nil {
		// Local scoring stands; the exam is over from the user's perspective.
		e.submitErr = errors.New(errors.CodeUnavailable,
			errors.WithMessagef("record completed attempt"),
			errors.WithCause(err),
		)
		e.broadcastLocked()
		return e.submitErr
	}

	e.state = StateSubmitted
	e.broadcastLocked()
	e.publish(ctx, domain.EventAttemptSubmitted{
		AttemptID:     e.id,
		QuizID:        e.quizID,
		Result:        *e.result,
		Percentage:    percentage,
		CompletedAt:   completedAt,
		AutoSubmitted: e.autoSubmitted,
	})
	return nil
}

// Close tears the session down: the countdown stops, subscribers are released
// and any late-arriving fetch or submit response is discarded.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return
	}
	e.state = StateClosed
	e.stopCountdownLocked()
	for ch := range e.subscribers {
		delete(e.subscribers, ch)
		close(ch)
	}
}

func (e *Engine) stopCountdownLocked() {
	e.stopCountdown.Do(func() { close(e.countdownStop) })
}

func (e *Engine) publish(ctx context.Context, ev event.Event) {
	if e.eb != nil {
		e.eb.Publish(ctx, ev)
	}
}
