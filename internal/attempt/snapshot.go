package attempt

// QuizView is the quiz header exposed to the presentation layer. Correct
// answers and marks never leave the engine.
type QuizView struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Subject       string `json:"subject,omitempty"`
	Topic         string `json:"topic,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
	QuestionCount int    `json:"question_count"`
	TimeLimit     int    `json:"time_limit"`
}

// QuestionView is the currently displayed question.
type QuestionView struct {
	Index    int      `json:"index"`
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options"`
	Selected int      `json:"selected"` // -1 when unanswered
}

// PaletteEntry feeds the question palette: one entry per question, in order.
type PaletteEntry struct {
	Answered bool `json:"answered"`
	Selected int  `json:"selected"` // -1 when unanswered
}

// ResultView is the attempt outcome once submitted or already completed.
type ResultView struct {
	Score      string  `json:"score"`
	TotalMarks string  `json:"total_marks"`
	Correct    int     `json:"correct"`
	Incorrect  int     `json:"incorrect"`
	Percentage float64 `json:"percentage"`
	Degraded   bool    `json:"degraded"`
}

// Snapshot is a read-only view of the attempt session, rebuilt on every state
// change.
type Snapshot struct {
	AttemptID        string         `json:"attempt_id"`
	QuizID           string         `json:"quiz_id"`
	State            State          `json:"state"`
	Quiz             *QuizView      `json:"quiz,omitempty"`
	CurrentIndex     int            `json:"current_index"`
	Question         *QuestionView  `json:"question,omitempty"`
	Palette          []PaletteEntry `json:"palette,omitempty"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Clock            string         `json:"clock"`
	Result           *ResultView    `json:"result,omitempty"`
	LoadErrorKind    string         `json:"load_error_kind,omitempty"`
	LoadError        string         `json:"load_error,omitempty"`
	SubmitError      string         `json:"submit_error,omitempty"`
	RedirectToLogin  bool           `json:"redirect_to_login,omitempty"`
}

// Snapshot returns the current view of the session.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot on every state change,
// starting with the current one. The caller must invoke the returned cancel
// function to avoid leaks; the channel is closed on cancel or engine teardown.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	e.mu.Lock()
	e.subscribers[ch] = struct{}{}
	initial := e.snapshotLocked()
	e.mu.Unlock()

	ch <- initial

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

func (e *Engine) broadcastLocked() {
	s := e.snapshotLocked()
	for ch := range e.subscribers {
		select {
		case ch <- s:
		default:
			// Drop the stale snapshot so a slow reader never blocks the engine.
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		AttemptID:        e.id,
		QuizID:           e.quizID,
		State:            e.state,
		CurrentIndex:     e.current,
		RemainingSeconds: e.remaining,
		Clock:            FormatClock(e.remaining),
		RedirectToLogin:  e.redirectToLogin,
	}

	if e.loadErr != nil {
		s.LoadErrorKind = e.loadErr.Kind()
		s.LoadError = e.loadErr.Message
	}
	if e.submitErr != nil {
		s.SubmitError = e.submitErr.Message
	}

	if e.quiz.ID != "" {
		s.Quiz = &QuizView{
			ID:            e.quiz.ID,
			Title:         e.quiz.Title,
			Description:   e.quiz.Description,
			Subject:       e.quiz.Subject,
			Topic:         e.quiz.Topic,
			Difficulty:    e.quiz.Difficulty,
			QuestionCount: len(e.quiz.Questions),
			TimeLimit:     e.quiz.TimeLimit,
		}

		s.Palette = make([]PaletteEntry, len(e.answers))
		for i, a := range e.answers {
			s.Palette[i] = PaletteEntry{Answered: a != unanswered, Selected: a}
		}

		if e.current >= 0 && e.current < len(e.quiz.Questions) {
			q := e.quiz.Questions[e.current]
			s.Question = &QuestionView{
				Index:    e.current,
				Prompt:   q.Prompt,
				Options:  append([]string(nil), q.Options...),
				Selected: e.answers[e.current],
			}
		}
	}

	if e.result != nil {
		s.Result = &ResultView{
			Score:      e.result.Score.String(),
			TotalMarks: e.result.TotalMarks.String(),
			Correct:    e.result.Correct,
			Incorrect:  e.result.Incorrect,
			Percentage: e.result.Percentage(),
			Degraded:   e.result.Degraded,
		}
	}

	return s
}
