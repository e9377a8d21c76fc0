package domain

import "time"

const (
	EventNameAttemptStarted     = "attempt.started"
	EventNameAttemptSubmitted   = "attempt.submitted"
	EventNameAttemptLoadFailed  = "attempt.load_failed"
	EventNameCredentialRejected = "credential.rejected"
)

// EventAttemptStarted is published when an attempt enters the active state and
// the upstream record should be marked in-progress. Delivery is fire-and-forget:
// a failed notification never blocks the attempt.
type EventAttemptStarted struct {
	AttemptID string
	QuizID    string
}

func (EventAttemptStarted) Name() string { return EventNameAttemptStarted }

// EventAttemptSubmitted is published once an attempt's local result exists and
// the completed record was accepted upstream.
type EventAttemptSubmitted struct {
	AttemptID   string
	QuizID      string
	Result      Result
	Percentage  float64
	CompletedAt time.Time
	// AutoSubmitted is true when the countdown expiring, not the user, triggered
	// the submission.
	AutoSubmitted bool
}

func (EventAttemptSubmitted) Name() string { return EventNameAttemptSubmitted }

// EventAttemptLoadFailed is published when the quiz fetch fails and the session
// becomes terminal without ever activating. Kind is the load-error taxonomy
// string (unauthenticated, not-found, network).
type EventAttemptLoadFailed struct {
	AttemptID string
	QuizID    string
	Kind      string
}

func (EventAttemptLoadFailed) Name() string { return EventNameAttemptLoadFailed }

// EventCredentialRejected is published when the upstream API rejects the bearer
// credential during load. The session is terminal at that point.
type EventCredentialRejected struct {
	AttemptID string
	QuizID    string
}

func (EventCredentialRejected) Name() string { return EventNameCredentialRejected }
