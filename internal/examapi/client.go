// Package examapi is the HTTP client for the upstream GateSmart exam API. It
// implements the quiz-fetch and attempt-submission collaborators consumed by
// the attempt engine, behind a strict parse-and-validate boundary: malformed
// quiz payloads are rejected instead of coerced.
package examapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gatesmart/quizgate/internal/domain"
	"github.com/gatesmart/quizgate/internal/errors"
)

// TokenSource supplies the bearer credential for upstream calls. Invalidate
// discards a credential the upstream has rejected so later calls fail fast.
type TokenSource interface {
	Token() (string, error)
	Invalidate()
}

// StaticToken is a TokenSource holding one bearer token captured from the
// presentation layer at session creation.
type StaticToken struct {
	mu    sync.Mutex
	token string
}

func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: token}
}

func (s *StaticToken) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		return "", errors.New(errors.CodeUnauthenticated, errors.WithMessagef("credential cleared"))
	}
	return s.token, nil
}

func (s *StaticToken) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

type Config struct {
	BaseURL string
	Tokens  TokenSource

	// HTTPClient is optional; defaults to a client with a sane timeout.
	HTTPClient *http.Client
}

// Client talks to the GateSmart exam API on behalf of one credential. It
// implements attempt.QuizFetcher, attempt.AttemptRecorder and
// attempt.CredentialInvalidator.
type Client struct {
	base   string
	tokens TokenSource
	http   *http.Client
}

func NewClient(c Config) (*Client, error) {
	if c.Tokens == nil {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("examapi: token source is required"))
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("examapi: invalid base URL %q", c.BaseURL))
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		base:   strings.TrimRight(c.BaseURL, "/"),
		tokens: c.Tokens,
		http:   hc,
	}, nil
}

// Invalidate discards the session credential.
func (c *Client) Invalidate() {
	c.tokens.Invalidate()
}

// FetchQuiz loads quiz content plus the caller's attempt status.
func (c *Client) FetchQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/quizzes/"+url.PathEscape(quizID), nil)
	if err != nil {
		return domain.Quiz{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Quiz{}, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("quiz fetch failed"),
			errors.WithCause(err),
		)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return domain.Quiz{}, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("credential rejected by upstream"))
	case http.StatusNotFound:
		return domain.Quiz{}, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz %s not found", quizID))
	default:
		return domain.Quiz{}, errors.New(errors.CodeUnavailable, errors.WithMessagef("quiz fetch: upstream status %d", resp.StatusCode))
	}

	var p quizPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return domain.Quiz{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed quiz payload"),
			errors.WithCause(err),
		)
	}

	return p.toDomain()
}

// RecordInProgress marks the attempt in-progress upstream.
func (c *Client) RecordInProgress(ctx context.Context, quizID string) error {
	return c.postAttempt(ctx, quizID, attemptBody{Status: domain.AttemptInProgress})
}

// RecordCompleted posts the completed attempt with its percentage score.
func (c *Client) RecordCompleted(ctx context.Context, quizID string, percentage float64, completedAt time.Time) error {
	ts := completedAt.UTC().Format(time.RFC3339)
	return c.postAttempt(ctx, quizID, attemptBody{
		Status:      domain.AttemptCompleted,
		Score:       &percentage,
		CompletedAt: &ts,
	})
}

type attemptBody struct {
	Status      domain.AttemptStatus `json:"status"`
	Score       *float64             `json:"score"`
	CompletedAt *string              `json:"completed_at"`
}

func (c *Client) postAttempt(ctx context.Context, quizID string, body attemptBody) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return errors.Internal(err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/quizzes/"+url.PathEscape(quizID)+"/attempt", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("attempt %s record failed", body.Status),
			errors.WithCause(err),
		)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusUnauthorized:
		return errors.New(errors.CodeUnauthenticated, errors.WithMessagef("credential rejected by upstream"))
	case http.StatusNotFound:
		return errors.New(errors.CodeNotFound, errors.WithMessagef("quiz %s not found", quizID))
	default:
		return errors.New(errors.CodeUnavailable, errors.WithMessagef("attempt record: upstream status %d", resp.StatusCode))
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body *bytes.Reader) (*http.Request, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}

	var req *http.Request
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.base+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.base+path, nil)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// Factory builds one Client per captured credential.
type Factory struct {
	base string
	http *http.Client
}

func NewFactory(baseURL string, hc *http.Client) (*Factory, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("examapi: invalid base URL %q", baseURL))
	}
	return &Factory{base: baseURL, http: hc}, nil
}

// Session returns a client bound to the given bearer token.
func (f *Factory) Session(token string) *Client {
	c, err := NewClient(Config{
		BaseURL:    f.base,
		Tokens:     NewStaticToken(token),
		HTTPClient: f.http,
	})
	if err != nil {
		// The factory validated the base URL at construction; a non-nil token
		// source is supplied above, so this cannot fail.
		panic(fmt.Sprintf("examapi: session client: %v", err))
	}
	return c
}
