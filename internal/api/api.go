// Package api exposes attempt sessions to the presentation layer: REST intents
// over gin, live snapshots over WebSocket, and Redis pub/sub notifications for
// attempt lifecycle events.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/gatesmart/quizgate/internal/attempt"
	"github.com/gatesmart/quizgate/internal/domain"
	"github.com/gatesmart/quizgate/internal/errors"
	"github.com/gatesmart/quizgate/internal/event"
	"github.com/gatesmart/quizgate/internal/examapi"
)

type Config struct {
	Router       *gin.Engine
	EventBus     *event.Bus
	Registry     *attempt.Registry
	Sessions     SessionFactory
	Redis        Redis
	PubsubPrefix string
}

// SessionFactory builds one upstream client per captured bearer credential.
type SessionFactory interface {
	Session(token string) *examapi.Client
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	eb       *event.Bus
	registry *attempt.Registry
	sessions SessionFactory
	redis    Redis
	prefix   string
	upgrader websocket.Upgrader
}

func New(c Config) *API {
	a := &API{
		eb:       c.EventBus,
		registry: c.Registry,
		sessions: c.Sessions,
		redis:    c.Redis,
		prefix:   c.PubsubPrefix,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	r := c.Router
	r.POST("/api/attempts", a.createAttempt)
	r.GET("/api/attempts/:id", a.getSnapshot)
	r.DELETE("/api/attempts/:id", a.deleteAttempt)
	r.POST("/api/attempts/:id/answers", a.selectAnswer)
	r.POST("/api/attempts/:id/navigate", a.navigate)
	r.POST("/api/attempts/:id/submit", a.submit)
	r.GET("/api/attempts/:id/watch", a.watchAttempt)

	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameAttemptStarted, func(ctx context.Context, e event.Event) error {
			return a.publishAttemptStarted(ctx, e.(domain.EventAttemptStarted))
		})
		c.EventBus.Subscribe(domain.EventNameAttemptSubmitted, func(ctx context.Context, e event.Event) error {
			return a.publishAttemptSubmitted(ctx, e.(domain.EventAttemptSubmitted))
		})
	}

	return a
}

type createAttemptRequest struct {
	QuizID string `json:"quiz_id" binding:"required"`
}

type createAttemptResponse struct {
	AttemptID string           `json:"attempt_id"`
	Snapshot  attempt.Snapshot `json:"snapshot"`
}

func (a *API) createAttempt(c *gin.Context) {
	token := bearerToken(c.Request)
	if token == "" {
		writeError(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing bearer credential")))
		return
	}

	var req createAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}

	client := a.sessions.Session(token)
	eng, err := attempt.New(attempt.Config{
		QuizID:      req.QuizID,
		Fetcher:     client,
		Recorder:    client,
		Credentials: client,
		EventBus:    a.eb,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	a.registry.Add(eng)
	eng.Start(c.Request.Context())

	c.JSON(http.StatusCreated, createAttemptResponse{
		AttemptID: eng.ID(),
		Snapshot:  eng.Snapshot(),
	})
}

func (a *API) getSnapshot(c *gin.Context) {
	eng, ok := a.engine(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, eng.Snapshot())
}

func (a *API) deleteAttempt(c *gin.Context) {
	id := c.Param("id")
	if _, ok := a.registry.Get(id); !ok {
		writeError(c, errors.New(errors.CodeNotFound, errors.WithMessagef("attempt %s not found", id)))
		return
	}
	a.registry.Remove(id)
	c.Status(http.StatusNoContent)
}

type selectAnswerRequest struct {
	Question int `json:"question"`
	Option   int `json:"option"`
}

func (a *API) selectAnswer(c *gin.Context) {
	eng, ok := a.engine(c)
	if !ok {
		return
	}

	var req selectAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}

	if err := eng.SelectAnswer(req.Question, req.Option); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, eng.Snapshot())
}

type navigateRequest struct {
	Action string `json:"action" binding:"required"` // next | previous | goto
	Index  int    `json:"index"`
}

func (a *API) navigate(c *gin.Context) {
	eng, ok := a.engine(c)
	if !ok {
		return
	}

	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}

	switch req.Action {
	case "next":
		eng.Next()
	case "previous":
		eng.Previous()
	case "goto":
		if err := eng.JumpTo(req.Index); err != nil {
			writeError(c, err)
			return
		}
	default:
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown navigation action %q", req.Action)))
		return
	}

	c.JSON(http.StatusOK, eng.Snapshot())
}

func (a *API) submit(c *gin.Context) {
	eng, ok := a.engine(c)
	if !ok {
		return
	}

	if err := eng.Submit(c.Request.Context()); err != nil {
		// The local result stands even when the upstream write failed; return
		// the snapshot alongside the error status so the caller can render it
		// and offer a retry.
		c.JSON(errors.Convert(err).HTTPStatusCode(), eng.Snapshot())
		return
	}
	c.JSON(http.StatusOK, eng.Snapshot())
}

func (a *API) engine(c *gin.Context) (*attempt.Engine, bool) {
	id := c.Param("id")
	eng, ok := a.registry.Get(id)
	if !ok {
		writeError(c, errors.New(errors.CodeNotFound, errors.WithMessagef("attempt %s not found", id)))
		return nil, false
	}
	return eng, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.JSON(e.HTTPStatusCode(), errorResponse{
		Code:    e.Kind(),
		Message: e.Message,
	})
}
