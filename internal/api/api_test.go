package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatesmart/quizgate/internal/api"
	"github.com/gatesmart/quizgate/internal/attempt"
	"github.com/gatesmart/quizgate/internal/event"
	"github.com/gatesmart/quizgate/internal/examapi"
)

const (
	waitFor  = 2 * time.Second
	interval = 10 * time.Millisecond
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestCreateAttemptRequiresBearer(t *testing.T) {
	env := newEnv(t)

	w := env.do(http.MethodPost, "/api/attempts", `{"quiz_id":"quiz-1"}`, "")

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", decodeError(t, w).Code)
}

func TestCreateAttemptValidation(t *testing.T) {
	env := newEnv(t)

	tests := map[string]string{
		"empty body":      ``,
		"missing quiz id": `{}`,
		"not json":        `quiz-1`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/attempts", body, "tok")
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid", decodeError(t, w).Code)
		})
	}
}

func TestAttemptFlow(t *testing.T) {
	env := newEnv(t)

	id := env.createAttempt(t)
	env.waitActive(t, id)

	// Answer Q1 correctly, look at Q2, come back.
	w := env.do(http.MethodPost, "/api/attempts/"+id+"/answers", `{"question":0,"option":0}`, "tok")
	require.Equal(t, http.StatusOK, w.Code)
	s := decodeSnapshot(t, w)
	assert.True(t, s.Palette[0].Answered)
	assert.Equal(t, 0, s.Palette[0].Selected)

	w = env.do(http.MethodPost, "/api/attempts/"+id+"/navigate", `{"action":"next"}`, "tok")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeSnapshot(t, w).CurrentIndex)

	w = env.do(http.MethodPost, "/api/attempts/"+id+"/navigate", `{"action":"goto","index":0}`, "tok")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decodeSnapshot(t, w).CurrentIndex)

	w = env.do(http.MethodPost, "/api/attempts/"+id+"/submit", "", "tok")
	require.Equal(t, http.StatusOK, w.Code)
	s = decodeSnapshot(t, w)
	assert.Equal(t, attempt.StateSubmitted, s.State)
	require.NotNil(t, s.Result)
	assert.Equal(t, "2", s.Result.Score)
	assert.Equal(t, 40.0, s.Result.Percentage)

	require.Eventually(t, func() bool {
		return len(env.upstream.attemptPosts()) == 2
	}, waitFor, interval, "in-progress then completed should be recorded upstream")

	var statuses []string
	var completed *attemptPost
	for _, p := range env.upstream.attemptPosts() {
		statuses = append(statuses, p.Status)
		if p.Status == "completed" {
			p := p
			completed = &p
		}
	}
	assert.ElementsMatch(t, []string{"in-progress", "completed"}, statuses)
	require.NotNil(t, completed)
	require.NotNil(t, completed.Score)
	assert.Equal(t, 40.0, *completed.Score)
	require.NotNil(t, completed.CompletedAt)
}

func TestNavigateValidation(t *testing.T) {
	env := newEnv(t)
	id := env.createAttempt(t)
	env.waitActive(t, id)

	w := env.do(http.MethodPost, "/api/attempts/"+id+"/navigate", `{"action":"sideways"}`, "tok")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid", decodeError(t, w).Code)

	w = env.do(http.MethodPost, "/api/attempts/"+id+"/navigate", `{"action":"goto","index":99}`, "tok")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/attempts/"+id+"/answers", `{"question":0,"option":99}`, "tok")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownAttempt(t *testing.T) {
	env := newEnv(t)

	for _, req := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/attempts/nope", ""},
		{http.MethodDelete, "/api/attempts/nope", ""},
		{http.MethodPost, "/api/attempts/nope/answers", `{"question":0,"option":0}`},
		{http.MethodPost, "/api/attempts/nope/submit", ""},
	} {
		w := env.do(req.method, req.path, req.body, "tok")
		require.Equal(t, http.StatusNotFound, w.Code, "%s %s", req.method, req.path)
		assert.Equal(t, "not-found", decodeError(t, w).Code)
	}
}

func TestDeleteAttempt(t *testing.T) {
	env := newEnv(t)
	id := env.createAttempt(t)

	w := env.do(http.MethodDelete, "/api/attempts/"+id, "", "tok")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/api/attempts/"+id, "", "tok")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitFailureAllowsRetry(t *testing.T) {
	env := newEnv(t)
	id := env.createAttempt(t)
	env.waitActive(t, id)

	env.upstream.setFailAttempts(true)
	w := env.do(http.MethodPost, "/api/attempts/"+id+"/submit", "", "tok")
	require.Equal(t, http.StatusBadGateway, w.Code)
	s := decodeSnapshot(t, w)
	assert.Equal(t, attempt.StateSubmitting, s.State)
	assert.NotEmpty(t, s.SubmitError)
	require.NotNil(t, s.Result, "the failed send still carries the local result")

	env.upstream.setFailAttempts(false)
	w = env.do(http.MethodPost, "/api/attempts/"+id+"/submit", "", "tok")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, attempt.StateSubmitted, decodeSnapshot(t, w).State)
}

func TestWatchAttemptStreamsSnapshots(t *testing.T) {
	env := newEnv(t)
	id := env.createAttempt(t)
	env.waitActive(t, id)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/attempts/" + id + "/watch"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var first attempt.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, id, first.AttemptID)

	w := env.do(http.MethodPost, "/api/attempts/"+id+"/answers", `{"question":1,"option":1}`, "tok")
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		var s attempt.Snapshot
		require.NoError(t, conn.ReadJSON(&s))
		if len(s.Palette) == 2 && s.Palette[1].Answered {
			break
		}
	}
}

func TestSubmitPublishesNotification(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = client.Close() })

	env := newEnvWithRedis(t, client)
	id := env.createAttempt(t)
	env.waitActive(t, id)

	sub := client.Subscribe(context.Background(), "quizgate:attempt:"+id)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	w := env.do(http.MethodPost, "/api/attempts/"+id+"/submit", "", "tok")
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case msg := <-sub.Channel():
		var n api.Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
		assert.Equal(t, "attempt.submitted", n.Event)
	case <-time.After(waitFor):
		t.Fatal("no notification published")
	}
}

// --- test environment ---

type env struct {
	router   *gin.Engine
	upstream *upstreamStub
	registry *attempt.Registry
}

func newEnv(t *testing.T) *env {
	return newEnvWithRedis(t, nil)
}

func newEnvWithRedis(t *testing.T, client redis.UniversalClient) *env {
	t.Helper()

	up := newUpstreamStub()
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	factory, err := examapi.NewFactory(srv.URL, srv.Client())
	require.NoError(t, err)

	eb := event.NewBus()
	registry := attempt.NewRegistry(client, "quizgate", time.Hour)
	t.Cleanup(registry.CloseAll)

	router := gin.New()

	var r api.Redis
	if client != nil {
		r = client
	}
	api.New(api.Config{
		Router:       router,
		EventBus:     eb,
		Registry:     registry,
		Sessions:     factory,
		Redis:        r,
		PubsubPrefix: "quizgate",
	})

	return &env{router: router, upstream: up, registry: registry}
}

func (e *env) do(method, path, body, token string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func (e *env) createAttempt(t *testing.T) string {
	t.Helper()

	w := e.do(http.MethodPost, "/api/attempts", `{"quiz_id":"quiz-1"}`, "tok")
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		AttemptID string           `json:"attempt_id"`
		Snapshot  attempt.Snapshot `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AttemptID)
	return resp.AttemptID
}

func (e *env) waitActive(t *testing.T, id string) {
	t.Helper()

	require.Eventually(t, func() bool {
		w := e.do(http.MethodGet, "/api/attempts/"+id, "", "tok")
		return w.Code == http.StatusOK && decodeSnapshot(t, w).State == attempt.StateActive
	}, waitFor, interval)
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) attempt.Snapshot {
	t.Helper()

	var s attempt.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	return s
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apiError {
	t.Helper()

	var e apiError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

// upstreamStub plays the GateSmart exam API: it serves one quiz and records
// attempt status posts.
type upstreamStub struct {
	mu           sync.Mutex
	failAttempts bool
	posts        []attemptPost
}

type attemptPost struct {
	Status      string   `json:"status"`
	Score       *float64 `json:"score"`
	CompletedAt *string  `json:"completed_at"`
}

func newUpstreamStub() *upstreamStub {
	return &upstreamStub{}
}

func (u *upstreamStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/quizzes/quiz-1":
		fmt.Fprint(w, `{
			"id": "quiz-1",
			"title": "Signals and Systems",
			"time_limit": 30,
			"status": "not-started",
			"questions": [
				{"question_text": "q1", "options": ["a", "b", "c"], "correct_answer": 0, "marks": 2, "negative_marks": -0.5},
				{"question_text": "q2", "options": ["a", "b"], "correct_answer": 1, "marks": 3, "negative_marks": 0}
			]
		}`)

	case r.Method == http.MethodPost && r.URL.Path == "/api/quizzes/quiz-1/attempt":
		u.mu.Lock()
		defer u.mu.Unlock()
		if u.failAttempts {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var p attemptPost
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		u.posts = append(u.posts, p)
		w.WriteHeader(http.StatusCreated)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (u *upstreamStub) setFailAttempts(fail bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failAttempts = fail
}

func (u *upstreamStub) attemptPosts() []attemptPost {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]attemptPost(nil), u.posts...)
}
