package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/gatesmart/quizgate/internal/api"
	"github.com/gatesmart/quizgate/internal/attempt"
	"github.com/gatesmart/quizgate/internal/domain"
	"github.com/gatesmart/quizgate/internal/event"
	"github.com/gatesmart/quizgate/internal/examapi"
	"github.com/gatesmart/quizgate/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Upstream struct {
		BaseURL        string
		TimeoutSeconds int
	}

	Redis struct {
		// Addrs empty runs without Redis: no liveness markers, no pub/sub.
		Addrs  []string
		Pass   string
		Prefix string

		AttemptTTLMinutes int
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis redis.UniversalClient
	}

	registry *attempt.Registry
	upstream *examapi.Factory

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initServices(); err != nil {
		return nil, fmt.Errorf("server: init services: %w", err)
	}

	s.initAPI()
	s.initMetrics()
	return s, nil
}

func (s *Server) initInfra() error {
	if len(s.c.Redis.Addrs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initServices() error {
	ttl := time.Duration(s.c.Redis.AttemptTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 3 * time.Hour
	}
	s.registry = attempt.NewRegistry(s.infra.redis, s.c.Redis.Prefix, ttl)

	timeout := time.Duration(s.c.Upstream.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	upstream, err := examapi.NewFactory(s.c.Upstream.BaseURL, &http.Client{Timeout: timeout})
	if err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	s.upstream = upstream
	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	var r api.Redis
	if s.infra.redis != nil {
		r = s.infra.redis
	}

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Registry:     s.registry,
		Sessions:     s.upstream,
		Redis:        r,
		PubsubPrefix: s.c.Redis.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) initMetrics() {
	s.eb.Subscribe(domain.EventNameAttemptStarted, func(ctx context.Context, e event.Event) error {
		telemetry.AttemptsStarted.Inc()
		return nil
	})
	s.eb.Subscribe(domain.EventNameAttemptSubmitted, func(ctx context.Context, e event.Event) error {
		trigger := "manual"
		if e.(domain.EventAttemptSubmitted).AutoSubmitted {
			trigger = "timer"
		}
		telemetry.AttemptsSubmitted.WithLabelValues(trigger).Inc()
		return nil
	})
	s.eb.Subscribe(domain.EventNameAttemptLoadFailed, func(ctx context.Context, e event.Event) error {
		telemetry.AttemptLoadFailures.WithLabelValues(e.(domain.EventAttemptLoadFailed).Kind).Inc()
		return nil
	})
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.registry.CloseAll()
	s.eb.Stop()

	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
