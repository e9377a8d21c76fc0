package attempt

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Registry tracks live attempt engines by attempt ID. Engines stay in-process
// because they own timers and subscriber channels; Redis, when configured,
// carries best-effort liveness markers so operators can see active attempts
// across instances.
type Registry struct {
	client redis.UniversalClient // nil disables the liveness markers
	prefix string
	ttl    time.Duration

	mu      sync.RWMutex
	engines map[string]*Engine
}

func NewRegistry(client redis.UniversalClient, prefix string, ttl time.Duration) *Registry {
	return &Registry{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		engines: make(map[string]*Engine),
	}
}

// Add registers an engine under its attempt ID.
func (r *Registry) Add(e *Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.engines[e.ID()] = e
	if r.client != nil {
		_ = r.client.Set(context.Background(), r.key(e.ID()), e.QuizID(), r.ttl).Err()
	}
}

// Get returns the engine for an attempt ID.
func (r *Registry) Get(id string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.engines[id]
	return e, ok
}

// Remove tears the engine down and forgets it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.engines[id]
	if ok {
		delete(r.engines, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	e.Close()
	if r.client != nil {
		_ = r.client.Del(context.Background(), r.key(id)).Err()
	}
}

// Len reports the number of live attempt sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

// CloseAll tears down every live engine; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.engines {
		e.Close()
		delete(r.engines, id)
		if r.client != nil {
			_ = r.client.Del(context.Background(), r.key(id)).Err()
		}
	}
}

func (r *Registry) key(id string) string {
	return r.prefix + ":attempt:" + id
}
