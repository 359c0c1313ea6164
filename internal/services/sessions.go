package services

import (
	"log/slog"
	"time"

	"github.com/MegaGrindStone/rag-web-ui/internal/session"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ControllerFactory creates the controller of a new session identified by id.
type ControllerFactory func(id string) *session.Controller

// Sessions keeps one session controller per browser. Sessions live in memory only and expire after
// being idle for the configured TTL.
type Sessions struct {
	cache   *cache.Cache
	factory ControllerFactory

	logger *slog.Logger
}

// NewSessions creates a session registry whose entries expire after ttl without access. Expired entries
// are purged every ttl/6.
func NewSessions(ttl time.Duration, factory ControllerFactory, logger *slog.Logger) Sessions {
	c := cache.New(ttl, ttl/6)
	l := logger.With(slog.String("module", "sessions"))
	c.OnEvicted(func(id string, v any) {
		if ctrl, ok := v.(*session.Controller); ok {
			ctrl.Cancel()
		}
		l.Debug("Session evicted", slog.String("sessionID", id))
	})
	return Sessions{
		cache:   c,
		factory: factory,
		logger:  l,
	}
}

// Get returns the controller of session id, refreshing its expiry. The boolean is false if the
// session doesn't exist or has expired.
func (s Sessions) Get(id string) (*session.Controller, bool) {
	if id == "" {
		return nil, false
	}
	v, found := s.cache.Get(id)
	if !found {
		return nil, false
	}
	ctrl := v.(*session.Controller)
	s.cache.Set(id, ctrl, cache.DefaultExpiration)
	return ctrl, true
}

// Create starts a new session and returns its controller.
func (s Sessions) Create() *session.Controller {
	id := uuid.New().String()
	ctrl := s.factory(id)
	s.cache.Set(id, ctrl, cache.DefaultExpiration)
	s.logger.Debug("Session created", slog.String("sessionID", id))
	return ctrl
}

// GetOrCreate returns the controller of session id, creating a new session if it doesn't exist. The
// boolean is true if a new session was created.
func (s Sessions) GetOrCreate(id string) (*session.Controller, bool) {
	if ctrl, ok := s.Get(id); ok {
		return ctrl, false
	}
	return s.Create(), true
}

// Count returns the number of live sessions.
func (s Sessions) Count() int {
	return s.cache.ItemCount()
}
