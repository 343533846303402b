package api

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"techroute/db"
	"techroute/internal/config"
	"techroute/internal/store"
)

type Server struct {
	Store  store.Store
	Broker EventBroker
	Config config.Config
	Logger *log.Logger

	// locks serializes read-modify-write cycles on one solution; an entry
	// lives while someone holds or waits for it
	locksMu sync.Mutex
	locks   map[string]*solutionLock
}

type solutionLock struct {
	mu   sync.Mutex
	refs int
}

// NewServer creates a Server. If no database URL is configured, uses the
// in-memory store; with a Redis URL events fan out through Redis.
func NewServer(cfg config.Config) (*Server, error) {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	var s store.Store
	if strings.TrimSpace(cfg.Database.URL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Database.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := sp.Migrate(ctx, db.Migrations, "migrations")
			cancel()
			if err != nil {
				return nil, err
			}
		}
		s = sp
	}
	var broker EventBroker = NewBroker()
	if cfg.Redis.URL != "" {
		if rb, err := NewRedisBroker(cfg.Redis.URL); err == nil {
			broker = rb
		} else {
			logger.Printf("level=warn op=broker.redis err=%v fallback=memory", err)
		}
	}
	return &Server{Store: s, Broker: broker, Config: cfg, Logger: logger}, nil
}

// lock takes the per-solution mutex and returns its unlock. The last
// unlock drops the entry.
func (s *Server) lock(solutionID string) func() {
	s.locksMu.Lock()
	if s.locks == nil {
		s.locks = map[string]*solutionLock{}
	}
	l := s.locks[solutionID]
	if l == nil {
		l = &solutionLock{}
		s.locks[solutionID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, solutionID)
		}
		s.locksMu.Unlock()
	}
}
