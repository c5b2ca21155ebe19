package chatwork

import (
	"sync"

	"github.com/yungbote/schoolbot-backend/internal/logger"
)

// Registry caches one Client per course. It is constructed once at startup
// and injected into both the webhook handler and the polling loop, so client
// state never lives in package globals.
type Registry struct {
	log *logger.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		log:     log.With("client", "ChatworkRegistry"),
		clients: make(map[string]*Client),
	}
}

// Get returns the cached client for the course, building it on first use.
// A course without a configured token yields an error every time; the caller
// skips that course rather than aborting its loop.
func (r *Registry) Get(courseID string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[courseID]; ok {
		return c, nil
	}
	c, err := NewClient(r.log, courseID)
	if err != nil {
		return nil, err
	}
	r.clients[courseID] = c
	return c, nil
}
