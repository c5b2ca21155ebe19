package line

import (
	"sync"

	"github.com/yungbote/schoolbot-backend/internal/logger"
)

// Registry caches one Client per course, constructed once at startup and
// injected wherever LINE delivery is needed.
type Registry struct {
	log *logger.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		log:     log.With("client", "LineRegistry"),
		clients: make(map[string]*Client),
	}
}

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
