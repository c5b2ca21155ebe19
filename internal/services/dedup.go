package services

import (
	"context"
	"sync"

	"github.com/yungbote/schoolbot-backend/internal/logger"
)

// DefaultMaxProcessedPerCourse bounds the per-course processed-message set.
const DefaultMaxProcessedPerCourse = 1000

// DedupKey identifies one logical inbound chat message regardless of whether
// the webhook or the polling loop delivered it. It lives only in the
// coordinator's processed set, never in durable storage.
type DedupKey struct {
	CourseID  string
	Room      string
	MessageID string
}

func (k DedupKey) String() string {
	return k.CourseID + ":" + k.Room + ":" + k.MessageID
}

// DedupBackend is an optional shared store (e.g. Redis) consulted before the
// in-process set, so webhook and polling paths can run in separate processes.
type DedupBackend interface {
	TestAndInsert(ctx context.Context, key string) (bool, error)
}

// MessageDedupService is the single gate both ingestion paths must pass
// before the orchestrator runs: at most one caller ever sees true for a
// given key.
type MessageDedupService interface {
	ShouldProcess(ctx context.Context, key DedupKey) bool
}

type messageDedupService struct {
	log     *logger.Logger
	backend DedupBackend
	memory  *memoryDedupStore
}

// NewMessageDedupService builds the coordinator. backend may be nil; the
// bounded in-memory set is always kept as the local source of truth so a
// backend outage can never cause a double response within this process.
func NewMessageDedupService(baseLog *logger.Logger, backend DedupBackend, maxPerCourse int) MessageDedupService {
	serviceLog := baseLog.With("service", "MessageDedupService")
	if maxPerCourse <= 0 {
		maxPerCourse = DefaultMaxProcessedPerCourse
	}
	return &messageDedupService{
		log:     serviceLog,
		backend: backend,
		memory:  newMemoryDedupStore(maxPerCourse),
	}
}

func (s *messageDedupService) ShouldProcess(ctx context.Context, key DedupKey) bool {
	// The local set decides first: if this process already handled the
	// message the answer is no, whatever the shared backend says.
	fresh := s.memory.testAndInsert(key)
	if !fresh {
		return false
	}
	if s.backend != nil {
		ok, err := s.backend.TestAndInsert(ctx, key.String())
		if err != nil {
			s.log.Warn("Dedup backend unavailable, falling back to in-process set", "error", err)
			return true
		}
		if !ok {
			s.log.Debug("Duplicate message dropped via shared backend", "key", key.String())
			return false
		}
	}
	return true
}

// memoryDedupStore keeps one insertion-ordered set per course. When a course
// set exceeds its cap, the oldest half is evicted. That is deliberately FIFO
// on insertion order rather than LRU: a processed message id is never looked
// up again on the hot path, so recency tracking would buy nothing.
type memoryDedupStore struct {
	mu           sync.Mutex
	maxPerCourse int
	courses      map[string]*courseDedupSet
}

type courseDedupSet struct {
	seen  map[string]struct{}
	order []string
}

func newMemoryDedupStore(maxPerCourse int) *memoryDedupStore {
	return &memoryDedupStore{
		maxPerCourse: maxPerCourse,
		courses:      make(map[string]*courseDedupSet),
	}
}

func (m *memoryDedupStore) testAndInsert(key DedupKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.courses[key.CourseID]
	if !ok {
		set = &courseDedupSet{seen: make(map[string]struct{})}
		m.courses[key.CourseID] = set
	}

	id := key.Room + "_" + key.MessageID
	if _, dup := set.seen[id]; dup {
		return false
	}
	set.seen[id] = struct{}{}
	set.order = append(set.order, id)

	if len(set.order) > m.maxPerCourse {
		half := len(set.order) / 2
		for _, old := range set.order[:half] {
			delete(set.seen, old)
		}
		set.order = append([]string(nil), set.order[half:]...)
	}
	return true
}
