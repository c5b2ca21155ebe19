package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	apperr "github.com/yungbote/schoolbot-backend/internal/pkg/errors"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

func testLogger(t interface{ Fatalf(string, ...any) }) *logger.Logger {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}

// fakeOpenAI scripts the provider without any HTTP.
type fakeOpenAI struct {
	mu sync.Mutex

	embedFn    func(inputs []string) ([][]float32, error)
	chatFn     func(messages []ChatMessage) (string, error)
	jsonFn     func(system, user string) (map[string]any, error)
	embedCalls int
	chatCalls  int
}

func (f *fakeOpenAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	f.mu.Unlock()
	if f.embedFn != nil {
		return f.embedFn(inputs)
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeOpenAI) ChatComplete(ctx context.Context, messages []ChatMessage, temperature float64, maxTokens int) (string, error) {
	f.mu.Lock()
	f.chatCalls++
	f.mu.Unlock()
	if f.chatFn != nil {
		return f.chatFn(messages)
	}
	return "回答です。", nil
}

func (f *fakeOpenAI) GenerateJSON(ctx context.Context, system string, user string) (map[string]any, error) {
	if f.jsonFn != nil {
		return f.jsonFn(system, user)
	}
	return map[string]any{
		"satisfaction_score": 0.8,
		"is_satisfied":       true,
		"reason":             "ok",
		"needs_human_review": false,
	}, nil
}

// fakeConversationRepo keeps conversations in a map.
type fakeConversationRepo struct {
	mu    sync.Mutex
	convs map[string]*types.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{convs: make(map[string]*types.Conversation)}
}

func (r *fakeConversationRepo) Create(ctx context.Context, tx *gorm.DB, conv *types.Conversation) (*types.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.convs[conv.ID]; exists {
		return nil, fmt.Errorf("duplicate conversation %s", conv.ID)
	}
	cp := *conv
	r.convs[conv.ID] = &cp
	return conv, nil
}

func (r *fakeConversationRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, apperr.ErrConversationNotFound
	}
	cp := *conv
	return &cp, nil
}

func (r *fakeConversationRepo) GetLatestForUserCourse(ctx context.Context, tx *gorm.DB, userID, courseID string) (*types.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *types.Conversation
	for _, conv := range r.convs {
		if conv.UserID != userID || conv.CourseID != courseID {
			continue
		}
		if latest == nil || conv.UpdatedAt.After(latest.UpdatedAt) {
			latest = conv
		}
	}
	if latest == nil {
		return nil, apperr.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeConversationRepo) TouchUpdatedAt(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return apperr.ErrNotFound
	}
	conv.UpdatedAt = at
	return nil
}

// fakeMessageRepo keeps messages per conversation in append order.
type fakeMessageRepo struct {
	mu   sync.Mutex
	msgs map[string][]*types.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{msgs: make(map[string][]*types.Message)}
}

func (r *fakeMessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *msg
	r.msgs[msg.ConversationID] = append(r.msgs[msg.ConversationID], &cp)
	return msg, nil
}

func (r *fakeMessageRepo) GetLastByConversation(ctx context.Context, tx *gorm.DB, conversationID string, limit int) ([]*types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.msgs[conversationID]
	out := make([]*types.Message, len(all))
	copy(out, all)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// fakeDocumentRepo records the last replaced collection and serves chunks.
type fakeDocumentRepo struct {
	mu          sync.Mutex
	collections map[string]*types.DocumentCollection // course_id+"/"+source_id
	chunks      map[string][]*types.DocumentChunk    // course_id
	replaceErr  error
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{
		collections: make(map[string]*types.DocumentCollection),
		chunks:      make(map[string][]*types.DocumentChunk),
	}
}

func (r *fakeDocumentRepo) ReplaceCollection(ctx context.Context, tx *gorm.DB, collection *types.DocumentCollection, chunks []*types.DocumentChunk) error {
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := collection.CourseID + "/" + collection.SourceID
	r.collections[key] = collection

	var kept []*types.DocumentChunk
	for _, c := range r.chunks[collection.CourseID] {
		if c.SourceID != collection.SourceID {
			kept = append(kept, c)
		}
	}
	r.chunks[collection.CourseID] = append(kept, chunks...)
	return nil
}

func (r *fakeDocumentRepo) GetCollection(ctx context.Context, tx *gorm.DB, courseID, sourceID string) (*types.DocumentCollection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	col, ok := r.collections[courseID+"/"+sourceID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return col, nil
}

func (r *fakeDocumentRepo) GetCollectionsByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*types.DocumentCollection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.DocumentCollection
	for _, col := range r.collections {
		if col.CourseID == courseID {
			out = append(out, col)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) GetChunksByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*types.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.DocumentChunk, len(r.chunks[courseID]))
	copy(out, r.chunks[courseID])
	return out, nil
}

// fakeInteractionLogRepo records created entries.
type fakeInteractionLogRepo struct {
	mu      sync.Mutex
	entries []*types.InteractionLog
}

func (r *fakeInteractionLogRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.InteractionLog) (*types.InteractionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entry
	r.entries = append(r.entries, &cp)
	return entry, nil
}

func (r *fakeInteractionLogRepo) GetByCourse(ctx context.Context, tx *gorm.DB, courseID string, limit int) ([]*types.InteractionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.InteractionLog
	for i := len(r.entries) - 1; i >= 0; i-- {
		if courseID == "" || r.entries[i].CourseID == courseID {
			out = append(out, r.entries[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// fakeCourseRepo serves a fixed set of courses.
type fakeCourseRepo struct {
	mu      sync.Mutex
	courses map[string]*types.Course
}

func newFakeCourseRepo(courses ...*types.Course) *fakeCourseRepo {
	r := &fakeCourseRepo{courses: make(map[string]*types.Course)}
	for _, c := range courses {
		r.courses[c.ID] = c
	}
	return r
}

func (r *fakeCourseRepo) Create(ctx context.Context, tx *gorm.DB, course *types.Course) (*types.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.courses[course.ID]; exists {
		return nil, fmt.Errorf("duplicate course %s", course.ID)
	}
	cp := *course
	r.courses[course.ID] = &cp
	return course, nil
}

func (r *fakeCourseRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	course, ok := r.courses[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *course
	return &cp, nil
}

func (r *fakeCourseRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Course
	for _, c := range r.courses {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCourseRepo) UpdatePlatform(ctx context.Context, tx *gorm.DB, id, platform string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	course, ok := r.courses[id]
	if !ok {
		return apperr.ErrNotFound
	}
	course.Platform = platform
	return nil
}

func (r *fakeCourseRepo) UpdateManagerSlackID(ctx context.Context, tx *gorm.DB, id, managerSlackID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	course, ok := r.courses[id]
	if !ok {
		return apperr.ErrNotFound
	}
	course.ManagerSlackID = managerSlackID
	return nil
}
