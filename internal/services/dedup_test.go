package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestShouldProcessOncePerKey(t *testing.T) {
	svc := NewMessageDedupService(testLogger(t), nil, 0)
	key := DedupKey{CourseID: "course1", Room: "42", MessageID: "m1"}

	if !svc.ShouldProcess(context.Background(), key) {
		t.Fatalf("first call must be allowed")
	}
	if svc.ShouldProcess(context.Background(), key) {
		t.Fatalf("second call must be rejected")
	}
}

func TestShouldProcessSeparatesScopes(t *testing.T) {
	svc := NewMessageDedupService(testLogger(t), nil, 0)

	keys := []DedupKey{
		{CourseID: "course1", Room: "42", MessageID: "m1"},
		{CourseID: "course2", Room: "42", MessageID: "m1"},
		{CourseID: "course1", Room: "43", MessageID: "m1"},
		{CourseID: "course1", Room: "42", MessageID: "m2"},
	}
	for _, key := range keys {
		if !svc.ShouldProcess(context.Background(), key) {
			t.Fatalf("key %v wrongly rejected", key)
		}
	}
}

func TestShouldProcessEvictsOldestHalf(t *testing.T) {
	max := 10
	svc := NewMessageDedupService(testLogger(t), nil, max)

	for i := 0; i <= max; i++ {
		key := DedupKey{CourseID: "course1", Room: "42", MessageID: fmt.Sprintf("m%d", i)}
		if !svc.ShouldProcess(context.Background(), key) {
			t.Fatalf("fresh key m%d wrongly rejected", i)
		}
	}

	// The overflow insert dropped the oldest half, so early ids are fresh
	// again while recent ones stay rejected.
	early := DedupKey{CourseID: "course1", Room: "42", MessageID: "m0"}
	if !svc.ShouldProcess(context.Background(), early) {
		t.Fatalf("evicted key m0 should be processable again")
	}
	recent := DedupKey{CourseID: "course1", Room: "42", MessageID: fmt.Sprintf("m%d", max)}
	if svc.ShouldProcess(context.Background(), recent) {
		t.Fatalf("recent key m%d must still be rejected", max)
	}
}

func TestShouldProcessConcurrent(t *testing.T) {
	svc := NewMessageDedupService(testLogger(t), nil, 0)
	key := DedupKey{CourseID: "course1", Room: "42", MessageID: "m1"}

	const workers = 32
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.ShouldProcess(context.Background(), key)
		}()
	}
	wg.Wait()
	close(results)

	allowed := 0
	for ok := range results {
		if ok {
			allowed++
		}
	}
	if allowed != 1 {
		t.Fatalf("exactly one caller must win, got %d", allowed)
	}
}

type scriptedBackend struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (b *scriptedBackend) TestAndInsert(ctx context.Context, key string) (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen == nil {
		b.seen = make(map[string]bool)
	}
	if b.seen[key] {
		return false, nil
	}
	b.seen[key] = true
	return true, nil
}

func TestShouldProcessConsultsBackend(t *testing.T) {
	backend := &scriptedBackend{}
	svc := NewMessageDedupService(testLogger(t), backend, 0)

	key := DedupKey{CourseID: "course1", Room: "42", MessageID: "m1"}
	// Another process already claimed the key.
	if _, err := backend.TestAndInsert(context.Background(), key.String()); err != nil {
		t.Fatalf("seed backend: %v", err)
	}

	if svc.ShouldProcess(context.Background(), key) {
		t.Fatalf("backend rejection must win over the fresh local set")
	}
}

func TestShouldProcessBackendOutageFallsBackToLocal(t *testing.T) {
	backend := &scriptedBackend{err: errors.New("redis down")}
	svc := NewMessageDedupService(testLogger(t), backend, 0)

	key := DedupKey{CourseID: "course1", Room: "42", MessageID: "m1"}
	if !svc.ShouldProcess(context.Background(), key) {
		t.Fatalf("backend outage must not block processing")
	}
	if svc.ShouldProcess(context.Background(), key) {
		t.Fatalf("local set must still reject the duplicate")
	}
}

func TestDedupKeyString(t *testing.T) {
	key := DedupKey{CourseID: "c", Room: "r", MessageID: "m"}
	if key.String() != "c:r:m" {
		t.Fatalf("String() = %q", key.String())
	}
}
