package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"livequiz-service/internal/domain"
)

type stubLoader struct {
	mu    sync.Mutex
	calls int
	sets  map[string][]domain.Question
}

func (l *stubLoader) LoadQuestions(_ context.Context, sessionCode string) ([]domain.Question, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if questions, ok := l.sets[sessionCode]; ok {
		return questions, nil
	}
	return nil, domain.ErrQuestionNotFound
}

func (l *stubLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func questionSet() []domain.Question {
	return []domain.Question{
		{Index: 0, Text: "q0", Options: map[string]string{"A": "a", "B": "b"}, Correct: "A"},
		{Index: 1, Text: "q1", Options: map[string]string{"A": "a", "B": "b"}, Correct: "B"},
	}
}

func newTestRepository(t *testing.T, loader *stubLoader, ttl time.Duration) (*QuestionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQuestionRepository(client, loader, ttl), mr
}

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	loader := &stubLoader{sets: map[string][]domain.Question{"quiz-1": questionSet()}}
	repo, mr := newTestRepository(t, loader, time.Minute)
	ctx := context.Background()

	questions, err := repo.Questions(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 2 || questions[1].Correct != "B" {
		t.Fatalf("unexpected questions: %+v", questions)
	}
	if !mr.Exists("quiz:quiz-1:questions") {
		t.Fatalf("expected cached blob in redis")
	}

	// Subsequent reads come from the cache.
	if _, err := repo.Questions(ctx, "quiz-1"); err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if got := loader.callCount(); got != 1 {
		t.Fatalf("expected a single loader hit, got %d", got)
	}
}

func TestQuestionRepositoryReloadsAfterExpiry(t *testing.T) {
	loader := &stubLoader{sets: map[string][]domain.Question{"quiz-1": questionSet()}}
	repo, mr := newTestRepository(t, loader, time.Minute)
	ctx := context.Background()

	if _, err := repo.Questions(ctx, "quiz-1"); err != nil {
		t.Fatalf("questions: %v", err)
	}
	// Jitter caps the TTL at 110% of the base.
	mr.FastForward(2 * time.Minute)

	if _, err := repo.Questions(ctx, "quiz-1"); err != nil {
		t.Fatalf("questions after expiry: %v", err)
	}
	if got := loader.callCount(); got != 2 {
		t.Fatalf("expected reload after expiry, got %d hits", got)
	}
}

func TestQuestionRepositoryPropagatesLoaderError(t *testing.T) {
	loader := &stubLoader{sets: map[string][]domain.Question{}}
	repo, mr := newTestRepository(t, loader, time.Minute)

	if _, err := repo.Questions(context.Background(), "nope"); err != domain.ErrQuestionNotFound {
		t.Fatalf("expected loader error, got %v", err)
	}
	if mr.Exists("quiz:nope:questions") {
		t.Fatalf("errors must not be cached")
	}
}

func TestQuestionRepositorySurvivesCorruptCache(t *testing.T) {
	loader := &stubLoader{sets: map[string][]domain.Question{"quiz-1": questionSet()}}
	repo, mr := newTestRepository(t, loader, time.Minute)

	mr.Set("quiz:quiz-1:questions", "not json")

	questions, err := repo.Questions(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected loader fallback, got %+v", questions)
	}
	if got := loader.callCount(); got != 1 {
		t.Fatalf("expected one loader hit on corrupt cache, got %d", got)
	}
}
