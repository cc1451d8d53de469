package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/store"
)

func TestSubmitCreditsCorrectAnswer(t *testing.T) {
	service, docs, _ := newTestService(t)
	ctx := context.Background()

	player, _ := service.Join(ctx, "quiz-1", "Alice")
	if err := service.Start(ctx, "quiz-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := service.Submit(ctx, "quiz-1", player.ID, 0, "B")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.AlreadySubmitted {
		t.Fatalf("unexpected result: %+v", result)
	}

	snap, _ := docs.Get(ctx, store.PlayerPath("quiz-1", player.ID))
	if got := snap.Int("score"); got != 1 {
		t.Fatalf("expected score 1, got %d", got)
	}
}

func TestSubmitWrongAnswerNoCredit(t *testing.T) {
	service, docs, _ := newTestService(t)
	ctx := context.Background()

	player, _ := service.Join(ctx, "quiz-1", "Alice")
	if err := service.Start(ctx, "quiz-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := service.Submit(ctx, "quiz-1", player.ID, 0, "A")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Correct {
		t.Fatalf("expected wrong answer")
	}

	snap, _ := docs.Get(ctx, store.PlayerPath("quiz-1", player.ID))
	if got := snap.Int("score"); got != 0 {
		t.Fatalf("expected score 0, got %d", got)
	}
	aSnap, _ := docs.Get(ctx, store.AnswerPath("quiz-1", 0, player.ID))
	if !aSnap.Exists || aSnap.Bool("isCorrect") {
		t.Fatalf("expected recorded incorrect answer, got %+v", aSnap)
	}
}

func TestDoubleSubmitCreditsOnce(t *testing.T) {
	service, docs, _ := newTestService(t)
	ctx := context.Background()

	player, _ := service.Join(ctx, "quiz-1", "Alice")
	if err := service.Start(ctx, "quiz-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := service.Submit(ctx, "quiz-1", player.ID, 0, "B")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := service.Submit(ctx, "quiz-1", player.ID, 0, "B")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.AlreadySubmitted {
		t.Fatalf("first submit flagged as duplicate")
	}
	if !second.AlreadySubmitted {
		t.Fatalf("duplicate submit not detected")
	}

	// Exactly one answer document and exactly one credit, no call-site
	// dedup required.
	answers, _ := docs.ListAll(ctx, store.AnswersCollection("quiz-1"))
	if len(answers) != 1 {
		t.Fatalf("expected 1 answer doc, got %d", len(answers))
	}
	snap, _ := docs.Get(ctx, store.PlayerPath("quiz-1", player.ID))
	if got := snap.Int("score"); got != 1 {
		t.Fatalf("expected score 1 after retry, got %d", got)
	}
}

func TestRetryWithDifferentOptionKeepsFirstAnswer(t *testing.T) {
	service, docs, _ := newTestService(t)
	ctx := context.Background()

	player, _ := service.Join(ctx, "quiz-1", "Alice")
	if err := service.Start(ctx, "quiz-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := service.Submit(ctx, "quiz-1", player.ID, 0, "A"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := service.Submit(ctx, "quiz-1", player.ID, 0, "B"); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	aSnap, _ := docs.Get(ctx, store.AnswerPath("quiz-1", 0, player.ID))
	if aSnap.String("selected") != "A" {
		t.Fatalf("answer mutated after creation: %+v", aSnap.Fields)
	}
	pSnap, _ := docs.Get(ctx, store.PlayerPath("quiz-1", player.ID))
	if got := pSnap.Int("score"); got != 0 {
		t.Fatalf("late correct retry must not credit, got score %d", got)
	}
}

func TestSubmitRejectedWhileLocked(t *testing.T) {
	service, docs, clock := newTestService(t)
	ctx := context.Background()

	player, _ := service.Join(ctx, "quiz-1", "Alice")
	if err := service.Start(ctx, "quiz-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(31 * time.Second)
	_, err := service.Submit(ctx, "quiz-1", player.ID, 0, "B")
	if !errors.Is(err, domain.ErrAnswerLocked) {
		t.Fatalf("expected locked, got %v", err)
	}

	// Rejected before any write: no answer doc, no credit.
	answers, _ := docs.ListAll(ctx, store.AnswersCollection("quiz-1"))
	if len(answers) != 0 {
		t.Fatalf("expected no answer docs, got %d", len(answers))
	}
}

func TestSubmitRejectedBeforeStart(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	player, _ := service.Join(ctx, "quiz-1", "Alice")
	if _, err := service.Submit(ctx, "quiz-1", player.ID, 0, "B"); !errors.Is(err, domain.ErrAnswerLocked) {
		t.Fatalf("expected locked in lobby, got %v", err)
	}
}

func TestSubmitStaleIndexRejected(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	player, _ := service.Join(ctx, "quiz-1", "Alice")
	if err := service.Start(ctx, "quiz-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.Advance(ctx, "quiz-1"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if _, err := service.Submit(ctx, "quiz-1", player.ID, 0, "B"); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected stale question, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	player, _ := service.Join(ctx, "quiz-1", "Alice")
	if err := service.Start(ctx, "quiz-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := service.Submit(ctx, "quiz-1", player.ID, 0, "Z"); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected invalid option, got %v", err)
	}
	if _, err := service.Submit(ctx, "quiz-1", player.ID, 0, ""); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected invalid option for empty selection, got %v", err)
	}
	if _, err := service.Submit(ctx, "quiz-1", "ghost", 0, "B"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
	if _, err := service.Submit(ctx, "quiz-1", "", 0, "B"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found for empty id, got %v", err)
	}
}

func TestSubmitMissingQuestionDoc(t *testing.T) {
	service, docs, _ := newTestService(t)
	ctx := context.Background()

	player, _ := service.Join(ctx, "quiz-1", "Alice")
	if err := service.Start(ctx, "quiz-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Simulate a stale question reference by removing the doc.
	if err := docs.BatchDelete(ctx, []string{store.QuestionPath("quiz-1", 0)}); err != nil {
		t.Fatalf("delete question: %v", err)
	}

	if _, err := service.Submit(ctx, "quiz-1", player.ID, 0, "B"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	answers, _ := docs.ListAll(ctx, store.AnswersCollection("quiz-1"))
	if len(answers) != 0 {
		t.Fatalf("no answer doc may be created, got %d", len(answers))
	}
}
