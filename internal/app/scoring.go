package app

import (
	"context"
	"fmt"
	"time"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/store"
)

// ScoringCoordinator ingests answer submissions exactly once per
// (player, question) pair. Idempotency rests on the deterministic answer key
// plus a conditional create; the score increment is gated on whether this
// call actually created the document, so a retried or double-clicked submit
// can never credit twice. No distributed lock is involved.
type ScoringCoordinator struct {
	store store.Store
	clock func() time.Time
}

func NewScoringCoordinator(st store.Store) *ScoringCoordinator {
	return &ScoringCoordinator{store: st, clock: time.Now}
}

// NewScoringCoordinatorWithClock is test-only for deterministic lock checks.
func NewScoringCoordinatorWithClock(st store.Store, now func() time.Time) *ScoringCoordinator {
	return &ScoringCoordinator{store: st, clock: now}
}

// Submit validates, records and credits one answer. Validation failures are
// returned before any store interaction; a store failure leaves the player
// in the "not submitted" state, free to retry while the window is open.
func (s *ScoringCoordinator) Submit(ctx context.Context, code, playerID string, questionIndex int, selected string) (domain.SubmitResult, error) {
	var zero domain.SubmitResult
	if code == "" || playerID == "" {
		return zero, domain.ErrPlayerNotFound
	}
	if selected == "" {
		return zero, domain.ErrInvalidOption
	}

	snap, err := s.store.Get(ctx, store.SessionPath(code))
	if err != nil {
		return zero, fmt.Errorf("read session: %w", err)
	}
	if !snap.Exists {
		return zero, domain.ErrSessionNotFound
	}
	session := sessionFromSnapshot(code, snap)

	// Local lock check: same derivation every client runs.
	if Locked(s.clock(), session) {
		return zero, domain.ErrAnswerLocked
	}
	if questionIndex != session.CurrentQuestionIndex {
		return zero, domain.ErrStaleQuestion
	}

	// Correctness is judged against the question doc as read now, not at
	// render time, so a stale client view cannot mis-credit.
	qSnap, err := s.store.Get(ctx, store.QuestionPath(code, questionIndex))
	if err != nil {
		return zero, fmt.Errorf("read question %d: %w", questionIndex, err)
	}
	if !qSnap.Exists {
		return zero, domain.ErrQuestionNotFound
	}
	question := questionFromSnapshot(questionIndex, qSnap)
	if !question.HasOption(selected) {
		return zero, domain.ErrInvalidOption
	}

	pSnap, err := s.store.Get(ctx, store.PlayerPath(code, playerID))
	if err != nil {
		return zero, fmt.Errorf("read player: %w", err)
	}
	if !pSnap.Exists {
		return zero, domain.ErrPlayerNotFound
	}
	player := playerFromSnapshot(pSnap)

	isCorrect := question.Correct == selected
	created, err := s.store.Create(ctx, store.AnswerPath(code, questionIndex, playerID), map[string]any{
		fieldSessionCode: code,
		fieldPlayerID:    playerID,
		fieldPlayerName:  player.Name,
		fieldAnswerIndex: questionIndex,
		fieldSelected:    selected,
		fieldIsCorrect:   isCorrect,
		fieldCreatedAt:   store.ServerTimestamp,
	})
	if err != nil {
		return zero, fmt.Errorf("write answer: %w", err)
	}

	// Credit only when this call created the answer doc. A duplicate submit
	// finds the doc already present and must not increment again.
	if created && isCorrect {
		if err := s.store.Increment(ctx, store.PlayerPath(code, playerID), fieldScore, 1); err != nil {
			return zero, fmt.Errorf("credit score: %w", err)
		}
	}

	return domain.SubmitResult{
		QuestionIndex:    questionIndex,
		Selected:         selected,
		Correct:          isCorrect,
		AlreadySubmitted: !created,
	}, nil
}
