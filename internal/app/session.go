package app

import (
	"context"
	"fmt"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/store"
)

// SessionMachine owns the quiz lifecycle: lobby → running → ended, plus the
// active question pointer. Every transition is a single-document write; the
// session document is mutated only through this type (host-side).
type SessionMachine struct {
	store store.Store
}

func NewSessionMachine(st store.Store) *SessionMachine {
	return &SessionMachine{store: st}
}

// Load reads the current session state.
func (m *SessionMachine) Load(ctx context.Context, code string) (domain.Session, error) {
	snap, err := m.store.Get(ctx, store.SessionPath(code))
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session %s: %w", code, err)
	}
	if !snap.Exists {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return sessionFromSnapshot(code, snap), nil
}

// Start moves lobby → running, rewinds the question pointer to 0 and
// restamps the answer window.
func (m *SessionMachine) Start(ctx context.Context, code string) error {
	session, err := m.Load(ctx, code)
	if err != nil {
		return err
	}
	if session.ResetStage != domain.ResetStageNone {
		return domain.ErrResetInProgress
	}
	if session.Status == domain.StatusRunning {
		return fmt.Errorf("start from %s: %w", session.Status, domain.ErrInvalidTransition)
	}
	return m.update(ctx, code, map[string]any{
		fieldStatus:          string(domain.StatusRunning),
		fieldQuestionIndex:   0,
		fieldQuestionStartAt: store.ServerTimestamp,
	})
}

// Advance moves to the next question while running. questionCount is the
// authored bank size; an advance that would leave the range is rejected
// rather than clamped, so the answer window is never silently reopened for
// an index players already answered.
func (m *SessionMachine) Advance(ctx context.Context, code string, questionCount int) error {
	session, err := m.Load(ctx, code)
	if err != nil {
		return err
	}
	if session.ResetStage != domain.ResetStageNone {
		return domain.ErrResetInProgress
	}
	if session.Status != domain.StatusRunning {
		return fmt.Errorf("advance from %s: %w", session.Status, domain.ErrInvalidTransition)
	}
	next := session.CurrentQuestionIndex + 1
	if next >= questionCount {
		return domain.ErrNoMoreQuestions
	}
	return m.update(ctx, code, map[string]any{
		fieldQuestionIndex:   next,
		fieldQuestionStartAt: store.ServerTimestamp,
	})
}

// End moves lobby|running → ended. The question pointer is left untouched.
func (m *SessionMachine) End(ctx context.Context, code string) error {
	session, err := m.Load(ctx, code)
	if err != nil {
		return err
	}
	if session.Status == domain.StatusEnded {
		return fmt.Errorf("end from %s: %w", session.Status, domain.ErrInvalidTransition)
	}
	return m.update(ctx, code, map[string]any{
		fieldStatus: string(domain.StatusEnded),
	})
}

// FinalizeReset stamps the post-reset state: ended, question 0, fresh
// timestamp, reset marker cleared. Only the BulkResetCoordinator calls this,
// after both collections have been fully deleted.
func (m *SessionMachine) FinalizeReset(ctx context.Context, code string) error {
	return m.update(ctx, code, map[string]any{
		fieldStatus:          string(domain.StatusEnded),
		fieldQuestionIndex:   0,
		fieldQuestionStartAt: store.ServerTimestamp,
		fieldResetStage:      string(domain.ResetStageNone),
	})
}

// MarkResetStage records bulk-reset progress on the session document so an
// interrupted reset is detectable and resumable.
func (m *SessionMachine) MarkResetStage(ctx context.Context, code string, stage domain.ResetStage) error {
	return m.update(ctx, code, map[string]any{
		fieldResetStage: string(stage),
	})
}

func (m *SessionMachine) update(ctx context.Context, code string, fields map[string]any) error {
	if err := m.store.Update(ctx, store.SessionPath(code), fields); err != nil {
		return fmt.Errorf("update session %s: %w", code, err)
	}
	return nil
}
