package app

import (
	"context"
	"fmt"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/store"
)

// BulkResetCoordinator wipes a session's answers and players in batches
// bounded by the store's write-batch ceiling, then reinitializes session
// state. The operation is not transactional; a resetStage marker recorded on
// the session document before each phase makes an interrupted reset
// detectable and resumable instead of silently inconsistent.
type BulkResetCoordinator struct {
	store   store.Store
	machine *SessionMachine
}

func NewBulkResetCoordinator(st store.Store, machine *SessionMachine) *BulkResetCoordinator {
	return &BulkResetCoordinator{store: st, machine: machine}
}

// Reset deletes all answers, then all players, then finalizes session state.
// Deleting N documents issues ceil(N/limit) batch commits per collection.
func (c *BulkResetCoordinator) Reset(ctx context.Context, code string) error {
	if _, err := c.machine.Load(ctx, code); err != nil {
		return err
	}
	return c.run(ctx, code, domain.ResetStageAnswers)
}

// Resume continues a reset that was interrupted mid-flight, picking up from
// the stage recorded on the session document. It is a no-op when no reset
// is in progress.
func (c *BulkResetCoordinator) Resume(ctx context.Context, code string) error {
	session, err := c.machine.Load(ctx, code)
	if err != nil {
		return err
	}
	if session.ResetStage == domain.ResetStageNone {
		return nil
	}
	return c.run(ctx, code, session.ResetStage)
}

func (c *BulkResetCoordinator) run(ctx context.Context, code string, from domain.ResetStage) error {
	if from == domain.ResetStageAnswers {
		if err := c.machine.MarkResetStage(ctx, code, domain.ResetStageAnswers); err != nil {
			return err
		}
		if err := c.deleteAll(ctx, store.AnswersCollection(code)); err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		from = domain.ResetStagePlayers
	}

	if from == domain.ResetStagePlayers {
		if err := c.machine.MarkResetStage(ctx, code, domain.ResetStagePlayers); err != nil {
			return err
		}
		if err := c.deleteAll(ctx, store.PlayersCollection(code)); err != nil {
			return fmt.Errorf("delete players: %w", err)
		}
	}

	return c.machine.FinalizeReset(ctx, code)
}

// deleteAll enumerates a collection point-in-time and deletes it in chunks
// of at most the store's batch limit, committing each chunk before the next.
func (c *BulkResetCoordinator) deleteAll(ctx context.Context, collection string) error {
	snaps, err := c.store.ListAll(ctx, collection)
	if err != nil {
		return err
	}
	limit := c.store.BatchLimit()
	paths := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		paths = append(paths, snap.Path)
	}
	for start := 0; start < len(paths); start += limit {
		end := start + limit
		if end > len(paths) {
			end = len(paths)
		}
		if err := c.store.BatchDelete(ctx, paths[start:end]); err != nil {
			return err
		}
	}
	return nil
}
