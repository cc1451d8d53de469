package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Update when the target document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrBatchTooLarge is returned by BatchDelete when the number of paths
// exceeds the provider's write-batch ceiling.
var ErrBatchTooLarge = errors.New("batch exceeds write limit")

// serverStamp is the sentinel resolved to a commit-time timestamp by the
// store implementation.
type serverStamp struct{}

// ServerTimestamp marks a field to be stamped by the store at write time.
var ServerTimestamp = serverStamp{}

// CancelFunc tears down a subscription. Safe to call more than once.
type CancelFunc func()

// Store is the shared document store consumed by the core. Implementations
// must deliver a document's updates in commit order within a single
// subscription stream; there is no ordering guarantee across documents.
type Store interface {
	// Subscribe delivers the document's current state immediately, then every
	// subsequent change, until the cancel func is called.
	Subscribe(ctx context.Context, path string) (<-chan Snapshot, CancelFunc, error)

	// SubscribeCollection delivers the full member set immediately, then
	// again on every change to any member.
	SubscribeCollection(ctx context.Context, collection string) (<-chan []Snapshot, CancelFunc, error)

	// Get is a one-shot point read. A missing document is reported via
	// Snapshot.Exists, not an error.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set creates or merges a document. With merge, already-set fields keep
	// their existing values (repeating a write is a no-op).
	Set(ctx context.Context, path string, fields map[string]any, merge bool) error

	// Create writes the document only if it does not exist and reports
	// whether this call created it.
	Create(ctx context.Context, path string, fields map[string]any) (bool, error)

	// Update merges fields into an existing document; ErrNotFound otherwise.
	Update(ctx context.Context, path string, fields map[string]any) error

	// Increment atomically adds delta to a numeric field, creating the
	// document or field at delta if absent.
	Increment(ctx context.Context, path, field string, delta int64) error

	// ListAll enumerates a collection point-in-time (not live).
	ListAll(ctx context.Context, collection string) ([]Snapshot, error)

	// BatchDelete removes up to BatchLimit documents in one committed batch.
	BatchDelete(ctx context.Context, paths []string) error

	// BatchLimit is the provider-imposed ceiling on refs per batch.
	BatchLimit() int
}

// SessionPath addresses the session document for a code.
func SessionPath(code string) string {
	return "sessions/" + code
}

// PlayersCollection addresses a session's players.
func PlayersCollection(code string) string {
	return "sessions/" + code + "/players"
}

// PlayerPath addresses one player document.
func PlayerPath(code, playerID string) string {
	return PlayersCollection(code) + "/" + playerID
}

// QuestionsCollection addresses a session's question bank.
func QuestionsCollection(code string) string {
	return "sessions/" + code + "/questions"
}

// QuestionPath addresses the question document for an index.
func QuestionPath(code string, index int) string {
	return fmt.Sprintf("%s/%d", QuestionsCollection(code), index)
}

// AnswersCollection addresses a session's answers.
func AnswersCollection(code string) string {
	return "sessions/" + code + "/answers"
}

// AnswerPath is the deterministic answer identity: a pure function of
// (questionIndex, playerID). This key is what makes retried submissions
// collapse onto a single document.
func AnswerPath(code string, questionIndex int, playerID string) string {
	return fmt.Sprintf("%s/%d_%s", AnswersCollection(code), questionIndex, playerID)
}
