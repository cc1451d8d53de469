package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"livequiz-service/internal/store"
)

const defaultBatchLimit = 450

// DocumentStore is an in-memory implementation of store.Store. It backs the
// default single-process deployment and doubles as the test fake: same
// contract, injectable clock, per-document and per-collection push streams.
type DocumentStore struct {
	mu          sync.RWMutex
	docs        map[string]map[string]any
	docSubs     map[string]map[chan store.Snapshot]struct{}
	colSubs     map[string]map[chan []store.Snapshot]struct{}
	clock       func() time.Time
	batchLimit  int
	batchCommit func(n int) // test hook, called once per committed batch
}

// Option configures a DocumentStore.
type Option func(*DocumentStore)

// WithClock injects a deterministic clock for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *DocumentStore) { s.clock = now }
}

// WithBatchLimit overrides the write-batch ceiling.
func WithBatchLimit(limit int) Option {
	return func(s *DocumentStore) { s.batchLimit = limit }
}

// WithBatchObserver registers a hook invoked after each committed batch.
func WithBatchObserver(fn func(n int)) Option {
	return func(s *DocumentStore) { s.batchCommit = fn }
}

func NewDocumentStore(opts ...Option) *DocumentStore {
	s := &DocumentStore{
		docs:       make(map[string]map[string]any),
		docSubs:    make(map[string]map[chan store.Snapshot]struct{}),
		colSubs:    make(map[string]map[chan []store.Snapshot]struct{}),
		clock:      time.Now,
		batchLimit: defaultBatchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DocumentStore) BatchLimit() int { return s.batchLimit }

func (s *DocumentStore) Get(_ context.Context, path string) (store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(path), nil
}

func (s *DocumentStore) Set(_ context.Context, path string, fields map[string]any, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[path]
	if !exists || !merge {
		doc = make(map[string]any)
	}
	for k, v := range s.resolveLocked(fields) {
		if merge {
			// Merge semantics: already-set fields win, so a retried write
			// is an idempotent no-op for populated fields.
			if _, set := doc[k]; set {
				continue
			}
		}
		doc[k] = v
	}
	s.docs[path] = doc
	s.notifyLocked(path)
	return nil
}

func (s *DocumentStore) Create(_ context.Context, path string, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[path]; exists {
		return false, nil
	}
	s.docs[path] = s.resolveLocked(fields)
	s.notifyLocked(path)
	return true, nil
}

func (s *DocumentStore) Update(_ context.Context, path string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[path]
	if !exists {
		return store.ErrNotFound
	}
	for k, v := range s.resolveLocked(fields) {
		doc[k] = v
	}
	s.notifyLocked(path)
	return nil
}

func (s *DocumentStore) Increment(_ context.Context, path, field string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[path]
	if !exists {
		doc = make(map[string]any)
		s.docs[path] = doc
	}
	var current int64
	switch v := doc[field].(type) {
	case int:
		current = int64(v)
	case int64:
		current = v
	case float64:
		current = int64(v)
	}
	doc[field] = current + delta
	s.notifyLocked(path)
	return nil
}

func (s *DocumentStore) ListAll(_ context.Context, collection string) ([]store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectionLocked(collection), nil
}

func (s *DocumentStore) BatchDelete(_ context.Context, paths []string) error {
	if len(paths) > s.batchLimit {
		return store.ErrBatchTooLarge
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]struct{})
	for _, path := range paths {
		if _, exists := s.docs[path]; !exists {
			continue
		}
		delete(s.docs, path)
		touched[path] = struct{}{}
	}
	for path := range touched {
		s.notifyLocked(path)
	}
	if s.batchCommit != nil {
		s.batchCommit(len(paths))
	}
	return nil
}

func (s *DocumentStore) Subscribe(_ context.Context, path string) (<-chan store.Snapshot, store.CancelFunc, error) {
	ch := make(chan store.Snapshot, 8)

	s.mu.Lock()
	if s.docSubs[path] == nil {
		s.docSubs[path] = make(map[chan store.Snapshot]struct{})
	}
	s.docSubs[path][ch] = struct{}{}
	// Sent before releasing the lock: a write committing right after
	// registration must not have its notification ordered ahead of the
	// initial snapshot.
	ch <- s.snapshotLocked(path)
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.docSubs[path], ch)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

func (s *DocumentStore) SubscribeCollection(_ context.Context, collection string) (<-chan []store.Snapshot, store.CancelFunc, error) {
	ch := make(chan []store.Snapshot, 8)

	s.mu.Lock()
	if s.colSubs[collection] == nil {
		s.colSubs[collection] = make(map[chan []store.Snapshot]struct{})
	}
	s.colSubs[collection][ch] = struct{}{}
	ch <- s.collectionLocked(collection)
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.colSubs[collection], ch)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// resolveLocked copies fields, replacing the ServerTimestamp sentinel with
// the store's clock. The store is the timestamp authority here.
func (s *DocumentStore) resolveLocked(fields map[string]any) map[string]any {
	now := s.clock()
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == store.ServerTimestamp {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}

func (s *DocumentStore) snapshotLocked(path string) store.Snapshot {
	doc, exists := s.docs[path]
	snap := store.Snapshot{Path: path, Exists: exists}
	if exists {
		snap.Fields = make(map[string]any, len(doc))
		for k, v := range doc {
			snap.Fields[k] = v
		}
	}
	return snap
}

func (s *DocumentStore) collectionLocked(collection string) []store.Snapshot {
	prefix := collection + "/"
	var snaps []store.Snapshot
	for path := range s.docs {
		if strings.HasPrefix(path, prefix) && !strings.Contains(path[len(prefix):], "/") {
			snaps = append(snaps, s.snapshotLocked(path))
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Path < snaps[j].Path })
	return snaps
}

// notifyLocked fans out the document's new state to its subscribers and to
// subscribers of its parent collection. Slow subscribers get the stale
// buffered value replaced rather than blocking the writer.
func (s *DocumentStore) notifyLocked(path string) {
	snap := s.snapshotLocked(path)
	for ch := range s.docSubs[path] {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}

	if i := strings.LastIndexByte(path, '/'); i > 0 {
		collection := path[:i]
		if subs := s.colSubs[collection]; len(subs) > 0 {
			snaps := s.collectionLocked(collection)
			for ch := range subs {
				select {
				case ch <- snaps:
				default:
					select {
					case <-ch:
					default:
					}
					ch <- snaps
				}
			}
		}
	}
}
