package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"livequiz-service/internal/store"

	"github.com/redis/go-redis/v9"
)

const defaultBatchLimit = 450

// Key scheme:
//
//	doc:{path}      hash of JSON-encoded field values
//	col:{parent}    set of member document paths
//	ch:doc:{path}   pub/sub channel notified on any write to the document
//	ch:col:{parent} pub/sub channel notified on any member change
//
// Integer fields JSON-encode to plain digit strings, so HINCRBY operates on
// them directly; that is what makes the score increment atomic server-side.

// createIfAbsent writes the hash only when the document key does not exist
// and reports whether this call created it.
var createIfAbsent = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
for i = 1, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
redis.call('SADD', KEYS[2], ARGV[#ARGV])
return 1
`)

// updateExisting merges fields only into an existing document.
var updateExisting = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
for i = 1, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
return 1
`)

// DocumentStore is a Redis-backed implementation of store.Store. Change
// feeds ride on pub/sub: one channel per document and one per collection,
// published after each committed write.
type DocumentStore struct {
	client     *redis.Client
	clock      func() time.Time
	batchLimit int
}

// Option configures a DocumentStore.
type Option func(*DocumentStore)

// WithClock injects the server-timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *DocumentStore) { s.clock = now }
}

// WithBatchLimit overrides the write-batch ceiling.
func WithBatchLimit(limit int) Option {
	return func(s *DocumentStore) { s.batchLimit = limit }
}

func NewDocumentStore(client *redis.Client, opts ...Option) *DocumentStore {
	s := &DocumentStore{
		client:     client,
		clock:      time.Now,
		batchLimit: defaultBatchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DocumentStore) BatchLimit() int { return s.batchLimit }

func (s *DocumentStore) Get(ctx context.Context, path string) (store.Snapshot, error) {
	raw, err := s.client.HGetAll(ctx, docKey(path)).Result()
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("redis hgetall %s: %w", path, err)
	}
	return decodeSnapshot(path, raw), nil
}

func (s *DocumentStore) Set(ctx context.Context, path string, fields map[string]any, merge bool) error {
	encoded, err := s.encode(fields)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	if merge {
		// HSETNX per field: already-set fields keep their value, so a
		// repeated merge-write is an idempotent no-op.
		for k, v := range encoded {
			pipe.HSetNX(ctx, docKey(path), k, v)
		}
	} else {
		pipe.Del(ctx, docKey(path))
		for k, v := range encoded {
			pipe.HSet(ctx, docKey(path), k, v)
		}
	}
	pipe.SAdd(ctx, colKey(collectionOf(path)), path)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set %s: %w", path, err)
	}
	s.publish(ctx, path)
	return nil
}

func (s *DocumentStore) Create(ctx context.Context, path string, fields map[string]any) (bool, error) {
	encoded, err := s.encode(fields)
	if err != nil {
		return false, err
	}
	argv := make([]any, 0, len(encoded)*2+1)
	for k, v := range encoded {
		argv = append(argv, k, v)
	}
	argv = append(argv, path)

	created, err := createIfAbsent.Run(ctx, s.client,
		[]string{docKey(path), colKey(collectionOf(path))}, argv...).Int()
	if err != nil {
		return false, fmt.Errorf("redis create %s: %w", path, err)
	}
	if created == 1 {
		s.publish(ctx, path)
		return true, nil
	}
	return false, nil
}

func (s *DocumentStore) Update(ctx context.Context, path string, fields map[string]any) error {
	encoded, err := s.encode(fields)
	if err != nil {
		return err
	}
	argv := make([]any, 0, len(encoded)*2)
	for k, v := range encoded {
		argv = append(argv, k, v)
	}

	updated, err := updateExisting.Run(ctx, s.client, []string{docKey(path)}, argv...).Int()
	if err != nil {
		return fmt.Errorf("redis update %s: %w", path, err)
	}
	if updated == 0 {
		return store.ErrNotFound
	}
	s.publish(ctx, path)
	return nil
}

func (s *DocumentStore) Increment(ctx context.Context, path, field string, delta int64) error {
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, docKey(path), field, delta)
	pipe.SAdd(ctx, colKey(collectionOf(path)), path)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hincrby %s.%s: %w", path, field, err)
	}
	s.publish(ctx, path)
	return nil
}

func (s *DocumentStore) ListAll(ctx context.Context, collection string) ([]store.Snapshot, error) {
	paths, err := s.client.SMembers(ctx, colKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", collection, err)
	}

	snaps := make([]store.Snapshot, 0, len(paths))
	for _, path := range paths {
		raw, err := s.client.HGetAll(ctx, docKey(path)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis hgetall %s: %w", path, err)
		}
		snap := decodeSnapshot(path, raw)
		if snap.Exists {
			snaps = append(snaps, snap)
		}
	}
	return snaps, nil
}

func (s *DocumentStore) BatchDelete(ctx context.Context, paths []string) error {
	if len(paths) > s.batchLimit {
		return store.ErrBatchTooLarge
	}
	pipe := s.client.TxPipeline()
	for _, path := range paths {
		pipe.Del(ctx, docKey(path))
		pipe.SRem(ctx, colKey(collectionOf(path)), path)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis batch delete: %w", err)
	}
	for _, path := range paths {
		s.publish(ctx, path)
	}
	return nil
}

func (s *DocumentStore) Subscribe(ctx context.Context, path string) (<-chan store.Snapshot, store.CancelFunc, error) {
	pubsub := s.client.Subscribe(ctx, docChannel(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis subscribe %s: %w", path, err)
	}

	out := make(chan store.Snapshot, 8)
	subCtx, stop := context.WithCancel(ctx)

	go func() {
		defer close(out)
		if snap, err := s.Get(subCtx, path); err == nil {
			out <- snap
		}
		msgs := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				snap, err := s.Get(subCtx, path)
				if err != nil {
					continue
				}
				select {
				case out <- snap:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

func (s *DocumentStore) SubscribeCollection(ctx context.Context, collection string) (<-chan []store.Snapshot, store.CancelFunc, error) {
	pubsub := s.client.Subscribe(ctx, colChannel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis subscribe %s: %w", collection, err)
	}

	out := make(chan []store.Snapshot, 8)
	subCtx, stop := context.WithCancel(ctx)

	go func() {
		defer close(out)
		if snaps, err := s.ListAll(subCtx, collection); err == nil {
			out <- snaps
		}
		msgs := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				snaps, err := s.ListAll(subCtx, collection)
				if err != nil {
					continue
				}
				select {
				case out <- snaps:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

// encode JSON-encodes field values and resolves the server-timestamp
// sentinel against the store clock.
func (s *DocumentStore) encode(fields map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if v == store.ServerTimestamp {
			v = s.clock().UTC()
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		out[k] = string(data)
	}
	return out, nil
}

func (s *DocumentStore) publish(ctx context.Context, path string) {
	// Best effort: a dropped notification only delays a subscriber until the
	// next change; document state itself is already committed.
	_ = s.client.Publish(ctx, docChannel(path), path).Err()
	_ = s.client.Publish(ctx, colChannel(collectionOf(path)), path).Err()
}

func decodeSnapshot(path string, raw map[string]string) store.Snapshot {
	snap := store.Snapshot{Path: path, Exists: len(raw) > 0}
	if !snap.Exists {
		return snap
	}
	snap.Fields = make(map[string]any, len(raw))
	for k, data := range raw {
		var v any
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			// HINCRBY leaves bare integers, which are valid JSON anyway;
			// anything unparseable is surfaced as the raw string.
			v = data
		}
		snap.Fields[k] = v
	}
	return snap
}

func docKey(path string) string  { return "doc:" + path }
func colKey(col string) string   { return "col:" + col }
func docChannel(p string) string { return "ch:doc:" + p }
func colChannel(c string) string { return "ch:col:" + c }

func collectionOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i > 0 {
		return path[:i]
	}
	return path
}
