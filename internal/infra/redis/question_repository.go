package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionRepository caches authored question sets in Redis and falls back
// to a loader (e.g. Postgres) on cache miss. The whole set is stored as one
// JSON blob per session: SET quiz:{code}:questions {json}. Question banks
// are immutable reference data, so a flat blob with TTL is enough.
type QuestionRepository struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) Questions(ctx context.Context, sessionCode string) ([]domain.Question, error) {
	key := r.key(sessionCode)

	if data, err := r.client.Get(ctx, key).Bytes(); err == nil && len(data) > 0 {
		var questions []domain.Question
		if err := json.Unmarshal(data, &questions); err == nil {
			return questions, nil
		}
	}

	result, err, _ := r.sf.Do(sessionCode, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if data, err := r.client.Get(ctx, key).Bytes(); err == nil && len(data) > 0 {
			var questions []domain.Question
			if err := json.Unmarshal(data, &questions); err == nil {
				return questions, nil
			}
		}

		questions, err := r.loader.LoadQuestions(ctx, sessionCode)
		if err != nil {
			return nil, err
		}

		if data, err := json.Marshal(questions); err == nil {
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) key(sessionCode string) string {
	return "quiz:" + sessionCode + ":questions"
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
