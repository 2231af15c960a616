package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"gongzi-quiz-service/internal/domain"
	"gongzi-quiz-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// catalogKey holds the whole catalog as one JSON array.
const catalogKey = "quiz:catalog"

// CatalogRepository caches the question catalog in Redis and falls back to a loader on cache miss.
type CatalogRepository struct {
	client *redis.Client
	loader memory.CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader memory.CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) GetCatalog(ctx context.Context) ([]domain.QuizQuestion, error) {
	if qs, ok := r.cached(ctx); ok {
		return qs, nil
	}

	result, err, _ := r.sf.Do(catalogKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := r.cached(ctx); ok {
			return qs, nil
		}

		qs, err := r.loader.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}
		if len(qs) == 0 {
			return nil, domain.ErrCatalogNotFound
		}

		// A cache write failure only costs a reload next time.
		if raw, err := json.Marshal(qs); err == nil {
			_ = r.client.Set(ctx, catalogKey, raw, r.ttlWithJitter()).Err()
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuizQuestion), nil
}

func (r *CatalogRepository) cached(ctx context.Context) ([]domain.QuizQuestion, bool) {
	raw, err := r.client.Get(ctx, catalogKey).Bytes()
	if err != nil {
		return nil, false
	}
	var qs []domain.QuizQuestion
	if err := json.Unmarshal(raw, &qs); err != nil || len(qs) == 0 {
		return nil, false
	}
	return qs, true
}

// Invalidate drops the cached catalog, e.g. after seeding new questions.
func (r *CatalogRepository) Invalidate(ctx context.Context) error {
	if err := r.client.Del(ctx, catalogKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
