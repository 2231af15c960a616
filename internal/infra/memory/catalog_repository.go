package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"gongzi-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches the question catalog from a backing store (e.g., Postgres).
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) ([]domain.QuizQuestion, error)
}

// CatalogRepository caches the catalog with TTL to avoid repeated DB hits.
type CatalogRepository struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	questions []domain.QuizQuestion
	expiresAt time.Time
}

func NewCatalogRepository(loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) GetCatalog(ctx context.Context) ([]domain.QuizQuestion, error) {
	if qs, ok := r.cached(r.clock()); ok {
		return qs, nil
	}

	result, err, _ := r.sf.Do("catalog", func() (interface{}, error) {
		now := r.clock()
		if qs, ok := r.cached(now); ok {
			return qs, nil
		}

		qs, err := r.loader.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}
		if len(qs) == 0 {
			return nil, domain.ErrCatalogNotFound
		}

		r.mu.Lock()
		r.questions = qs
		r.expiresAt = now.Add(r.ttlWithJitter())
		r.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuizQuestion), nil
}

func (r *CatalogRepository) cached(now time.Time) ([]domain.QuizQuestion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.questions != nil && r.expiresAt.After(now) {
		return r.questions, true
	}
	return nil, false
}

// StaticCatalogLoader serves a fixed catalog, such as the embedded one.
type StaticCatalogLoader struct {
	questions []domain.QuizQuestion
}

func NewStaticCatalogLoader(questions []domain.QuizQuestion) *StaticCatalogLoader {
	return &StaticCatalogLoader{questions: questions}
}

func (l *StaticCatalogLoader) LoadCatalog(context.Context) ([]domain.QuizQuestion, error) {
	if len(l.questions) == 0 {
		return nil, domain.ErrCatalogNotFound
	}
	return l.questions, nil
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
