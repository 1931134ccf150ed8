package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"guild-quiz-bot/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const poolKey = "pool"

// QuestionLoader fetches the question pool from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
	InsertQuestion(ctx context.Context, question domain.Question) error
}

// QuestionRepository caches the question pool with TTL to avoid repeated DB hits.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu        sync.Mutex
	rnd       *rand.Rand
	pool      []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Draw returns up to n distinct questions picked at random from the pool.
func (r *QuestionRepository) Draw(ctx context.Context, n int) ([]domain.Question, error) {
	pool, err := r.questions(ctx)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, domain.ErrNoQuestions
	}
	if n <= 0 || n > len(pool) {
		n = len(pool)
	}

	r.mu.Lock()
	order := r.rnd.Perm(len(pool))[:n]
	r.mu.Unlock()

	drawn := make([]domain.Question, n)
	for i, idx := range order {
		drawn[i] = pool[idx]
	}
	return drawn, nil
}

// Add stores the question through the loader and drops the cached pool.
func (r *QuestionRepository) Add(ctx context.Context, question domain.Question) (domain.Question, error) {
	if question.ID == "" {
		question.ID = uuid.NewString()
	}
	if err := r.loader.InsertQuestion(ctx, question); err != nil {
		return domain.Question{}, err
	}
	r.mu.Lock()
	r.pool = nil
	r.expiresAt = time.Time{}
	r.mu.Unlock()
	return question, nil
}

func (r *QuestionRepository) questions(ctx context.Context) ([]domain.Question, error) {
	if pool, ok := r.cached(); ok {
		return pool, nil
	}

	result, err, _ := r.sf.Do(poolKey, func() (interface{}, error) {
		if pool, ok := r.cached(); ok {
			return pool, nil
		}
		pool, err := r.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.pool = pool
		r.expiresAt = r.clock().Add(r.ttlWithJitter())
		r.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) cached() ([]domain.Question, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool != nil && r.expiresAt.After(r.clock()) {
		return r.pool, true
	}
	return nil, false
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a simple loader backed by an in-memory slice (useful for tests/demos).
type StaticQuestionLoader struct {
	mu        sync.RWMutex
	questions []domain.Question
}

func NewStaticQuestionLoader(questions ...domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: append([]domain.Question(nil), questions...)}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.Question(nil), l.questions...), nil
}

func (l *StaticQuestionLoader) InsertQuestion(_ context.Context, question domain.Question) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.questions = append(l.questions, question)
	return nil
}
