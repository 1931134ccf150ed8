package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"guild-quiz-bot/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	questionsKey   = "quiz:questions"
	questionIDsKey = "quiz:questions:ids"
)

// QuestionLoader fetches the question pool from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
	InsertQuestion(ctx context.Context, question domain.Question) error
}

// QuestionRepository caches the question pool in Redis and falls back to a loader on cache miss.
// Questions are stored as: HSET quiz:questions {questionID} {json}
// Ids are stored as:       SADD quiz:questions:ids {questionID}
// so a draw is one SRANDMEMBER plus one HMGET.
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Draw returns up to n distinct random questions.
func (r *QuestionRepository) Draw(ctx context.Context, n int) ([]domain.Question, error) {
	if n <= 0 {
		n = 1
	}
	if drawn, err := r.drawCached(ctx, n); err == nil && len(drawn) > 0 {
		return drawn, nil
	}

	result, err, _ := r.sf.Do(questionsKey, func() (interface{}, error) {
		pool, err := r.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}
		r.fill(ctx, pool)
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	pool := result.([]domain.Question)
	if len(pool) == 0 {
		return nil, domain.ErrNoQuestions
	}
	if n > len(pool) {
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

// Add stores the question through the loader and invalidates the cached pool.
func (r *QuestionRepository) Add(ctx context.Context, question domain.Question) (domain.Question, error) {
	if question.ID == "" {
		question.ID = uuid.NewString()
	}
	if err := r.loader.InsertQuestion(ctx, question); err != nil {
		return domain.Question{}, err
	}
	_ = r.client.Del(ctx, questionsKey, questionIDsKey).Err()
	return question, nil
}

func (r *QuestionRepository) drawCached(ctx context.Context, n int) ([]domain.Question, error) {
	ids, err := r.client.SRandMemberN(ctx, questionIDsKey, int64(n)).Result()
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	raw, err := r.client.HMGet(ctx, questionsKey, ids...).Result()
	if err != nil {
		return nil, err
	}
	drawn := make([]domain.Question, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(s), &q); err != nil {
			continue
		}
		drawn = append(drawn, q)
	}
	return drawn, nil
}

func (r *QuestionRepository) fill(ctx context.Context, pool []domain.Question) {
	if len(pool) == 0 {
		return
	}
	fields := make(map[string]interface{}, len(pool))
	ids := make([]interface{}, 0, len(pool))
	for _, q := range pool {
		data, err := json.Marshal(q)
		if err != nil {
			continue
		}
		fields[q.ID] = string(data)
		ids = append(ids, q.ID)
	}

	ttl := r.ttlWithJitter()
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, questionsKey, questionIDsKey)
	pipe.HSet(ctx, questionsKey, fields)
	pipe.SAdd(ctx, questionIDsKey, ids...)
	if ttl > 0 {
		pipe.Expire(ctx, questionsKey, ttl)
		pipe.Expire(ctx, questionIDsKey, ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
