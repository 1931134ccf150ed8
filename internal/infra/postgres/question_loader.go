package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"guild-quiz-bot/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads and stores quiz questions in Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, theme, prompt, propositions, answer, author FROM questions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q      domain.Question
			raw    []byte
			answer string
		)
		if err := rows.Scan(&q.ID, &q.Theme, &q.Prompt, &raw, &answer, &q.Author); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(raw, &q.Propositions); err != nil {
			return nil, fmt.Errorf("unmarshal propositions of %s: %w", q.ID, err)
		}
		q.Answer = domain.Label(answer)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}

func (l *QuestionLoader) InsertQuestion(ctx context.Context, q domain.Question) error {
	raw, err := json.Marshal(q.Propositions)
	if err != nil {
		return fmt.Errorf("marshal propositions: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO questions (id, theme, prompt, propositions, answer, author) VALUES ($1, $2, $3, $4::jsonb, $5, $6)`,
		q.ID, q.Theme, q.Prompt, string(raw), string(q.Answer), q.Author)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}
