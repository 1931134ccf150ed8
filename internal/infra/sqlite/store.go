// Package sqlite provides a single-file store for questions and members.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"guild-quiz-bot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS questions (
    id           TEXT PRIMARY KEY,
    theme        TEXT NOT NULL DEFAULT '',
    prompt       TEXT NOT NULL,
    propositions TEXT NOT NULL,
    answer       TEXT NOT NULL,
    author       TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS members (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    xp         INTEGER NOT NULL DEFAULT 0,
    level      INTEGER NOT NULL DEFAULT 1,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store persists questions and members in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the database at path (":memory:" for a private in-memory
// database) and creates the schema.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, theme, prompt, propositions, answer, author FROM questions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q      domain.Question
			raw    string
			answer string
		)
		if err := rows.Scan(&q.ID, &q.Theme, &q.Prompt, &raw, &answer, &q.Author); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &q.Propositions); err != nil {
			return nil, fmt.Errorf("unmarshal propositions of %s: %w", q.ID, err)
		}
		q.Answer = domain.Label(answer)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) InsertQuestion(ctx context.Context, q domain.Question) error {
	raw, err := json.Marshal(q.Propositions)
	if err != nil {
		return fmt.Errorf("marshal propositions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions (id, theme, prompt, propositions, answer, author) VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.Theme, q.Prompt, string(raw), string(q.Answer), q.Author)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, memberID string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM members WHERE id = ?`, memberID).Scan(&n); err != nil {
		return false, fmt.Errorf("member exists: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Member(ctx context.Context, memberID string) (domain.Member, error) {
	m := domain.Member{ID: memberID}
	err := s.db.QueryRowContext(ctx, `SELECT name, xp, level FROM members WHERE id = ?`, memberID).Scan(&m.Name, &m.XP, &m.Level)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	if err != nil {
		return domain.Member{}, fmt.Errorf("load member: %w", err)
	}
	return m, nil
}

func (s *Store) Level(ctx context.Context, memberID string) (int, error) {
	m, err := s.Member(ctx, memberID)
	if err != nil {
		return 0, err
	}
	return m.Level, nil
}

func (s *Store) ApplyXPDelta(ctx context.Context, memberID string, delta int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin xp update: %w", err)
	}
	defer tx.Rollback()

	var xp int
	err = tx.QueryRowContext(ctx, `SELECT xp FROM members WHERE id = ?`, memberID).Scan(&xp)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrMemberNotFound
	}
	if err != nil {
		return fmt.Errorf("load xp: %w", err)
	}
	xp += delta
	if _, err := tx.ExecContext(ctx,
		`UPDATE members SET xp = ?, level = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		xp, domain.LevelForXP(xp), memberID); err != nil {
		return fmt.Errorf("update xp: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Register(ctx context.Context, m domain.Member) error {
	if m.Level < 1 {
		m.Level = domain.LevelForXP(m.XP)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, name, xp, level) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, updated_at = CURRENT_TIMESTAMP`,
		m.ID, m.Name, m.XP, m.Level)
	if err != nil {
		return fmt.Errorf("register member: %w", err)
	}
	return nil
}
