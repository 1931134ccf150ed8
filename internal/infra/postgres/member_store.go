package postgres

import (
	"context"
	"errors"
	"fmt"

	"guild-quiz-bot/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// MemberStore keeps member XP and levels in Postgres.
type MemberStore struct {
	pool *pgxpool.Pool
}

func NewMemberStore(pool *pgxpool.Pool) *MemberStore {
	return &MemberStore{pool: pool}
}

func (s *MemberStore) Exists(ctx context.Context, memberID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM members WHERE id=$1)`, memberID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("member exists: %w", err)
	}
	return exists, nil
}

func (s *MemberStore) Member(ctx context.Context, memberID string) (domain.Member, error) {
	m := domain.Member{ID: memberID}
	err := s.pool.QueryRow(ctx, `SELECT name, xp, level FROM members WHERE id=$1`, memberID).Scan(&m.Name, &m.XP, &m.Level)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	if err != nil {
		return domain.Member{}, fmt.Errorf("load member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) Level(ctx context.Context, memberID string) (int, error) {
	var level int
	err := s.pool.QueryRow(ctx, `SELECT level FROM members WHERE id=$1`, memberID).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrMemberNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load member level: %w", err)
	}
	return level, nil
}

// ApplyXPDelta updates XP and level in one transaction so concurrent
// grants never lose an update.
func (s *MemberStore) ApplyXPDelta(ctx context.Context, memberID string, delta int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin xp update: %w", err)
	}
	defer tx.Rollback(ctx)

	var xp int
	err = tx.QueryRow(ctx, `UPDATE members SET xp = xp + $2, updated_at = NOW() WHERE id=$1 RETURNING xp`, memberID, delta).Scan(&xp)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrMemberNotFound
	}
	if err != nil {
		return fmt.Errorf("update xp: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE members SET level=$2 WHERE id=$1`, memberID, domain.LevelForXP(xp)); err != nil {
		return fmt.Errorf("update level: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *MemberStore) Register(ctx context.Context, m domain.Member) error {
	if m.Level < 1 {
		m.Level = domain.LevelForXP(m.XP)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO members (id, name, xp, level) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, updated_at=NOW()`,
		m.ID, m.Name, m.XP, m.Level)
	if err != nil {
		return fmt.Errorf("register member: %w", err)
	}
	return nil
}
