package memory

import (
	"context"
	"sync"

	"guild-quiz-bot/internal/domain"
)

// MemberStore keeps members in memory (useful for tests/demos).
type MemberStore struct {
	mu      sync.RWMutex
	members map[string]domain.Member
}

func NewMemberStore(members ...domain.Member) *MemberStore {
	s := &MemberStore{members: make(map[string]domain.Member, len(members))}
	for _, m := range members {
		if m.Level < 1 {
			m.Level = domain.LevelForXP(m.XP)
		}
		s.members[m.ID] = m
	}
	return s
}

func (s *MemberStore) Exists(_ context.Context, memberID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[memberID]
	return ok, nil
}

func (s *MemberStore) Member(_ context.Context, memberID string) (domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberID]
	if !ok {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	return m, nil
}

func (s *MemberStore) Level(ctx context.Context, memberID string) (int, error) {
	m, err := s.Member(ctx, memberID)
	if err != nil {
		return 0, err
	}
	return m.Level, nil
}

// ApplyXPDelta adds delta to the member's XP; the level follows the XP.
func (s *MemberStore) ApplyXPDelta(_ context.Context, memberID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok {
		return domain.ErrMemberNotFound
	}
	m.XP += delta
	m.Level = domain.LevelForXP(m.XP)
	s.members[memberID] = m
	return nil
}

func (s *MemberStore) Register(_ context.Context, member domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if member.Level < 1 {
		member.Level = domain.LevelForXP(member.XP)
	}
	s.members[member.ID] = member
	return nil
}
