package app

import (
	"sort"
	"sync"
	"time"

	"guild-quiz-bot/internal/domain"
)

// Party accumulates round wins for one channel.
type Party struct {
	channelID string
	size      int
	startedAt time.Time
	now       func() time.Time

	mu        sync.RWMutex
	rounds    []RoundResult
	standings map[string]*standing
	seq       uint64
}

type standing struct {
	playerID    string
	displayName string
	wins        int
	reachedAt   uint64 // order in which the current win count was reached
}

func newParty(channelID string, size int, now func() time.Time) *Party {
	return &Party{
		channelID: channelID,
		size:      size,
		startedAt: now(),
		now:       now,
		standings: make(map[string]*standing),
	}
}

func (p *Party) ChannelID() string { return p.channelID }

// Size is the number of rounds the party was started with.
func (p *Party) Size() int { return p.size }

// Played returns how many rounds have been folded so far.
func (p *Party) Played() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rounds)
}

// fold adds one win to every winner of a closed round, in rank order.
func (p *Party) fold(result RoundResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rounds = append(p.rounds, result)
	for _, winner := range result.Winners {
		p.seq++
		entry, ok := p.standings[winner.PlayerID]
		if !ok {
			entry = &standing{playerID: winner.PlayerID}
			p.standings[winner.PlayerID] = entry
		}
		entry.displayName = winner.Name
		entry.wins++
		entry.reachedAt = p.seq
	}
}

// Leaderboard orders players by wins, ties going to who reached the count first.
func (p *Party) Leaderboard() domain.Leaderboard {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rows := make([]*standing, 0, len(p.standings))
	for _, entry := range p.standings {
		rows = append(rows, entry)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].wins != rows[j].wins {
			return rows[i].wins > rows[j].wins
		}
		return rows[i].reachedAt < rows[j].reachedAt
	})

	entries := make([]domain.LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = domain.LeaderboardEntry{
			PlayerID:    row.playerID,
			DisplayName: row.displayName,
			Wins:        row.wins,
		}
	}
	return domain.Leaderboard{
		ChannelID: p.channelID,
		Entries:   entries,
		UpdatedAt: p.now(),
	}
}
