package app

import (
	"sort"
	"sync"
	"time"

	"guild-quiz-bot/internal/domain"
)

// VoteLedger records the single label each player currently holds for one
// question. It is safe for concurrent use.
type VoteLedger struct {
	mu      sync.RWMutex
	now     func() time.Time
	seq     uint64
	entries map[string]ledgerEntry
}

type ledgerEntry struct {
	label  domain.Label
	castAt time.Time
	seq    uint64
}

// NewVoteLedger builds an empty ledger stamping casts with now.
func NewVoteLedger(now func() time.Time) *VoteLedger {
	if now == nil {
		now = time.Now
	}
	return &VoteLedger{
		now:     now,
		entries: make(map[string]ledgerEntry),
	}
}

// Cast upserts the player's label. Re-casting the held label keeps the
// original position; a different label replaces the entry and moves it last.
// It reports whether the ledger changed.
func (l *VoteLedger) Cast(playerID string, label domain.Label) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.entries[playerID]; ok && entry.label == label {
		return false
	}
	l.seq++
	l.entries[playerID] = ledgerEntry{label: label, castAt: l.now(), seq: l.seq}
	return true
}

// Retract clears the player's entry only if it still holds label.
func (l *VoteLedger) Retract(playerID string, label domain.Label) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[playerID]
	if !ok || entry.label != label {
		return false
	}
	delete(l.entries, playerID)
	return true
}

// Held returns the label the player currently holds.
func (l *VoteLedger) Held(playerID string) (domain.Label, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[playerID]
	return entry.label, ok
}

// Len returns the number of players holding a vote.
func (l *VoteLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Snapshot returns the votes ordered by the time each was applied.
func (l *VoteLedger) Snapshot() []domain.Vote {
	l.mu.RLock()
	type ordered struct {
		vote domain.Vote
		seq  uint64
	}
	rows := make([]ordered, 0, len(l.entries))
	for playerID, entry := range l.entries {
		rows = append(rows, ordered{
			vote: domain.Vote{PlayerID: playerID, Label: entry.label, CastAt: entry.castAt},
			seq:  entry.seq,
		})
	}
	l.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	votes := make([]domain.Vote, len(rows))
	for i, row := range rows {
		votes[i] = row.vote
	}
	return votes
}
