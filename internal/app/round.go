package app

import (
	"fmt"
	"sync"
	"time"

	"guild-quiz-bot/internal/domain"
)

// RoundState is the lifecycle of a question round. States only move forward.
type RoundState int

const (
	RoundPending RoundState = iota
	RoundActive
	RoundScoring
	RoundClosed
)

func (s RoundState) String() string {
	switch s {
	case RoundPending:
		return "pending"
	case RoundActive:
		return "active"
	case RoundScoring:
		return "scoring"
	case RoundClosed:
		return "closed"
	default:
		return fmt.Sprintf("RoundState(%d)", int(s))
	}
}

// VoteOutcome is how a round resolved one reaction event.
type VoteOutcome int

const (
	// VoteAccepted changed the ledger.
	VoteAccepted VoteOutcome = iota
	// VoteUnchanged repeated the label the player already holds.
	VoteUnchanged
	// VoteSurplus is an extra label from a player who already voted; the
	// reaction must be stripped and the ledger is untouched.
	VoteSurplus
	// VoteIgnored is a reaction that does not select a vote, or a removal of
	// a label the player does not hold.
	VoteIgnored
	// VoteDropped arrived outside the active window.
	VoteDropped
)

func (o VoteOutcome) String() string {
	switch o {
	case VoteAccepted:
		return "accepted"
	case VoteUnchanged:
		return "unchanged"
	case VoteSurplus:
		return "surplus"
	case VoteIgnored:
		return "ignored"
	case VoteDropped:
		return "dropped"
	default:
		return fmt.Sprintf("VoteOutcome(%d)", int(o))
	}
}

// Round drives one question from posting to scored close.
type Round struct {
	channelID string
	question  domain.Question
	ledger    *VoteLedger

	mu        sync.Mutex
	state     RoundState
	messageID string
	deadline  time.Time
}

// NewRound creates a pending round for question in channelID.
func NewRound(channelID string, question domain.Question, now func() time.Time) *Round {
	return &Round{
		channelID: channelID,
		question:  question,
		ledger:    NewVoteLedger(now),
		state:     RoundPending,
	}
}

func (r *Round) ChannelID() string         { return r.channelID }
func (r *Round) Question() domain.Question { return r.question }

// MessageID is the posted question message, empty while pending.
func (r *Round) MessageID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messageID
}

// Deadline is when the active window ends.
func (r *Round) Deadline() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deadline
}

func (r *Round) State() RoundState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Activate opens the round for votes once the question is posted.
func (r *Round) Activate(messageID string, deadline time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RoundPending {
		return fmt.Errorf("activate round in state %s: %w", r.state, domain.ErrRoundNotActive)
	}
	r.messageID = messageID
	r.deadline = deadline
	r.state = RoundActive
	return nil
}

// Apply resolves one reaction event against the ledger. The first label a
// player reacts with wins; further labels are surplus until that vote is
// removed. Events are serialized with the scoring transition so each one is
// either applied before the snapshot or dropped.
func (r *Round) Apply(ev domain.ReactionEvent) VoteOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RoundActive || ev.MessageID != r.messageID {
		return VoteDropped
	}
	if ev.IsBot {
		return VoteIgnored
	}
	label, ok := domain.LabelFromEmoji(ev.Emoji)
	if !ok || !r.question.HasLabel(label) {
		return VoteIgnored
	}

	if !ev.Added {
		if r.ledger.Retract(ev.PlayerID, label) {
			return VoteAccepted
		}
		return VoteIgnored
	}

	held, voted := r.ledger.Held(ev.PlayerID)
	switch {
	case !voted:
		r.ledger.Cast(ev.PlayerID, label)
		return VoteAccepted
	case held == label:
		return VoteUnchanged
	default:
		return VoteSurplus
	}
}

// BeginScoring ends the active window and returns the ledger snapshot.
func (r *Round) BeginScoring() ([]domain.Vote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RoundActive {
		return nil, fmt.Errorf("score round in state %s: %w", r.state, domain.ErrRoundNotActive)
	}
	r.state = RoundScoring
	return r.ledger.Snapshot(), nil
}

// Close marks a scored round terminal.
func (r *Round) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RoundScoring {
		return fmt.Errorf("close round in state %s: %w", r.state, domain.ErrRoundNotActive)
	}
	r.state = RoundClosed
	return nil
}
