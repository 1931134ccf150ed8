package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"guild-quiz-bot/internal/domain"
)

// Settings tunes round timing and party size.
type Settings struct {
	RoundTimeout time.Duration
	RoundPause   time.Duration
	PartySize    int
	MaxPartySize int
}

func (s Settings) withDefaults() Settings {
	if s.RoundTimeout <= 0 {
		s.RoundTimeout = 30 * time.Second
	}
	if s.RoundPause < 0 {
		s.RoundPause = 0
	}
	if s.PartySize <= 0 {
		s.PartySize = 10
	}
	if s.MaxPartySize <= 0 {
		s.MaxPartySize = 50
	}
	return s
}

// Deps are the collaborators shared by the quiz use cases.
type Deps struct {
	Chat      Chat
	Members   MemberStore
	Questions QuestionStore
	Locks     ChannelLocks
	Clock     Clock
	Logger    *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// Placement is a scored player as rendered in round results.
type Placement struct {
	PlayerID string
	Name     string
	Rank     int
	Delta    int
}

// RoundResult is the outcome of a closed round.
type RoundResult struct {
	QuestionID string
	Answer     domain.Label
	Answered   int
	Winners    []Placement
	Losers     []Placement
}

// Orchestrator runs single questions and parties, one at a time per channel,
// and routes reaction events to the round they belong to.
type Orchestrator struct {
	deps     Deps
	settings Settings

	mu      sync.RWMutex
	busy    map[string]bool // channels running a round or party on this instance
	parties map[string]*Party
	rounds  map[string]*Round
}

func NewOrchestrator(deps Deps, settings Settings) *Orchestrator {
	return &Orchestrator{
		deps:     deps.withDefaults(),
		settings: settings.withDefaults(),
		busy:     make(map[string]bool),
		parties:  make(map[string]*Party),
		rounds:   make(map[string]*Round),
	}
}

// AskOne runs a single question round in channelID and blocks until it closes.
func (o *Orchestrator) AskOne(ctx context.Context, channelID string) (RoundResult, error) {
	release, err := o.claim(ctx, channelID)
	if err != nil {
		return RoundResult{}, err
	}
	defer release()

	questions, err := o.deps.Questions.Draw(ctx, 1)
	if err != nil {
		return RoundResult{}, fmt.Errorf("draw question: %w", err)
	}
	return o.playRound(ctx, channelID, questions[0])
}

// StartParty runs n rounds sequentially in channelID, then renders and
// returns the final leaderboard. n <= 0 uses the configured party size.
func (o *Orchestrator) StartParty(ctx context.Context, channelID string, n int) (domain.Leaderboard, error) {
	if n <= 0 {
		n = o.settings.PartySize
	}
	if n > o.settings.MaxPartySize {
		n = o.settings.MaxPartySize
	}

	release, err := o.claim(ctx, channelID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	defer release()

	party := newParty(channelID, n, o.deps.Clock.Now)
	o.mu.Lock()
	o.parties[channelID] = party
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.parties, channelID)
		o.mu.Unlock()
	}()

	lb, err := o.runParty(ctx, party)
	if err != nil {
		partiesTotal.WithLabelValues("failed").Inc()
		return domain.Leaderboard{}, err
	}
	partiesTotal.WithLabelValues("completed").Inc()
	return lb, nil
}

func (o *Orchestrator) runParty(ctx context.Context, party *Party) (domain.Leaderboard, error) {
	channelID := party.ChannelID()
	questions, err := o.deps.Questions.Draw(ctx, party.Size())
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("draw questions: %w", err)
	}
	o.deps.Logger.Info("quiz party started", "channel", channelID, "questions", len(questions))

	for i, question := range questions {
		result, err := o.playRound(ctx, channelID, question)
		if err != nil {
			return domain.Leaderboard{}, err
		}
		party.fold(result)

		if i == len(questions)-1 || o.settings.RoundPause == 0 {
			continue
		}
		select {
		case <-o.deps.Clock.After(o.settings.RoundPause):
		case <-ctx.Done():
			return domain.Leaderboard{}, ctx.Err()
		}
	}

	lb, _, err := o.Rank(ctx, channelID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return lb, nil
}

// Rank renders the current party leaderboard. It reports false and does
// nothing when no party is active in the channel.
func (o *Orchestrator) Rank(ctx context.Context, channelID string) (domain.Leaderboard, bool, error) {
	party := o.party(channelID)
	if party == nil {
		return domain.Leaderboard{}, false, nil
	}
	lb := party.Leaderboard()
	if _, err := o.deps.Chat.SendEmbed(ctx, channelID, leaderboardEmbed(lb)); err != nil {
		o.deps.Logger.Error("send leaderboard", "channel", channelID, "error", err)
	}
	return lb, true, nil
}

// Party returns the active party of a channel, if any.
func (o *Orchestrator) Party(channelID string) (*Party, bool) {
	p := o.party(channelID)
	return p, p != nil
}

// HandleReaction routes a reaction event to its round and strips surplus
// reactions on the platform.
func (o *Orchestrator) HandleReaction(ctx context.Context, ev domain.ReactionEvent) VoteOutcome {
	o.mu.RLock()
	round := o.rounds[ev.MessageID]
	o.mu.RUnlock()
	if round == nil {
		return VoteDropped
	}

	outcome := round.Apply(ev)
	votesTotal.WithLabelValues(outcome.String()).Inc()
	if outcome != VoteSurplus {
		return outcome
	}
	o.deps.Logger.Debug("stripping surplus reaction", "message", ev.MessageID, "player", ev.PlayerID, "emoji", ev.Emoji)
	if err := o.deps.Chat.RemoveReaction(ctx, round.ChannelID(), ev.MessageID, ev.PlayerID, ev.Emoji); err != nil {
		o.deps.Logger.Warn("remove surplus reaction", "message", ev.MessageID, "player", ev.PlayerID, "error", err)
	}
	return outcome
}

// claim reserves channelID on this instance first, then through the shared
// locks. The local reservation holds even if the shared lease lapses.
func (o *Orchestrator) claim(ctx context.Context, channelID string) (func(), error) {
	o.mu.Lock()
	if o.busy[channelID] {
		_, inParty := o.parties[channelID]
		o.mu.Unlock()
		if inParty {
			return nil, domain.ErrPartyInProgress
		}
		return nil, domain.ErrRoundInProgress
	}
	o.busy[channelID] = true
	o.mu.Unlock()

	unmark := func() {
		o.mu.Lock()
		delete(o.busy, channelID)
		o.mu.Unlock()
	}

	release, ok, err := o.deps.Locks.Acquire(ctx, channelID)
	if err != nil {
		unmark()
		return nil, fmt.Errorf("lock channel: %w", err)
	}
	if !ok {
		unmark()
		return nil, domain.ErrRoundInProgress
	}
	return func() {
		release()
		unmark()
	}, nil
}

func (o *Orchestrator) party(channelID string) *Party {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.parties[channelID]
}

func (o *Orchestrator) track(messageID string, round *Round) {
	o.mu.Lock()
	o.rounds[messageID] = round
	o.mu.Unlock()
}

func (o *Orchestrator) untrack(messageID string) {
	o.mu.Lock()
	delete(o.rounds, messageID)
	o.mu.Unlock()
}

// playRound posts the question, keeps the round active until the deadline
// timer fires, then scores and renders it.
func (o *Orchestrator) playRound(ctx context.Context, channelID string, question domain.Question) (RoundResult, error) {
	round := NewRound(channelID, question, o.deps.Clock.Now)

	messageID, err := o.deps.Chat.SendEmbed(ctx, channelID, questionEmbed(question))
	if err != nil {
		roundsTotal.WithLabelValues("failed").Inc()
		return RoundResult{}, fmt.Errorf("post question: %w", err)
	}
	for _, label := range question.Labels() {
		if err := o.deps.Chat.AddReaction(ctx, channelID, messageID, label.Emoji()); err != nil {
			o.deps.Logger.Warn("add option reaction", "message", messageID, "label", label, "error", err)
		}
	}

	o.track(messageID, round)
	defer o.untrack(messageID)

	timeout := o.settings.RoundTimeout
	if err := round.Activate(messageID, o.deps.Clock.Now().Add(timeout)); err != nil {
		return RoundResult{}, err
	}
	deadline := o.deps.Clock.After(timeout)

	select {
	case <-deadline:
	case <-ctx.Done():
		_, _ = round.BeginScoring()
		_ = round.Close()
		roundsTotal.WithLabelValues("aborted").Inc()
		return RoundResult{}, ctx.Err()
	}

	votes, err := round.BeginScoring()
	if err != nil {
		return RoundResult{}, err
	}
	roundParticipants.Observe(float64(len(votes)))

	result, err := o.settle(ctx, question, votes)
	_ = round.Close()
	if err != nil {
		roundsTotal.WithLabelValues("failed").Inc()
		return RoundResult{}, err
	}
	if _, err := o.deps.Chat.SendEmbed(ctx, channelID, resultEmbed(result)); err != nil {
		o.deps.Logger.Error("send round results", "channel", channelID, "error", err)
	}
	roundsTotal.WithLabelValues("completed").Inc()
	return result, nil
}

// settle scores the snapshot and requests the XP deltas.
func (o *Orchestrator) settle(ctx context.Context, question domain.Question, votes []domain.Vote) (RoundResult, error) {
	levels := make(map[string]int, len(votes))
	for _, vote := range votes {
		level, err := o.deps.Members.Level(ctx, vote.PlayerID)
		if errors.Is(err, domain.ErrMemberNotFound) {
			o.deps.Logger.Info("skipping unknown member", "player", vote.PlayerID)
			continue
		}
		if err != nil {
			return RoundResult{}, fmt.Errorf("member level %s: %w", vote.PlayerID, err)
		}
		levels[vote.PlayerID] = level
	}

	card := Score(votes, question.Answer, levels)
	result := RoundResult{
		QuestionID: question.ID,
		Answer:     question.Answer,
		Answered:   card.Answered,
	}
	for _, award := range card.Winners {
		placement, ok, err := o.award(ctx, award)
		if err != nil {
			return RoundResult{}, err
		}
		if ok {
			result.Winners = append(result.Winners, placement)
		}
	}
	for _, award := range card.Losers {
		placement, ok, err := o.award(ctx, award)
		if err != nil {
			return RoundResult{}, err
		}
		if ok {
			result.Losers = append(result.Losers, placement)
		}
	}
	return result, nil
}

func (o *Orchestrator) award(ctx context.Context, award Award) (Placement, bool, error) {
	member, err := o.deps.Members.Member(ctx, award.PlayerID)
	if err == nil {
		err = o.deps.Members.ApplyXPDelta(ctx, award.PlayerID, award.Delta)
	}
	if errors.Is(err, domain.ErrMemberNotFound) {
		o.deps.Logger.Info("skipping unknown member", "player", award.PlayerID)
		return Placement{}, false, nil
	}
	if err != nil {
		return Placement{}, false, fmt.Errorf("apply xp %s: %w", award.PlayerID, err)
	}
	xpGranted.WithLabelValues("round").Add(float64(absInt(award.Delta)))
	return Placement{
		PlayerID: award.PlayerID,
		Name:     domain.NormalizeName(member.Name, member.ID),
		Rank:     award.Rank,
		Delta:    award.Delta,
	}, true, nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
