package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"guild-quiz-bot/internal/app"
	"guild-quiz-bot/internal/app/apptest"
	"guild-quiz-bot/internal/domain"
	"guild-quiz-bot/internal/infra/memory"
	infraredis "guild-quiz-bot/internal/infra/redis"
	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type harness struct {
	clock   *apptest.FakeClock
	chat    *apptest.Chat
	members *memory.MemberStore
	locks   *memory.ChannelLocks
	deps    app.Deps
	orch    *app.Orchestrator
}

func newHarness(t *testing.T, settings app.Settings, questions ...domain.Question) *harness {
	t.Helper()
	if len(questions) == 0 {
		questions = []domain.Question{sampleQuestion("q1", "A")}
	}
	h := &harness{
		clock: apptest.NewFakeClock(fixedNow()),
		chat:  apptest.NewChat(),
		members: memory.NewMemberStore(
			domain.Member{ID: "u1", Name: "Alice"},
			domain.Member{ID: "u2", Name: "Bob"},
		),
		locks: memory.NewChannelLocks(),
	}
	h.deps = app.Deps{
		Chat:      h.chat,
		Members:   h.members,
		Questions: memory.NewQuestionRepository(memory.NewStaticQuestionLoader(questions...), time.Minute),
		Locks:     h.locks,
		Clock:     h.clock,
	}
	h.orch = app.NewOrchestrator(h.deps, settings)
	return h
}

type askResult struct {
	result app.RoundResult
	err    error
}

func (h *harness) askOne(ctx context.Context, channelID string) <-chan askResult {
	done := make(chan askResult, 1)
	go func() {
		result, err := h.orch.AskOne(ctx, channelID)
		done <- askResult{result: result, err: err}
	}()
	return done
}

type partyResult struct {
	lb  domain.Leaderboard
	err error
}

func (h *harness) startParty(ctx context.Context, channelID string, n int) <-chan partyResult {
	done := make(chan partyResult, 1)
	go func() {
		lb, err := h.orch.StartParty(ctx, channelID, n)
		done <- partyResult{lb: lb, err: err}
	}()
	return done
}

// questionMessage waits for the active round timer and returns the id of
// the question message it belongs to.
func (h *harness) questionMessage(t *testing.T) string {
	t.Helper()
	h.clock.BlockUntil(1)
	sent, ok := h.chat.LastEmbed()
	require.True(t, ok)
	return sent.MessageID
}

func (h *harness) react(messageID, player string, label domain.Label) app.VoteOutcome {
	return h.orch.HandleReaction(context.Background(), domain.ReactionEvent{
		ChannelID: "c1",
		MessageID: messageID,
		PlayerID:  player,
		Emoji:     label.Emoji(),
		Added:     true,
	})
}

func TestAskOneScoresAndAwardsXP(t *testing.T) {
	h := newHarness(t, app.Settings{RoundTimeout: 30 * time.Second})
	done := h.askOne(context.Background(), "c1")

	msg := h.questionMessage(t)
	require.Equal(t, app.VoteAccepted, h.react(msg, "u2", "B"))
	require.Equal(t, app.VoteAccepted, h.react(msg, "u1", "A"))

	h.clock.Advance(30 * time.Second)
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, 2, res.result.Answered)
	require.Equal(t, []app.Placement{{PlayerID: "u1", Name: "Alice", Rank: 1, Delta: 285}}, res.result.Winners)
	require.Equal(t, []app.Placement{{PlayerID: "u2", Name: "Bob", Delta: -29}}, res.result.Losers)

	alice, err := h.members.Member(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 285, alice.XP)
	bob, err := h.members.Member(context.Background(), "u2")
	require.NoError(t, err)
	require.Equal(t, -29, bob.XP)

	last, _ := h.chat.LastEmbed()
	require.Contains(t, last.Embed.Description, "1. Alice: +285XP")
	require.Contains(t, last.Embed.Description, "Bob: -29XP")
	require.False(t, h.locks.Held("c1"))
}

func TestAskOnePostsOptionReactions(t *testing.T) {
	h := newHarness(t, app.Settings{})
	done := h.askOne(context.Background(), "c1")
	msg := h.questionMessage(t)
	h.clock.Advance(30 * time.Second)
	require.NoError(t, (<-done).err)

	var emojis []string
	for _, r := range h.chat.Added {
		require.Equal(t, msg, r.MessageID)
		emojis = append(emojis, r.Emoji)
	}
	require.Equal(t, []string{domain.Label("A").Emoji(), domain.Label("B").Emoji(), domain.Label("C").Emoji()}, emojis)
}

func TestRoundStaysOpenUntilTimer(t *testing.T) {
	h := newHarness(t, app.Settings{RoundTimeout: 30 * time.Second})
	done := h.askOne(context.Background(), "c1")
	msg := h.questionMessage(t)

	h.clock.Advance(29 * time.Second)
	select {
	case <-done:
		require.FailNow(t, "round closed before its timer fired")
	default:
	}
	require.Equal(t, app.VoteAccepted, h.react(msg, "u1", "A"), "votes are accepted until the deadline")

	h.clock.Advance(time.Second)
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, 1, res.result.Answered)
	require.Equal(t, app.VoteDropped, h.react(msg, "u2", "A"), "events after close are dropped")
}

func TestSurplusReactionIsStripped(t *testing.T) {
	h := newHarness(t, app.Settings{})
	done := h.askOne(context.Background(), "c1")
	msg := h.questionMessage(t)

	require.Equal(t, app.VoteAccepted, h.react(msg, "u1", "A"))
	require.Equal(t, app.VoteSurplus, h.react(msg, "u1", "B"))
	require.Equal(t, []apptest.Reaction{{ChannelID: "c1", MessageID: msg, UserID: "u1", Emoji: domain.Label("B").Emoji()}}, h.chat.RemovedSnapshot())

	// The platform echoes the removal; it must not touch the held vote.
	outcome := h.orch.HandleReaction(context.Background(), domain.ReactionEvent{
		ChannelID: "c1", MessageID: msg, PlayerID: "u1", Emoji: domain.Label("B").Emoji(),
	})
	require.Equal(t, app.VoteIgnored, outcome)

	h.clock.Advance(30 * time.Second)
	res := <-done
	require.NoError(t, res.err)
	require.Len(t, res.result.Winners, 1)
}

func TestRemovalFailureKeepsRoundRunning(t *testing.T) {
	h := newHarness(t, app.Settings{})
	h.chat.RemoveErr = errors.New("missing permission")
	done := h.askOne(context.Background(), "c1")
	msg := h.questionMessage(t)

	h.react(msg, "u1", "B")
	require.Equal(t, app.VoteSurplus, h.react(msg, "u1", "A"))

	h.clock.Advance(30 * time.Second)
	res := <-done
	require.NoError(t, res.err)
	require.Len(t, res.result.Losers, 1, "the first label still counts")
}

func TestEmptyRoundReportsNobody(t *testing.T) {
	h := newHarness(t, app.Settings{})
	done := h.askOne(context.Background(), "c1")
	h.questionMessage(t)
	h.clock.Advance(30 * time.Second)

	res := <-done
	require.NoError(t, res.err)
	require.Zero(t, res.result.Answered)
	last, _ := h.chat.LastEmbed()
	require.Contains(t, last.Embed.Description, "Nobody answered this question.")
}

func TestUnknownMemberCountsButIsNotRanked(t *testing.T) {
	h := newHarness(t, app.Settings{})
	done := h.askOne(context.Background(), "c1")
	msg := h.questionMessage(t)

	h.react(msg, "stranger", "A")
	h.react(msg, "u1", "A")
	h.clock.Advance(30 * time.Second)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, 2, res.result.Answered)
	require.Equal(t, []app.Placement{{PlayerID: "u1", Name: "Alice", Rank: 1, Delta: 285}}, res.result.Winners)
}

func TestSecondQuestionInChannelIsRejected(t *testing.T) {
	h := newHarness(t, app.Settings{})
	done := h.askOne(context.Background(), "c1")
	h.questionMessage(t)

	_, err := h.orch.AskOne(context.Background(), "c1")
	require.ErrorIs(t, err, domain.ErrRoundInProgress)

	h.clock.Advance(30 * time.Second)
	require.NoError(t, (<-done).err)
}

func TestChannelsRunIndependently(t *testing.T) {
	h := newHarness(t, app.Settings{})
	first := h.askOne(context.Background(), "c1")
	second := h.askOne(context.Background(), "c2")

	h.clock.BlockUntil(2)
	h.clock.Advance(30 * time.Second)
	require.NoError(t, (<-first).err)
	require.NoError(t, (<-second).err)
}

func TestPostFailureReleasesChannel(t *testing.T) {
	h := newHarness(t, app.Settings{})
	h.chat.EmbedErr = errors.New("channel deleted")

	_, err := h.orch.AskOne(context.Background(), "c1")
	require.Error(t, err)
	require.False(t, h.locks.Held("c1"))
	require.Zero(t, h.clock.Pending(), "no round was opened")
}

func TestNoQuestionsAvailable(t *testing.T) {
	h := newHarness(t, app.Settings{})
	h.deps.Questions = memory.NewQuestionRepository(memory.NewStaticQuestionLoader(), time.Minute)
	orch := app.NewOrchestrator(h.deps, app.Settings{})

	_, err := orch.AskOne(context.Background(), "c1")
	require.ErrorIs(t, err, domain.ErrNoQuestions)
	require.False(t, h.locks.Held("c1"))
}

func TestCancelledRoundClosesWithoutScoring(t *testing.T) {
	h := newHarness(t, app.Settings{})
	ctx, cancel := context.WithCancel(context.Background())
	done := h.askOne(ctx, "c1")
	msg := h.questionMessage(t)
	h.react(msg, "u1", "A")

	cancel()
	res := <-done
	require.ErrorIs(t, res.err, context.Canceled)
	alice, err := h.members.Member(context.Background(), "u1")
	require.NoError(t, err)
	require.Zero(t, alice.XP)
	require.False(t, h.locks.Held("c1"))
}

func TestPartyRunsRoundsAndRanks(t *testing.T) {
	h := newHarness(t, app.Settings{RoundTimeout: 30 * time.Second, RoundPause: 30 * time.Second},
		sampleQuestion("q1", "A"), sampleQuestion("q2", "A"))
	done := h.startParty(context.Background(), "c1", 2)

	msg := h.questionMessage(t)
	h.react(msg, "u1", "A")
	h.clock.Advance(30 * time.Second)

	// Pause between rounds: the party is live and rankable.
	h.clock.BlockUntil(1)
	party, ok := h.orch.Party("c1")
	require.True(t, ok)
	require.Equal(t, 1, party.Played())
	lb, ok, err := h.orch.Rank(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, lb.Entries, 1)

	_, err = h.orch.AskOne(context.Background(), "c1")
	require.ErrorIs(t, err, domain.ErrPartyInProgress)
	_, err = h.orch.StartParty(context.Background(), "c1", 3)
	require.ErrorIs(t, err, domain.ErrPartyInProgress)
	require.Equal(t, 1, party.Played(), "a rejected start leaves the party untouched")

	h.clock.Advance(30 * time.Second)
	msg2 := h.questionMessage(t)
	require.NotEqual(t, msg, msg2)
	h.react(msg2, "u2", "A")
	h.react(msg2, "u1", "B")
	h.clock.Advance(30 * time.Second)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, []domain.LeaderboardEntry{
		{PlayerID: "u1", DisplayName: "Alice", Wins: 1},
		{PlayerID: "u2", DisplayName: "Bob", Wins: 1},
	}, res.lb.Entries)

	last, _ := h.chat.LastEmbed()
	require.Equal(t, "Quiz rankings:", last.Embed.Title)
	require.Contains(t, last.Embed.Description, ":first_place:  Alice : 1 points")

	_, ok = h.orch.Party("c1")
	require.False(t, ok)
	require.False(t, h.locks.Held("c1"))
}

func TestPartyIsCappedByPool(t *testing.T) {
	h := newHarness(t, app.Settings{})
	done := h.startParty(context.Background(), "c1", 5)

	h.questionMessage(t)
	h.clock.Advance(30 * time.Second)

	res := <-done
	require.NoError(t, res.err)
	require.Empty(t, res.lb.Entries)
}

func TestRankWithoutPartyIsNoop(t *testing.T) {
	h := newHarness(t, app.Settings{})
	_, ok, err := h.orch.Rank(context.Background(), "c1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, h.chat.EmbedCount())
}

func TestPartyKeepsChannelWhenSharedLockLapses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	h := newHarness(t, app.Settings{RoundPause: 30 * time.Second},
		sampleQuestion("q1", "A"), sampleQuestion("q2", "A"))
	h.deps.Locks = infraredis.NewChannelLocks(client, time.Minute)
	h.orch = app.NewOrchestrator(h.deps, app.Settings{RoundPause: 30 * time.Second})

	done := h.startParty(context.Background(), "c1", 2)
	h.questionMessage(t)

	// The shared lease expires while the first party is still running.
	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists("quiz:channel:c1"))

	_, err := h.orch.StartParty(context.Background(), "c1", 2)
	require.ErrorIs(t, err, domain.ErrPartyInProgress)
	_, err = h.orch.AskOne(context.Background(), "c1")
	require.ErrorIs(t, err, domain.ErrPartyInProgress)
	require.Equal(t, 1, h.clock.Pending(), "only the first party's round is running")

	party, ok := h.orch.Party("c1")
	require.True(t, ok)
	require.Equal(t, 2, party.Size())

	h.clock.Advance(30 * time.Second)
	h.clock.BlockUntil(1)
	h.clock.Advance(30 * time.Second)
	h.questionMessage(t)
	h.clock.Advance(30 * time.Second)
	require.NoError(t, (<-done).err)

	_, ok = h.orch.Party("c1")
	require.False(t, ok)
}

// grantingLocks never refuses, like a shared lock whose lease has lapsed.
type grantingLocks struct{}

func (grantingLocks) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}

func TestLocalReservationWithoutSharedLock(t *testing.T) {
	h := newHarness(t, app.Settings{})
	h.deps.Locks = grantingLocks{}
	h.orch = app.NewOrchestrator(h.deps, app.Settings{})

	done := h.askOne(context.Background(), "c1")
	h.questionMessage(t)

	_, err := h.orch.AskOne(context.Background(), "c1")
	require.ErrorIs(t, err, domain.ErrRoundInProgress)

	h.clock.Advance(30 * time.Second)
	require.NoError(t, (<-done).err)

	// The reservation is released with the round.
	second := h.askOne(context.Background(), "c1")
	h.questionMessage(t)
	h.clock.Advance(30 * time.Second)
	require.NoError(t, (<-second).err)
}
