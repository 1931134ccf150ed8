package app_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"guild-quiz-bot/internal/app"
	"guild-quiz-bot/internal/domain"
	"guild-quiz-bot/internal/infra/memory"
	"github.com/stretchr/testify/require"
)

func newDispatcher(h *harness) (*app.Dispatcher, *app.Inbox) {
	inbox := app.NewInbox()
	d := app.NewDispatcher(h.deps, h.orch,
		app.NewAuthoring(h.deps, inbox, app.AuthoringSettings{AuthorXP: 500}),
		app.NewAccrual(h.members, 25, "!", nil),
		inbox, app.DispatcherSettings{})
	return d, inbox
}

func quizMessage(content string) domain.ChatMessage {
	return domain.ChatMessage{ID: "m-" + content, ChannelID: "c1", ChannelName: "general-quiz", AuthorID: "u1", AuthorName: "Alice", Content: content}
}

func TestDispatcherPlainMessageGrantsXP(t *testing.T) {
	h := newHarness(t, app.Settings{})
	d, _ := newDispatcher(h)

	d.HandleMessage(context.Background(), quizMessage("hello there"))
	alice, err := h.members.Member(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 25, alice.XP)
}

func TestDispatcherIgnoresCommandsOutsideQuizChannels(t *testing.T) {
	h := newHarness(t, app.Settings{})
	d, _ := newDispatcher(h)

	msg := quizMessage("!q")
	msg.ChannelName = "general"
	d.HandleMessage(context.Background(), msg)

	direct := quizMessage("!q")
	direct.Direct = true
	d.HandleMessage(context.Background(), direct)

	require.Zero(t, h.chat.EmbedCount())
	require.Empty(t, h.chat.TextsSnapshot())
}

func TestDispatcherRunsQuestion(t *testing.T) {
	h := newHarness(t, app.Settings{})
	d, _ := newDispatcher(h)

	done := make(chan struct{})
	go func() {
		d.HandleMessage(context.Background(), quizMessage("!Question"))
		close(done)
	}()
	msg := h.questionMessage(t)

	// A second command while the round runs is refused in the channel.
	d.HandleMessage(context.Background(), quizMessage("!q"))
	texts := h.chat.TextsSnapshot()
	require.Len(t, texts, 1)
	require.Equal(t, domain.ErrRoundInProgress.Error()+".", texts[0].Text)

	require.Equal(t, app.VoteAccepted, d.HandleReaction(context.Background(), domain.ReactionEvent{
		ChannelID: "c1", MessageID: msg, PlayerID: "u2", Emoji: domain.Label("A").Emoji(), Added: true,
	}))
	require.Equal(t, app.VoteIgnored, d.HandleReaction(context.Background(), domain.ReactionEvent{
		ChannelID: "c1", MessageID: msg, PlayerID: "bot", Emoji: domain.Label("A").Emoji(), Added: true, IsBot: true,
	}))

	h.clock.Advance(30 * time.Second)
	<-done
	bob, err := h.members.Member(context.Background(), "u2")
	require.NoError(t, err)
	require.Equal(t, 201, bob.XP)
}

func TestDispatcherRankWithoutPartyIsSilent(t *testing.T) {
	h := newHarness(t, app.Settings{})
	d, _ := newDispatcher(h)

	d.HandleMessage(context.Background(), quizMessage("!rank"))
	require.Zero(t, h.chat.EmbedCount())
	require.Empty(t, h.chat.TextsSnapshot())
}

func TestDispatcherReportsEmptyPool(t *testing.T) {
	h := newHarness(t, app.Settings{})
	h.deps.Questions = memory.NewQuestionRepository(memory.NewStaticQuestionLoader(), time.Minute)
	h.orch = app.NewOrchestrator(h.deps, app.Settings{})
	d, _ := newDispatcher(h)

	d.HandleMessage(context.Background(), quizMessage("!quiz 3"))
	texts := h.chat.TextsSnapshot()
	require.Len(t, texts, 1)
	require.True(t, strings.Contains(texts[0].Text, "!question_add"))
}

func TestDispatcherRoutesAuthoringReplies(t *testing.T) {
	h := newHarness(t, app.Settings{})
	d, inbox := newDispatcher(h)

	done := make(chan struct{})
	go func() {
		d.HandleMessage(context.Background(), quizMessage("!q_add"))
		close(done)
	}()

	for i, content := range []string{"Math", "What is 2 + 2?", "4* / 5"} {
		h.clock.BlockUntil(i + 1)
		require.True(t, inbox.Waiting("c1", "u1"))
		d.HandleMessage(context.Background(), quizMessage(content))
	}
	<-done

	alice, err := h.members.Member(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 500, alice.XP, "replies are not plain messages and earn no message XP")
}

func TestDispatcherRegistersJoiningMembers(t *testing.T) {
	h := newHarness(t, app.Settings{})
	d, _ := newDispatcher(h)
	ctx := context.Background()

	require.NoError(t, d.HandleMemberJoin(ctx, domain.Member{ID: "u3", Name: "  "}))
	carl, err := h.members.Member(ctx, "u3")
	require.NoError(t, err)
	require.Equal(t, 1, carl.Level)
	require.NotEmpty(t, carl.Name)

	require.NoError(t, h.members.ApplyXPDelta(ctx, "u3", 40))
	require.NoError(t, d.HandleMemberJoin(ctx, domain.Member{ID: "u3", Name: "Carl"}))
	carl, err = h.members.Member(ctx, "u3")
	require.NoError(t, err)
	require.Equal(t, 40, carl.XP, "known members are left alone")
}
