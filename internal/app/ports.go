package app

import (
	"context"

	"guild-quiz-bot/internal/domain"
)

// Chat is the action surface of the chat platform bridge.
// Delivery is best effort; callers decide which failures abort a flow.
type Chat interface {
	SendEmbed(ctx context.Context, channelID string, embed domain.Embed) (string, error)
	SendText(ctx context.Context, channelID, text string) (string, error)
	SendPrivate(ctx context.Context, userID, text string) error
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveReaction(ctx context.Context, channelID, messageID, userID, emoji string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// MemberStore owns experience points and levels of registered players.
// Unknown players are reported with domain.ErrMemberNotFound.
type MemberStore interface {
	Exists(ctx context.Context, memberID string) (bool, error)
	Member(ctx context.Context, memberID string) (domain.Member, error)
	Level(ctx context.Context, memberID string) (int, error)
	ApplyXPDelta(ctx context.Context, memberID string, delta int) error
	Register(ctx context.Context, member domain.Member) error
}

// QuestionStore draws questions for rounds and stores authored ones.
type QuestionStore interface {
	// Draw returns up to n distinct random questions, or domain.ErrNoQuestions.
	Draw(ctx context.Context, n int) ([]domain.Question, error)
	Add(ctx context.Context, question domain.Question) (domain.Question, error)
}

// ChannelLocks provides per-channel mutual exclusion for parties and rounds.
type ChannelLocks interface {
	// Acquire returns false when another holder owns the channel.
	Acquire(ctx context.Context, channelID string) (release func(), ok bool, err error)
}
