package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"guild-quiz-bot/internal/domain"
)

// Accrual grants a fixed amount of XP for every plain message.
type Accrual struct {
	members MemberStore
	xp      int
	prefix  string
	logger  *slog.Logger
}

func NewAccrual(members MemberStore, xp int, prefix string, logger *slog.Logger) *Accrual {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accrual{members: members, xp: xp, prefix: prefix, logger: logger}
}

// Handle reports whether XP was requested for the message author.
// Bots, direct messages, commands and unknown members are skipped.
func (a *Accrual) Handle(ctx context.Context, msg domain.ChatMessage) (bool, error) {
	if msg.AuthorIsBot || msg.Direct || a.xp == 0 {
		return false, nil
	}
	if a.prefix != "" && strings.HasPrefix(msg.Content, a.prefix) {
		return false, nil
	}

	exists, err := a.members.Exists(ctx, msg.AuthorID)
	if err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	if !exists {
		a.logger.Debug("message from unregistered member", "author", msg.AuthorID)
		return false, nil
	}

	err = a.members.ApplyXPDelta(ctx, msg.AuthorID, a.xp)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("apply message xp: %w", err)
	}
	xpGranted.WithLabelValues("message").Add(float64(a.xp))
	return true, nil
}
