package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"guild-quiz-bot/internal/domain"
)

// DispatcherSettings configures command parsing.
type DispatcherSettings struct {
	Prefix          string
	ChannelKeywords []string
}

// Dispatcher routes chat events to the quiz use cases.
type Dispatcher struct {
	orchestrator *Orchestrator
	authoring    *Authoring
	accrual      *Accrual
	inbox        *Inbox
	chat         Chat
	members      MemberStore
	settings     DispatcherSettings
	logger       *slog.Logger
}

func NewDispatcher(deps Deps, orchestrator *Orchestrator, authoring *Authoring, accrual *Accrual, inbox *Inbox, settings DispatcherSettings) *Dispatcher {
	deps = deps.withDefaults()
	if settings.Prefix == "" {
		settings.Prefix = "!"
	}
	if len(settings.ChannelKeywords) == 0 {
		settings.ChannelKeywords = []string{"quiz", "test"}
	}
	return &Dispatcher{
		orchestrator: orchestrator,
		authoring:    authoring,
		accrual:      accrual,
		inbox:        inbox,
		chat:         deps.Chat,
		members:      deps.Members,
		settings:     settings,
		logger:       deps.Logger,
	}
}

// HandleMessage blocks for as long as the command it carries runs.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg domain.ChatMessage) {
	if msg.AuthorIsBot {
		return
	}
	if d.inbox.Deliver(msg) {
		return
	}

	name, args, ok := parseCommand(d.settings.Prefix, msg.Content)
	if !ok {
		if _, err := d.accrual.Handle(ctx, msg); err != nil {
			d.logger.Error("message xp", "author", msg.AuthorID, "error", err)
		}
		return
	}
	if !d.quizChannel(msg) {
		return
	}

	var err error
	switch name {
	case "question", "q":
		_, err = d.orchestrator.AskOne(ctx, msg.ChannelID)
	case "quiz":
		_, err = d.orchestrator.StartParty(ctx, msg.ChannelID, partySizeArg(args))
	case "rank":
		_, _, err = d.orchestrator.Rank(ctx, msg.ChannelID)
	case "question_add", "q_add":
		_, err = d.authoring.Run(ctx, msg)
	default:
		return
	}
	if err != nil {
		d.report(ctx, msg, name, err)
	}
}

// HandleReaction applies a reaction added or removed on a quiz message.
func (d *Dispatcher) HandleReaction(ctx context.Context, ev domain.ReactionEvent) VoteOutcome {
	if ev.IsBot {
		return VoteIgnored
	}
	return d.orchestrator.HandleReaction(ctx, ev)
}

// HandleMemberJoin registers members the store does not know yet.
func (d *Dispatcher) HandleMemberJoin(ctx context.Context, member domain.Member) error {
	exists, err := d.members.Exists(ctx, member.ID)
	if err != nil {
		return fmt.Errorf("check member: %w", err)
	}
	if exists {
		return nil
	}
	member.Name = domain.NormalizeName(member.Name, member.ID)
	if member.Level < 1 {
		member.Level = domain.LevelForXP(member.XP)
	}
	if err := d.members.Register(ctx, member); err != nil {
		return fmt.Errorf("register member: %w", err)
	}
	d.logger.Info("registered member", "member", member.ID)
	return nil
}

func (d *Dispatcher) report(ctx context.Context, msg domain.ChatMessage, command string, err error) {
	var text string
	switch {
	case errors.Is(err, domain.ErrPartyInProgress), errors.Is(err, domain.ErrRoundInProgress):
		text = err.Error() + "."
	case errors.Is(err, domain.ErrNoQuestions):
		text = "There are no quiz questions yet, add one with " + d.settings.Prefix + "question_add."
	case errors.Is(err, domain.ErrAuthoringTimeout), errors.Is(err, domain.ErrMalformedQuestion):
		return
	case errors.Is(err, context.Canceled):
		return
	default:
		d.logger.Error("quiz command failed", "command", command, "channel", msg.ChannelID, "error", err)
		text = "Something went wrong while running the quiz, please try again later."
	}
	if _, sendErr := d.chat.SendText(ctx, msg.ChannelID, text); sendErr != nil {
		d.logger.Warn("report command failure", "channel", msg.ChannelID, "error", sendErr)
	}
}

func (d *Dispatcher) quizChannel(msg domain.ChatMessage) bool {
	if msg.Direct {
		return false
	}
	name := strings.ToLower(msg.ChannelName)
	for _, keyword := range d.settings.ChannelKeywords {
		if keyword != "" && strings.Contains(name, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

func parseCommand(prefix, content string) (string, []string, bool) {
	if !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

func partySizeArg(args []string) int {
	if len(args) == 0 {
		return 0
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
