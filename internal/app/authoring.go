package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guild-quiz-bot/internal/domain"
)

const (
	propositionSeparator = "/"
	answerMarker         = "*"
)

// AuthoringSettings bounds each prompt of the question authoring flow.
type AuthoringSettings struct {
	ThemeTimeout        time.Duration
	QuestionTimeout     time.Duration
	PropositionsTimeout time.Duration
	AuthorXP            int
}

func (s AuthoringSettings) withDefaults() AuthoringSettings {
	if s.ThemeTimeout <= 0 {
		s.ThemeTimeout = 30 * time.Second
	}
	if s.QuestionTimeout <= 0 {
		s.QuestionTimeout = 60 * time.Second
	}
	if s.PropositionsTimeout <= 0 {
		s.PropositionsTimeout = 180 * time.Second
	}
	return s
}

// Authoring collects a new question from its author through three prompts.
type Authoring struct {
	deps     Deps
	inbox    *Inbox
	settings AuthoringSettings
}

func NewAuthoring(deps Deps, inbox *Inbox, settings AuthoringSettings) *Authoring {
	return &Authoring{
		deps:     deps.withDefaults(),
		inbox:    inbox,
		settings: settings.withDefaults(),
	}
}

// Run drives the flow started by cmd. Nothing is stored unless every step
// is answered in time and the propositions carry exactly one answer marker.
func (a *Authoring) Run(ctx context.Context, cmd domain.ChatMessage) (domain.Question, error) {
	if err := a.deps.Chat.DeleteMessage(ctx, cmd.ChannelID, cmd.ID); err != nil {
		a.deps.Logger.Warn("delete authoring command", "message", cmd.ID, "error", err)
	}

	theme, err := a.ask(ctx, cmd, "What is the theme of your question? (e.g. Computer science)", a.settings.ThemeTimeout)
	if err != nil {
		return domain.Question{}, a.abort(ctx, cmd, err)
	}
	prompt, err := a.ask(ctx, cmd, "What is your question?", a.settings.QuestionTimeout)
	if err != nil {
		return domain.Question{}, a.abort(ctx, cmd, err)
	}
	rawPropositions, err := a.ask(ctx, cmd,
		"What are the propositions (separated by /, at least 2)?\n"+
			"Put a * at the end of the right one (e.g. P1* / P2 / P3)",
		a.settings.PropositionsTimeout)
	if err != nil {
		return domain.Question{}, a.abort(ctx, cmd, err)
	}

	propositions, answer, err := ParsePropositions(rawPropositions)
	if err != nil {
		a.deps.Logger.Error("rejected question submission", "author", cmd.AuthorID, "question", prompt, "error", err)
		a.notify(ctx, cmd.AuthorID, "Your question was not saved: mark exactly one proposition with a * (e.g. P1* / P2 / P3).")
		return domain.Question{}, err
	}

	question, err := a.deps.Questions.Add(ctx, domain.Question{
		Theme:        strings.TrimSpace(theme),
		Prompt:       strings.TrimSpace(prompt),
		Propositions: propositions,
		Answer:       answer,
		Author:       domain.NormalizeName(cmd.AuthorName, cmd.AuthorID),
	})
	if err != nil {
		return domain.Question{}, fmt.Errorf("store question: %w", err)
	}

	if a.settings.AuthorXP != 0 {
		err := a.deps.Members.ApplyXPDelta(ctx, cmd.AuthorID, a.settings.AuthorXP)
		switch {
		case errors.Is(err, domain.ErrMemberNotFound):
			a.deps.Logger.Info("question author is not a member", "author", cmd.AuthorID)
		case err != nil:
			a.deps.Logger.Error("reward question author", "author", cmd.AuthorID, "error", err)
		default:
			xpGranted.WithLabelValues("authoring").Add(float64(a.settings.AuthorXP))
		}
	}
	if _, err := a.deps.Chat.SendEmbed(ctx, cmd.ChannelID, thanksEmbed(question.Author)); err != nil {
		a.deps.Logger.Warn("send authoring thanks", "channel", cmd.ChannelID, "error", err)
	}
	return question, nil
}

// ask posts a prompt and waits for the author's reply; both are deleted
// once answered.
func (a *Authoring) ask(ctx context.Context, cmd domain.ChatMessage, prompt string, timeout time.Duration) (string, error) {
	expected := a.inbox.Expect(cmd.ChannelID, cmd.AuthorID)
	promptID, err := a.deps.Chat.SendText(ctx, cmd.ChannelID, prompt)
	if err != nil {
		expected.Cancel()
		return "", fmt.Errorf("send prompt: %w", err)
	}
	reply, err := expected.Wait(ctx, a.deps.Clock, timeout)
	a.cleanup(ctx, cmd.ChannelID, promptID)
	if err != nil {
		return "", err
	}
	a.cleanup(ctx, cmd.ChannelID, reply.ID)
	return reply.Content, nil
}

func (a *Authoring) cleanup(ctx context.Context, channelID, messageID string) {
	if messageID == "" {
		return
	}
	if err := a.deps.Chat.DeleteMessage(ctx, channelID, messageID); err != nil {
		a.deps.Logger.Debug("delete authoring message", "message", messageID, "error", err)
	}
}

func (a *Authoring) abort(ctx context.Context, cmd domain.ChatMessage, err error) error {
	if errors.Is(err, domain.ErrAuthoringTimeout) {
		a.notify(ctx, cmd.AuthorID, "You took too long to add the question, please try again.")
	}
	return err
}

func (a *Authoring) notify(ctx context.Context, userID, text string) {
	if err := a.deps.Chat.SendPrivate(ctx, userID, text); err != nil {
		a.deps.Logger.Warn("send private notice", "user", userID, "error", err)
	}
}

// ParsePropositions splits raw on "/" and relabels each proposition "A) ...",
// "B) ...". The proposition ending with "*" is the answer.
func ParsePropositions(raw string) ([]string, domain.Label, error) {
	var (
		propositions []string
		answer       domain.Label
		marked       int
	)
	for _, part := range strings.Split(raw, propositionSeparator) {
		text := strings.TrimSpace(part)
		if text == "" {
			continue
		}
		label := domain.LabelAt(len(propositions))
		if label == "" {
			return nil, "", fmt.Errorf("%w: too many propositions", domain.ErrMalformedQuestion)
		}
		if strings.HasSuffix(text, answerMarker) {
			text = strings.TrimSpace(strings.TrimRight(text, answerMarker))
			answer = label
			marked++
		}
		if text == "" {
			return nil, "", fmt.Errorf("%w: empty proposition %s", domain.ErrMalformedQuestion, label)
		}
		propositions = append(propositions, fmt.Sprintf("%s) %s", label, text))
	}

	switch {
	case len(propositions) < 2:
		return nil, "", fmt.Errorf("%w: need at least two propositions", domain.ErrMalformedQuestion)
	case marked == 0:
		return nil, "", fmt.Errorf("%w: no proposition marked as the answer", domain.ErrMalformedQuestion)
	case marked > 1:
		return nil, "", fmt.Errorf("%w: %d propositions marked as the answer", domain.ErrMalformedQuestion, marked)
	}
	return propositions, answer, nil
}
