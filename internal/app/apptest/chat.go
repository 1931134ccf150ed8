package apptest

import (
	"context"
	"fmt"
	"sync"

	"guild-quiz-bot/internal/domain"
)

// Sent is one message recorded by Chat.
type Sent struct {
	ChannelID string
	MessageID string
	Embed     domain.Embed
	Text      string
}

// Reaction is one reaction request recorded by Chat.
type Reaction struct {
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
}

// Chat records every action request and hands out sequential message ids.
type Chat struct {
	mu        sync.Mutex
	seq       int
	Embeds    []Sent
	Texts     []Sent
	Private   map[string][]string
	Added     []Reaction
	Removed   []Reaction
	Deleted   []string
	EmbedErr  error
	RemoveErr error
}

func NewChat() *Chat {
	return &Chat{Private: make(map[string][]string)}
}

func (c *Chat) nextID() string {
	c.seq++
	return fmt.Sprintf("msg-%d", c.seq)
}

func (c *Chat) SendEmbed(_ context.Context, channelID string, embed domain.Embed) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EmbedErr != nil {
		return "", c.EmbedErr
	}
	id := c.nextID()
	c.Embeds = append(c.Embeds, Sent{ChannelID: channelID, MessageID: id, Embed: embed})
	return id, nil
}

func (c *Chat) SendText(_ context.Context, channelID, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID()
	c.Texts = append(c.Texts, Sent{ChannelID: channelID, MessageID: id, Text: text})
	return id, nil
}

func (c *Chat) SendPrivate(_ context.Context, userID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Private[userID] = append(c.Private[userID], text)
	return nil
}

func (c *Chat) AddReaction(_ context.Context, channelID, messageID, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Added = append(c.Added, Reaction{ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (c *Chat) RemoveReaction(_ context.Context, channelID, messageID, userID, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RemoveErr != nil {
		return c.RemoveErr
	}
	c.Removed = append(c.Removed, Reaction{ChannelID: channelID, MessageID: messageID, UserID: userID, Emoji: emoji})
	return nil
}

func (c *Chat) DeleteMessage(_ context.Context, _, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deleted = append(c.Deleted, messageID)
	return nil
}

// EmbedCount returns how many embeds were sent.
func (c *Chat) EmbedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Embeds)
}

// LastEmbed returns the most recent embed, if any.
func (c *Chat) LastEmbed() (Sent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Embeds) == 0 {
		return Sent{}, false
	}
	return c.Embeds[len(c.Embeds)-1], true
}

// TextsSnapshot returns a copy of the plain texts sent so far.
func (c *Chat) TextsSnapshot() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.Texts...)
}

// RemovedSnapshot returns a copy of the reaction removals requested so far.
func (c *Chat) RemovedSnapshot() []Reaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Reaction(nil), c.Removed...)
}

// PrivateTo returns the private notices sent to userID.
func (c *Chat) PrivateTo(userID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Private[userID]...)
}
