package domain

import (
	"strings"
	"time"
)

// Label identifies a proposition of a question ("A", "B", ...).
type Label string

// regionalIndicatorA is the code point of the regional indicator for 'A'.
const regionalIndicatorA = 0x1F1E6

// Emoji returns the regional indicator emoji players react with for the label.
func (l Label) Emoji() string {
	if !l.Valid() {
		return ""
	}
	return string(rune(regionalIndicatorA + int(l[0]-'A')))
}

// Valid reports whether the label is a single upper-case letter.
func (l Label) Valid() bool {
	return len(l) == 1 && l[0] >= 'A' && l[0] <= 'Z'
}

// LabelAt returns the label for a zero-based proposition index.
func LabelAt(i int) Label {
	if i < 0 || i >= 26 {
		return ""
	}
	return Label(rune('A' + i))
}

// LabelFromEmoji maps a regional indicator emoji back to its label.
func LabelFromEmoji(emoji string) (Label, bool) {
	runes := []rune(emoji)
	if len(runes) != 1 {
		return "", false
	}
	offset := int(runes[0]) - regionalIndicatorA
	if offset < 0 || offset >= 26 {
		return "", false
	}
	return Label(rune('A' + offset)), true
}

// Question is immutable once drawn from the question store.
// Propositions are rendered lines such as "A) Paris", in label order.
type Question struct {
	ID           string   `json:"id"`
	Theme        string   `json:"theme"`
	Prompt       string   `json:"prompt"`
	Propositions []string `json:"propositions"`
	Answer       Label    `json:"answer"`
	Author       string   `json:"author"`
}

// Labels returns the selectable labels, one per proposition.
func (q Question) Labels() []Label {
	labels := make([]Label, 0, len(q.Propositions))
	for i := range q.Propositions {
		if l := LabelAt(i); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// HasLabel reports whether l selects one of the question's propositions.
func (q Question) HasLabel(l Label) bool {
	if !l.Valid() {
		return false
	}
	return int(l[0]-'A') < len(q.Propositions)
}

// Vote is one ledger entry: the label a player currently holds.
type Vote struct {
	PlayerID string
	Label    Label
	CastAt   time.Time
}

// Member is the externally owned view of a registered player.
type Member struct {
	ID    string
	Name  string
	XP    int
	Level int
}

// LevelForXP derives the member level stored alongside experience points.
func LevelForXP(xp int) int {
	level := 1
	for need := 100; xp >= need; need += 100 * (level + 1) {
		level++
	}
	return level
}

// Embed is a rich message rendered by the chat platform.
type Embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author,omitempty"`
	Footer      string `json:"footer,omitempty"`
	Colour      int    `json:"colour"`
}

// ChatMessage is an inbound text message seen by the bot.
type ChatMessage struct {
	ID          string `json:"messageId"`
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
	Direct      bool   `json:"direct"`
	AuthorID    string `json:"authorId"`
	AuthorName  string `json:"authorName"`
	AuthorIsBot bool   `json:"authorIsBot"`
	Content     string `json:"content"`
}

// ReactionEvent reports a reaction added to or removed from a message.
type ReactionEvent struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	PlayerID  string `json:"userId"`
	Emoji     string `json:"emoji"`
	IsBot     bool   `json:"isBot"`
	Added     bool   `json:"-"`
}

// LeaderboardEntry is one ranked line of a party leaderboard.
type LeaderboardEntry struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Wins        int    `json:"wins"`
}

// Leaderboard captures the ordered standings of a party.
type Leaderboard struct {
	ChannelID string             `json:"channelId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// NormalizeName trims a display name, falling back to the id.
func NormalizeName(name, id string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return id
}
