package app

import (
	"fmt"
	"math/rand"
	"strings"

	"guild-quiz-bot/internal/domain"
)

var embedColours = []int{0xFFFF00, 0x0000FF, 0xFF0000, 0xFF75FF, 0x00FF00, 0x757575, 0x75FF75}

var timeoutLines = []string{
	"Time is up!",
	"Ding ding, it's over",
	"Pencils down!",
	"That's a wrap",
	"The last grain of sand has fallen",
	"Have you seen the time? Round over!",
}

var medals = []string{":first_place:", ":second_place:", ":third_place:"}

func pick[T any](items []T) T {
	return items[rand.Intn(len(items))]
}

func questionEmbed(q domain.Question) domain.Embed {
	return domain.Embed{
		Title:       q.Prompt,
		Description: strings.Join(q.Propositions, "\n"),
		Author:      q.Theme,
		Footer:      "Author: " + q.Author,
		Colour:      pick(embedColours),
	}
}

func resultEmbed(result RoundResult) domain.Embed {
	var b strings.Builder
	if result.Answered == 0 {
		b.WriteString("Nobody answered this question.")
	}
	if len(result.Winners) > 0 {
		b.WriteString("**Winners**:\n")
		for _, w := range result.Winners {
			fmt.Fprintf(&b, "%d. %s: +%dXP\n", w.Rank, w.Name, w.Delta)
		}
	}
	if len(result.Losers) > 0 {
		b.WriteString("\n**Losers**:\n")
		for _, l := range result.Losers {
			fmt.Fprintf(&b, ":small_red_triangle_down: %s: %dXP\n", l.Name, l.Delta)
		}
	}
	return domain.Embed{
		Title:       ":hourglass: Question results:",
		Description: b.String(),
		Footer:      pick(timeoutLines),
		Colour:      pick(embedColours),
	}
}

func leaderboardEmbed(lb domain.Leaderboard) domain.Embed {
	var b strings.Builder
	for i, entry := range lb.Entries {
		place := fmt.Sprint(i + 1)
		if i < len(medals) {
			place = medals[i]
		}
		fmt.Fprintf(&b, "%s  %s : %d points\n", place, entry.DisplayName, entry.Wins)
	}
	return domain.Embed{
		Title:       "Quiz rankings:",
		Description: b.String(),
		Colour:      0x00FF00,
	}
}

func thanksEmbed(authorName string) domain.Embed {
	return domain.Embed{
		Title:       "Thanks!",
		Description: authorName + " added a new question!",
		Author:      authorName,
		Colour:      0x5A546C,
	}
}
