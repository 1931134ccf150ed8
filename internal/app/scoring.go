package app

import (
	"math"

	"guild-quiz-bot/internal/domain"
)

// Award is the XP delta requested for one player after a round.
type Award struct {
	PlayerID string
	Rank     int // 1-based among winners, 0 for losers
	Delta    int
}

// Scorecard partitions the players who answered a closed round.
type Scorecard struct {
	Answered int
	Winners  []Award
	Losers   []Award
}

// WinScore is the XP gained by the winner at rank among answered players.
func WinScore(rank, answered, level int) int {
	if rank < 1 {
		rank = 1
	}
	if level < 1 {
		level = 1
	}
	return int(math.Ceil(float64(200+level) * math.Sqrt(float64(answered)) / (math.Sqrt(float64(rank)) * float64(level))))
}

// LoseScore is the XP lost by each wrong answer among answered players.
func LoseScore(answered int) int {
	return int(math.Ceil(20 * math.Sqrt(float64(answered))))
}

// Score classifies votes against the correct label. Votes must be in ledger
// order: winners are ranked in that order. Players missing from levels are
// unknown members; they count towards the answered total but get no award.
func Score(votes []domain.Vote, correct domain.Label, levels map[string]int) Scorecard {
	card := Scorecard{Answered: len(votes)}
	if card.Answered == 0 {
		return card
	}
	lose := LoseScore(card.Answered)
	rank := 0
	for _, vote := range votes {
		level, known := levels[vote.PlayerID]
		if !known {
			continue
		}
		if vote.Label == correct {
			rank++
			card.Winners = append(card.Winners, Award{
				PlayerID: vote.PlayerID,
				Rank:     rank,
				Delta:    WinScore(rank, card.Answered, level),
			})
			continue
		}
		card.Losers = append(card.Losers, Award{PlayerID: vote.PlayerID, Delta: -lose})
	}
	return card
}
