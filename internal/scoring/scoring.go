// Package scoring holds the pure score, level and ranking arithmetic.
// Both the in-round feedback score and the authoritative end-of-game
// score are computed through RoundScore so the two can never drift.
package scoring

import (
	"sort"

	"math-game-service/internal/domain"
)

// multipliers maps a tier to its score multiplier for rooms of
// 2, 3 and 4-or-more players.
var multipliers = map[domain.Tier][3]int{
	domain.TierEasy:   {5, 7, 11},
	domain.TierNormal: {10, 12, 16},
	domain.TierHard:   {15, 17, 21},
	domain.TierExpert: {20, 22, 26},
}

// RoundScore computes the score for one round: every 4 wrong answers
// cancel one correct answer, the remainder is scaled by the tier and
// room-size multiplier, and the result never goes below zero.
func RoundScore(correct, wrong int, tier domain.Tier, participants int) int {
	m, ok := multipliers[tier]
	if !ok {
		m = multipliers[domain.TierEasy]
	}

	bucket := 2
	switch {
	case participants <= 2:
		bucket = 0
	case participants == 3:
		bucket = 1
	}

	score := (correct - wrong/4) * m[bucket]
	if score < 0 {
		return 0
	}
	return score
}

var levelThresholds = []int{1500, 2500, 3500, 4500, 5500, 6500, 7500, 8500, 9500, 10000000}

var levelNames = []string{
	"Rookie",
	"Pavement Engineer",
	"Lazy Boss",
	"Eager Rabbit",
	"Smart",
	"Clever",
	"Calculator",
	"Guru",
	"Champion",
	"Einstein",
	"Beyond Human",
}

// Level maps a cumulative score onto the 11-step level ladder.
func Level(score int) (int, string) {
	for i, limit := range levelThresholds {
		if score < limit {
			return i, levelNames[i]
		}
	}
	return len(levelThresholds), levelNames[len(levelThresholds)]
}

// PlayerResult is one participant's outcome for a finished round.
type PlayerResult struct {
	UserID  string
	Correct int
	Wrong   int
	Score   int
}

// Rank sorts results by round score descending, breaking ties by user
// ID so the order is deterministic.
func Rank(results []PlayerResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].UserID < results[j].UserID
	})
}

// MaxScore returns the winning score of a ranked or unranked result
// set. Every participant matching it is a winner.
func MaxScore(results []PlayerResult) int {
	max := 0
	for _, r := range results {
		if r.Score > max {
			max = r.Score
		}
	}
	return max
}
