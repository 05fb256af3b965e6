// internal/game/cpu.go
package game

import (
	"github.com/jason-s-yu/njuka/internal/models"
)

// maxCPUTurns bounds a run of consecutive computer turns.
const maxCPUTurns = 16

// PlayCPUTurns plays every consecutive turn held by a computer-controlled seat.
// It returns the number of turns played and whether one of them produced a winner.
func (g *NjukaGame) PlayCPUTurns() (int, bool) {
	turns := 0
	for turns < maxCPUTurns && !g.GameOver {
		p := g.CurrentPlayerRef()
		if p == nil || !p.IsCPU {
			break
		}

		won, err := g.Draw("")
		if err != nil {
			break
		}
		turns++
		if won {
			return turns, true
		}

		won, err = g.Discard("", chooseDiscard(p.Hand))
		if err != nil {
			break
		}
		if won {
			return turns, true
		}
	}
	return turns, false
}

// chooseDiscard picks the card whose removal leaves the strongest three-card hand.
func chooseDiscard(hand []models.Card) int {
	best, bestScore := 0, -1
	for i := range hand {
		rest := make([]models.Card, 0, len(hand)-1)
		rest = append(rest, hand[:i]...)
		rest = append(rest, hand[i+1:]...)
		if s := handScore(rest); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// handScore rewards a single pair and rank adjacency, the two halves of a winning hand.
func handScore(cards []models.Card) int {
	score := 0
	counts := make(map[int]int)
	for _, c := range cards {
		counts[c.RankValue()]++
	}
	for _, n := range counts {
		if n == 2 {
			score += 2
		}
	}
	for i := 0; i < len(cards); i++ {
		for j := i + 1; j < len(cards); j++ {
			if adjacent(cards[i].RankValue(), cards[j].RankValue()) {
				score++
			}
		}
	}
	return score
}

func adjacent(a, b int) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d == 1 || d == 12
}
