// internal/game/rules.go
package game

import (
	"sort"

	"github.com/jason-s-yu/njuka/internal/models"
)

// IsWinningCombination reports whether a 3 or 4 card set holds exactly one pair and
// the two leftover cards are consecutive by rank, with A and K treated as adjacent.
func IsWinningCombination(cards []models.Card) bool {
	if len(cards) != 3 && len(cards) != 4 {
		return false
	}

	counts := make(map[int]int, len(cards))
	for _, c := range cards {
		counts[c.RankValue()]++
	}

	pairVal, pairs := 0, 0
	for v, n := range counts {
		if n == 2 {
			pairVal = v
			pairs++
		}
	}
	if pairs != 1 {
		return false
	}

	var others []int
	for _, c := range cards {
		if v := c.RankValue(); v != pairVal {
			others = append(others, v)
		}
	}
	if len(others) != 2 {
		return false
	}
	sort.Ints(others)

	if others[0] == 1 && others[1] == 13 {
		return true
	}
	return others[1]-others[0] == 1
}

// WinResult identifies the winning seat and the cards that formed the combination.
type WinResult struct {
	PlayerIndex int
	Name        string
	UserID      string
	Hand        []models.Card
}

// FindWinner checks players in table order. A 4-card hand is tested as is; a 3-card hand is
// tested together with the top of the pot. The first match wins.
func FindWinner(players []*models.Player, pot []models.Card) (WinResult, bool) {
	var top *models.Card
	if len(pot) > 0 {
		top = &pot[len(pot)-1]
	}

	for i, p := range players {
		if len(p.Hand) == 4 && IsWinningCombination(p.Hand) {
			return WinResult{PlayerIndex: i, Name: p.Name, UserID: p.UserID, Hand: p.HandCopy()}, true
		}
		if top != nil && len(p.Hand) == 3 {
			candidate := append(p.HandCopy(), *top)
			if IsWinningCombination(candidate) {
				return WinResult{PlayerIndex: i, Name: p.Name, UserID: p.UserID, Hand: candidate}, true
			}
		}
	}
	return WinResult{}, false
}
