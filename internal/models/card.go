// internal/models/card.go
package models

import "fmt"

// Suits and Ranks in deck construction order.
var (
	Suits = []string{"♠", "♥", "♦", "♣"}
	Ranks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}
)

// Card is an immutable playing card. Rank is serialized as "value" for client compatibility.
type Card struct {
	Rank string `json:"value"`
	Suit string `json:"suit"`
}

// RankValue returns A=1, 2..10 literal, J=11, Q=12, K=13, or 0 for an unknown rank.
func (c Card) RankValue() int {
	for i, r := range Ranks {
		if r == c.Rank {
			return i + 1
		}
	}
	return 0
}

func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}
