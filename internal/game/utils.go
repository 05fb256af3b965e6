// internal/game/utils.go
package game

import (
	"github.com/jason-s-yu/njuka/internal/models"
	"github.com/jason-s-yu/njuka/internal/rng"
)

// DeckSize is the number of cards in play for every game.
const DeckSize = 52

// HandSize is the number of cards dealt to each player.
const HandSize = 3

// NewDeck returns an unshuffled 52-card deck.
func NewDeck() []models.Card {
	deck := make([]models.Card, 0, DeckSize)
	for _, suit := range models.Suits {
		for _, rank := range models.Ranks {
			deck = append(deck, models.Card{Rank: rank, Suit: suit})
		}
	}
	return deck
}

func shuffleCards(gen rng.Generator, cards []models.Card) {
	rng.Shuffle(gen, len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

func copyCards(cards []models.Card) []models.Card {
	out := make([]models.Card, len(cards))
	copy(out, cards)
	return out
}
