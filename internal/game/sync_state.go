// internal/game/sync_state.go
package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/models"
)

// SnapshotVersion is bumped whenever the snapshot wire shape changes incompatibly.
const SnapshotVersion = 1

// PlayerState is one seat as shown to clients.
type PlayerState struct {
	Name          string        `json:"name"`
	UserID        string        `json:"uid"`
	Hand          []models.Card `json:"hand"`
	IsCPU         bool          `json:"is_cpu"`
	IsCurrentTurn bool          `json:"is_current_turn"`
}

// Snapshot is the full client-visible state of a game. The deck order is never exposed.
type Snapshot struct {
	ID                uuid.UUID     `json:"id"`
	LobbyID           *uuid.UUID    `json:"lobby_id,omitempty"`
	Mode              Mode          `json:"mode"`
	MaxPlayers        int           `json:"max_players"`
	Started           bool          `json:"started"`
	DeckCount         int           `json:"deck_count"`
	Pot               []models.Card `json:"pot"`
	Players           []PlayerState `json:"players"`
	CurrentPlayer     int           `json:"current_player"`
	HasDrawn          bool          `json:"has_drawn"`
	AnyPlayerHasDrawn bool          `json:"any_player_has_drawn"`
	Winner            string        `json:"winner"`
	WinnerHand        []models.Card `json:"winner_hand"`
	GameOver          bool          `json:"game_over"`
	Forfeited         bool          `json:"forfeited"`
	EntryFee          float64       `json:"entry_fee"`
	PotAmount         float64       `json:"pot_amount"`
	WinnerAmount      float64       `json:"winner_amount"`
	HouseCut          float64       `json:"house_cut"`
	Revision          int64         `json:"revision"`
}

// Snapshot copies the game state. Assumes Mu is held.
func (g *NjukaGame) Snapshot() Snapshot {
	s := Snapshot{
		ID:                g.ID,
		Mode:              g.Mode,
		MaxPlayers:        g.MaxPlayers,
		Started:           g.Started,
		DeckCount:         len(g.Deck),
		Pot:               copyCards(g.Pot),
		Players:           make([]PlayerState, len(g.Players)),
		CurrentPlayer:     g.CurrentPlayer,
		HasDrawn:          g.HasDrawn,
		AnyPlayerHasDrawn: g.AnyPlayerHasDrawn,
		Winner:            g.Winner,
		WinnerHand:        copyCards(g.WinnerHand),
		GameOver:          g.GameOver,
		Forfeited:         g.Forfeited,
		EntryFee:          g.EntryFee,
		PotAmount:         g.PotAmount,
		WinnerAmount:      g.WinnerAmount,
		HouseCut:          g.HouseCut,
		Revision:          g.Revision,
	}
	if g.LobbyID != uuid.Nil {
		id := g.LobbyID
		s.LobbyID = &id
	}
	for i, p := range g.Players {
		s.Players[i] = PlayerState{
			Name:          p.Name,
			UserID:        p.UserID,
			Hand:          p.HandCopy(),
			IsCPU:         p.IsCPU,
			IsCurrentTurn: i == g.CurrentPlayer && !g.GameOver,
		}
	}
	return s
}
