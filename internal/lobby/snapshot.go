// internal/lobby/snapshot.go
package lobby

import (
	"time"

	"github.com/google/uuid"
)

// SnapshotVersion is bumped whenever the snapshot wire shape changes incompatibly.
const SnapshotVersion = 1

// Snapshot is the client-visible state of a lobby.
type Snapshot struct {
	ID            uuid.UUID `json:"id"`
	Host          string    `json:"host"`
	HostUserID    string    `json:"host_uid"`
	Players       []string  `json:"players"`
	PlayerUserIDs []string  `json:"player_uids"`
	PaidUserIDs   []string  `json:"paid_uids"`
	MaxPlayers    int       `json:"max_players"`
	EntryFee      float64   `json:"entry_fee"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdated   time.Time `json:"last_updated"`
	Started       bool      `json:"started"`
	GameID        uuid.UUID `json:"game_id"`
	Revision      int64     `json:"revision"`
}

// Snapshot copies the lobby state. Assumes Mu is held.
func (l *Lobby) Snapshot() Snapshot {
	return Snapshot{
		ID:            l.ID,
		Host:          l.Host,
		HostUserID:    l.HostUserID,
		Players:       append([]string(nil), l.Players...),
		PlayerUserIDs: append([]string(nil), l.PlayerUserIDs...),
		PaidUserIDs:   append([]string{}, l.PaidUserIDs...),
		MaxPlayers:    l.MaxPlayers,
		EntryFee:      l.EntryFee,
		CreatedAt:     l.CreatedAt,
		LastUpdated:   l.LastUpdated,
		Started:       l.Started,
		GameID:        l.GameID,
		Revision:      l.Revision,
	}
}
