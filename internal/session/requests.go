// internal/session/requests.go
package session

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/game"
	"github.com/jason-s-yu/njuka/internal/lobby"
)

// maxNameLength bounds display names shown at the table.
const maxNameLength = 32

// CreateLobbyRequest opens a new wager lobby. HostUserID comes from the caller's credential.
type CreateLobbyRequest struct {
	Host       string  `json:"host"`
	HostUserID string  `json:"-"`
	MaxPlayers int     `json:"max_players"`
	EntryFee   float64 `json:"entry_fee"`
}

func (r *CreateLobbyRequest) Validate() error {
	r.Host = strings.TrimSpace(r.Host)
	if err := validateName(r.Host); err != nil {
		return err
	}
	if r.HostUserID == "" {
		return apperr.Validation("host user id is required")
	}
	return lobby.ValidateSettings(r.MaxPlayers, r.EntryFee)
}

// JoinLobbyRequest seats a player in an open lobby.
type JoinLobbyRequest struct {
	LobbyID      uuid.UUID `json:"-"`
	Player       string    `json:"player"`
	PlayerUserID string    `json:"-"`
}

func (r *JoinLobbyRequest) Validate() error {
	r.Player = strings.TrimSpace(r.Player)
	if err := validateName(r.Player); err != nil {
		return err
	}
	if r.PlayerUserID == "" {
		return apperr.Validation("player user id is required")
	}
	return nil
}

// NewGameRequest starts a tutorial game against the CPU.
type NewGameRequest struct {
	Mode       game.Mode
	PlayerName string
	UserID     string
}

func (r *NewGameRequest) Validate() error {
	if r.Mode == "" {
		r.Mode = game.ModeTutorial
	}
	if r.Mode != game.ModeTutorial {
		return apperr.Validation("invalid mode: only tutorial games start here, use a lobby for multiplayer")
	}
	r.PlayerName = strings.TrimSpace(r.PlayerName)
	if r.PlayerName == "" {
		r.PlayerName = "Player"
	}
	if err := validateName(r.PlayerName); err != nil {
		return err
	}
	if r.PlayerName == game.CPUName {
		return apperr.Validation("player name %q is reserved", game.CPUName)
	}
	return nil
}

// LobbyResult pairs a lobby with its game.
type LobbyResult struct {
	Lobby lobby.Snapshot `json:"lobby"`
	Game  game.Snapshot  `json:"game"`
}

// QuitResult reports a lobby quit. When the host quits the lobby is cancelled instead.
type QuitResult struct {
	Cancelled bool            `json:"cancelled"`
	Lobby     *lobby.Snapshot `json:"lobby,omitempty"`
	Game      *game.Snapshot  `json:"game,omitempty"`
}

func validateName(name string) error {
	if name == "" {
		return apperr.Validation("player name is required")
	}
	if len(name) > maxNameLength {
		return apperr.Validation("player name must be at most %d characters", maxNameLength)
	}
	return nil
}
