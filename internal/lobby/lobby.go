// internal/lobby/lobby.go
package lobby

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/apperr"
)

// Table size and wager limits.
const (
	MinPlayers  = 2
	MaxPlayers  = 8
	MinEntryFee = 1.0
)

// Lobby is an ephemeral group of players waiting on, or playing, one paired game.
// Methods assume Mu is held by the caller.
type Lobby struct {
	Mu sync.Mutex

	ID         uuid.UUID
	Host       string
	HostUserID string

	// Players and PlayerUserIDs are aligned one to one.
	Players       []string
	PlayerUserIDs []string
	// PaidUserIDs lists members whose entry fee was collected.
	PaidUserIDs []string

	MaxPlayers  int
	EntryFee    float64
	CreatedAt   time.Time
	LastUpdated time.Time
	Started     bool
	GameID      uuid.UUID

	Revision int64
	closed   bool
}

// ValidateSettings checks the table size and entry fee of a new lobby.
func ValidateSettings(maxPlayers int, entryFee float64) error {
	if maxPlayers < MinPlayers || maxPlayers > MaxPlayers {
		return apperr.Validation("max players must be %d-%d", MinPlayers, MaxPlayers)
	}
	if entryFee < MinEntryFee {
		return apperr.Validation("minimum entry fee is K%.0f", MinEntryFee)
	}
	return nil
}

// New creates a lobby with the host as its only member.
func New(host, hostUserID string, maxPlayers int, entryFee float64, gameID uuid.UUID, now time.Time) *Lobby {
	id, _ := uuid.NewRandom()
	return &Lobby{
		ID:            id,
		Host:          host,
		HostUserID:    hostUserID,
		Players:       []string{host},
		PlayerUserIDs: []string{hostUserID},
		MaxPlayers:    maxPlayers,
		EntryFee:      entryFee,
		CreatedAt:     now,
		LastUpdated:   now,
		GameID:        gameID,
	}
}

// IndexOf returns the seat of userID, or -1.
func (l *Lobby) IndexOf(userID string) int {
	for i, uid := range l.PlayerUserIDs {
		if uid == userID {
			return i
		}
	}
	return -1
}

func (l *Lobby) IsMember(userID string) bool {
	return l.IndexOf(userID) >= 0
}

func (l *Lobby) IsHost(userID string) bool {
	return userID != "" && userID == l.HostUserID
}

func (l *Lobby) Full() bool {
	return len(l.Players) >= l.MaxPlayers
}

// CanAdd reports why a new member could not be seated, without changing anything.
func (l *Lobby) CanAdd(name string) error {
	if l.Started {
		return apperr.Conflict("lobby already started")
	}
	if l.Full() {
		return apperr.Conflict("lobby is full")
	}
	for _, p := range l.Players {
		if p == name {
			return apperr.Conflict("player name %q already taken", name)
		}
	}
	return nil
}

// AddMember appends a player to the lobby.
func (l *Lobby) AddMember(name, userID string, now time.Time) error {
	if err := l.CanAdd(name); err != nil {
		return err
	}
	l.Players = append(l.Players, name)
	l.PlayerUserIDs = append(l.PlayerUserIDs, userID)
	l.Touch(now)
	return nil
}

// RemoveMember drops a player. Membership is frozen once the lobby has started.
func (l *Lobby) RemoveMember(userID string, now time.Time) error {
	if l.Started {
		return apperr.Conflict("cannot leave a lobby that has started")
	}
	i := l.IndexOf(userID)
	if i < 0 {
		return apperr.NotFound("player is not in this lobby")
	}
	l.Players = append(l.Players[:i], l.Players[i+1:]...)
	l.PlayerUserIDs = append(l.PlayerUserIDs[:i], l.PlayerUserIDs[i+1:]...)
	l.Touch(now)
	return nil
}

// MarkPaid records a collected entry fee. Repeated calls for one user are ignored.
func (l *Lobby) MarkPaid(userID string) {
	for _, uid := range l.PaidUserIDs {
		if uid == userID {
			return
		}
	}
	l.PaidUserIDs = append(l.PaidUserIDs, userID)
}

func (l *Lobby) MarkStarted(now time.Time) {
	l.Started = true
	l.Touch(now)
}

// Touch refreshes the idle timer and revision.
func (l *Lobby) Touch(now time.Time) {
	l.LastUpdated = now
	l.Revision++
}

// Expired reports whether the lobby has been idle past its TTL.
func (l *Lobby) Expired(now time.Time, unstartedTTL, startedTTL time.Duration) bool {
	ttl := unstartedTTL
	if l.Started {
		ttl = startedTTL
	}
	return now.Sub(l.LastUpdated) > ttl
}

// Close marks the lobby as removed so holders of a stale pointer stop using it.
func (l *Lobby) Close() {
	l.closed = true
}

func (l *Lobby) Closed() bool {
	return l.closed
}
