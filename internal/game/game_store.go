// internal/game/game_store.go
package game

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// GameStore is the in-memory registry of active games, tutorial and lobby-backed alike.
// It guards only the map; callers lock an individual game through its Mu.
type GameStore struct {
	mu    sync.RWMutex
	games map[uuid.UUID]*NjukaGame
}

func NewGameStore() *GameStore {
	return &GameStore{games: make(map[uuid.UUID]*NjukaGame)}
}

// AddGame registers g and reports whether it was added. An id already in use is never replaced.
func (s *GameStore) AddGame(g *NjukaGame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.games[g.ID]; taken {
		log.Warnf("GameStore: refusing to replace game %s.", g.ID)
		return false
	}
	s.games[g.ID] = g
	return true
}

func (s *GameStore) GetGame(id uuid.UUID) (*NjukaGame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	return g, ok
}

// DeleteGame unregisters a game. Holders of the pointer must check Removed after locking it.
func (s *GameStore) DeleteGame(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, id)
}

// Len returns the number of registered games.
func (s *GameStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games)
}
