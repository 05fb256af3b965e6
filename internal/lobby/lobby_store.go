// internal/lobby/lobby_store.go
package lobby

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// LobbyStore manages active ephemeral lobbies in memory.
// It guards only the map; callers lock an individual lobby through its Mu.
type LobbyStore struct {
	mu      sync.Mutex
	lobbies map[uuid.UUID]*Lobby
}

func NewLobbyStore() *LobbyStore {
	return &LobbyStore{
		lobbies: make(map[uuid.UUID]*Lobby),
	}
}

// AddLobby adds a lobby, refusing to overwrite an existing id.
func (s *LobbyStore) AddLobby(l *Lobby) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lobbies[l.ID]; exists {
		log.Warnf("LobbyStore: attempted to add lobby %s which already exists.", l.ID)
		return
	}
	s.lobbies[l.ID] = l
}

func (s *LobbyStore) GetLobby(id uuid.UUID) (*Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[id]
	return l, ok
}

func (s *LobbyStore) DeleteLobby(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lobbies, id)
}

// All returns the registered lobbies ordered by creation time.
// CreatedAt is immutable after construction, so sorting without each lobby's lock is safe.
func (s *LobbyStore) All() []*Lobby {
	s.mu.Lock()
	out := make([]*Lobby, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		out = append(out, l)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *LobbyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lobbies)
}
