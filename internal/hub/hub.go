// internal/hub/hub.go
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/game"
	"github.com/jason-s-yu/njuka/internal/lobby"
	"github.com/sirupsen/logrus"
)

// Message types pushed to clients.
const (
	TypeGameUpdate     = "game_update"
	TypeLobbyUpdate    = "lobby_update"
	TypeLobbyCancelled = "lobby_cancelled"
	TypePong           = "pong"
)

// defaultWriteTimeout bounds a single push to one channel.
const defaultWriteTimeout = 3 * time.Second

// Sender is one live push channel, typically a websocket connection.
type Sender interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

// Envelope wraps every pushed snapshot.
type Envelope[T any] struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
	Data    T      `json:"data"`
}

// CancelledData is the payload of a lobby_cancelled message.
type CancelledData struct {
	LobbyID uuid.UUID `json:"lobby_id"`
}

// Hub tracks live channels per game (keyed by player display name) and per lobby,
// and fans snapshots out to them. Channels whose send fails are dropped.
type Hub struct {
	mu      sync.Mutex
	games   map[uuid.UUID]map[string]Sender
	lobbies map[uuid.UUID]map[Sender]struct{}

	logger       *logrus.Logger
	writeTimeout time.Duration
}

func New(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		games:        make(map[uuid.UUID]map[string]Sender),
		lobbies:      make(map[uuid.UUID]map[Sender]struct{}),
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
	}
}

// ConnectGame registers a channel for playerName, replacing any previous one.
func (h *Hub) ConnectGame(gameID uuid.UUID, playerName string, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.games[gameID]
	if !ok {
		conns = make(map[string]Sender)
		h.games[gameID] = conns
	}
	conns[playerName] = s
}

// DisconnectGame removes the channel for playerName if it is still s.
func (h *Hub) DisconnectGame(gameID uuid.UUID, playerName string, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeGameUnsafe(gameID, playerName, s)
}

func (h *Hub) ConnectLobby(lobbyID uuid.UUID, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.lobbies[lobbyID]
	if !ok {
		conns = make(map[Sender]struct{})
		h.lobbies[lobbyID] = conns
	}
	conns[s] = struct{}{}
}

func (h *Hub) DisconnectLobby(lobbyID uuid.UUID, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLobbyUnsafe(lobbyID, s)
}

// GameConnections returns the number of channels registered for a game.
func (h *Hub) GameConnections(gameID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.games[gameID])
}

// LobbyConnections returns the number of channels registered for a lobby.
func (h *Hub) LobbyConnections(lobbyID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lobbies[lobbyID])
}

// BroadcastGame pushes a game snapshot to every player channel of that game.
func (h *Hub) BroadcastGame(ctx context.Context, snap game.Snapshot) {
	data, err := json.Marshal(Envelope[game.Snapshot]{Type: TypeGameUpdate, Version: game.SnapshotVersion, Data: snap})
	if err != nil {
		h.logger.WithError(err).WithField("game", snap.ID).Error("failed to marshal game snapshot")
		return
	}

	h.mu.Lock()
	targets := make(map[string]Sender, len(h.games[snap.ID]))
	for name, s := range h.games[snap.ID] {
		targets[name] = s
	}
	h.mu.Unlock()

	for name, s := range targets {
		if err := h.send(ctx, s, data); err != nil {
			h.logger.WithFields(logrus.Fields{"game": snap.ID, "player": name}).WithError(err).Warn("dropping dead game channel")
			h.mu.Lock()
			h.removeGameUnsafe(snap.ID, name, s)
			h.mu.Unlock()
		}
	}
}

// BroadcastLobby pushes a lobby snapshot to every subscriber of that lobby.
func (h *Hub) BroadcastLobby(ctx context.Context, snap lobby.Snapshot) {
	data, err := json.Marshal(Envelope[lobby.Snapshot]{Type: TypeLobbyUpdate, Version: lobby.SnapshotVersion, Data: snap})
	if err != nil {
		h.logger.WithError(err).WithField("lobby", snap.ID).Error("failed to marshal lobby snapshot")
		return
	}
	h.pushLobby(ctx, snap.ID, data)
}

// NotifyLobbyCancelled tells lobby subscribers the lobby is gone and forgets them.
func (h *Hub) NotifyLobbyCancelled(ctx context.Context, lobbyID uuid.UUID) {
	data, err := json.Marshal(Envelope[CancelledData]{Type: TypeLobbyCancelled, Version: lobby.SnapshotVersion, Data: CancelledData{LobbyID: lobbyID}})
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal lobby cancellation")
		return
	}
	h.pushLobby(ctx, lobbyID, data)

	h.mu.Lock()
	delete(h.lobbies, lobbyID)
	h.mu.Unlock()
}

// ForgetGame drops every channel registered for a game.
func (h *Hub) ForgetGame(gameID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.games, gameID)
}

// Close drops every registration and closes the channels it held.
func (h *Hub) Close() {
	h.mu.Lock()
	targets := make(map[Sender]struct{})
	for _, conns := range h.games {
		for _, s := range conns {
			targets[s] = struct{}{}
		}
	}
	for _, conns := range h.lobbies {
		for s := range conns {
			targets[s] = struct{}{}
		}
	}
	h.games = make(map[uuid.UUID]map[string]Sender)
	h.lobbies = make(map[uuid.UUID]map[Sender]struct{})
	h.mu.Unlock()

	for s := range targets {
		if err := s.Close(); err != nil {
			h.logger.WithError(err).Debug("error closing hub channel")
		}
	}
}

func (h *Hub) pushLobby(ctx context.Context, lobbyID uuid.UUID, data []byte) {
	h.mu.Lock()
	targets := make([]Sender, 0, len(h.lobbies[lobbyID]))
	for s := range h.lobbies[lobbyID] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		if err := h.send(ctx, s, data); err != nil {
			h.logger.WithField("lobby", lobbyID).WithError(err).Warn("dropping dead lobby channel")
			h.mu.Lock()
			h.removeLobbyUnsafe(lobbyID, s)
			h.mu.Unlock()
		}
	}
}

func (h *Hub) send(ctx context.Context, s Sender, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return s.Send(ctx, data)
}

// removeGameUnsafe assumes h.mu is held.
func (h *Hub) removeGameUnsafe(gameID uuid.UUID, playerName string, s Sender) {
	conns, ok := h.games[gameID]
	if !ok || conns[playerName] != s {
		return
	}
	delete(conns, playerName)
	if len(conns) == 0 {
		delete(h.games, gameID)
	}
}

// removeLobbyUnsafe assumes h.mu is held.
func (h *Hub) removeLobbyUnsafe(lobbyID uuid.UUID, s Sender) {
	conns, ok := h.lobbies[lobbyID]
	if !ok {
		return
	}
	delete(conns, s)
	if len(conns) == 0 {
		delete(h.lobbies, lobbyID)
	}
}

// IsPing reports whether an inbound frame is a keep-alive ping.
func IsPing(data []byte) bool {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return false
	}
	return msg.Type == "ping"
}

// PongMessage is the reply to a keep-alive ping.
var PongMessage = []byte(`{"type":"pong"}`)
