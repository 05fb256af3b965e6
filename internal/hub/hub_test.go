package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/game"
	"github.com/jason-s-yu/njuka/internal/lobby"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSender records pushed frames, or fails every send when broken.
type mockSender struct {
	mu     sync.Mutex
	frames [][]byte
	broken bool
	closed bool
}

func (m *mockSender) Send(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken {
		return errors.New("connection closed")
	}
	m.frames = append(m.frames, data)
	return nil
}

func (m *mockSender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockSender) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

func (m *mockSender) last(t *testing.T) map[string]interface{} {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.frames)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(m.frames[len(m.frames)-1], &out))
	return out
}

func newTestHub() *Hub {
	logger, _ := test.NewNullLogger()
	return New(logger)
}

func TestBroadcastGame(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	gameID := uuid.New()
	alice, bob, other := &mockSender{}, &mockSender{}, &mockSender{}

	h.ConnectGame(gameID, "Alice", alice)
	h.ConnectGame(gameID, "Bob", bob)
	h.ConnectGame(uuid.New(), "Other", other)

	h.BroadcastGame(ctx, game.Snapshot{ID: gameID, Revision: 7})

	assert.Equal(t, 1, alice.count())
	assert.Equal(t, 1, bob.count())
	assert.Zero(t, other.count())

	msg := alice.last(t)
	assert.Equal(t, TypeGameUpdate, msg["type"])
	assert.EqualValues(t, game.SnapshotVersion, msg["version"])
	data := msg["data"].(map[string]interface{})
	assert.EqualValues(t, 7, data["revision"])
}

func TestBroadcastGame_DropsDeadChannel(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	gameID := uuid.New()
	alive, dead := &mockSender{}, &mockSender{broken: true}

	h.ConnectGame(gameID, "Alive", alive)
	h.ConnectGame(gameID, "Dead", dead)
	require.Equal(t, 2, h.GameConnections(gameID))

	h.BroadcastGame(ctx, game.Snapshot{ID: gameID})
	assert.Equal(t, 1, h.GameConnections(gameID))

	h.BroadcastGame(ctx, game.Snapshot{ID: gameID})
	assert.Equal(t, 2, alive.count())
}

func TestConnectGame_ReplacesAndDisconnectIsGuarded(t *testing.T) {
	h := newTestHub()
	gameID := uuid.New()
	first, second := &mockSender{}, &mockSender{}

	h.ConnectGame(gameID, "Alice", first)
	h.ConnectGame(gameID, "Alice", second)
	h.DisconnectGame(gameID, "Alice", first)
	assert.Equal(t, 1, h.GameConnections(gameID), "stale disconnect leaves the new channel")

	h.BroadcastGame(context.Background(), game.Snapshot{ID: gameID})
	assert.Zero(t, first.count())
	assert.Equal(t, 1, second.count())

	h.DisconnectGame(gameID, "Alice", second)
	assert.Zero(t, h.GameConnections(gameID))
}

func TestBroadcastLobbyAndCancel(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	lobbyID := uuid.New()
	a, b, dead := &mockSender{}, &mockSender{}, &mockSender{broken: true}

	h.ConnectLobby(lobbyID, a)
	h.ConnectLobby(lobbyID, b)
	h.ConnectLobby(lobbyID, dead)

	h.BroadcastLobby(ctx, lobby.Snapshot{ID: lobbyID, Players: []string{"Host"}})
	assert.Equal(t, 2, h.LobbyConnections(lobbyID))
	assert.Equal(t, TypeLobbyUpdate, a.last(t)["type"])

	h.DisconnectLobby(lobbyID, b)
	h.NotifyLobbyCancelled(ctx, lobbyID)

	msg := a.last(t)
	assert.Equal(t, TypeLobbyCancelled, msg["type"])
	assert.Equal(t, lobbyID.String(), msg["data"].(map[string]interface{})["lobby_id"])
	assert.Equal(t, 1, b.count())
	assert.Zero(t, h.LobbyConnections(lobbyID))
}

func TestIsPing(t *testing.T) {
	assert.True(t, IsPing([]byte(`{"type":"ping"}`)))
	assert.False(t, IsPing([]byte(`{"type":"draw"}`)))
	assert.False(t, IsPing([]byte(`not json`)))
	assert.JSONEq(t, `{"type":"pong"}`, string(PongMessage))
}

func TestClose(t *testing.T) {
	h := newTestHub()
	gameID, lobbyID := uuid.New(), uuid.New()
	player, watcher := &mockSender{}, &mockSender{}
	h.ConnectGame(gameID, "A", player)
	h.ConnectLobby(lobbyID, watcher)

	h.Close()
	assert.Zero(t, h.GameConnections(gameID))
	assert.Zero(t, h.LobbyConnections(lobbyID))
	assert.True(t, player.isClosed())
	assert.True(t, watcher.isClosed())
}
