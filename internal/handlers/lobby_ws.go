// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/njuka/internal/hub"
	"github.com/jason-s-yu/njuka/internal/lobby"
	"github.com/jason-s-yu/njuka/internal/middleware"
)

// getLobbyWS subscribes to a lobby's updates until it starts, is cancelled or the client leaves.
func (a *API) getLobbyWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbyID := uuidVar(r, "id")

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: a.originPatterns})
		if err != nil {
			a.logger.WithField("lobby", lobbyID).Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		snap, err := a.sessions.GetLobby(r.Context(), lobbyID)
		if err != nil {
			a.logger.WithField("lobby", lobbyID).Warn("websocket connection attempt for unknown lobby")
			c.Close(RoomNotFoundError, "lobby does not exist")
			return
		}

		sender := &wsSender{conn: c}
		h := a.sessions.Hub()
		h.ConnectLobby(lobbyID, sender)
		defer h.DisconnectLobby(lobbyID, sender)
		middleware.LogWebSocketConnect(a.logger, r)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sendEnvelope(ctx, sender, a.logger, hub.Envelope[lobby.Snapshot]{Type: hub.TypeLobbyUpdate, Version: lobby.SnapshotVersion, Data: snap})

		err = readKeepAlive(ctx, c, a.logger.WithField("lobby", lobbyID))
		middleware.LogWebSocketDisconnect(a.logger, r, err)
		if err == nil {
			c.Close(websocket.StatusNormalClosure, "")
		}
	}
}
