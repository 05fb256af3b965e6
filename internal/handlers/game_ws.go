// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/njuka/internal/game"
	"github.com/jason-s-yu/njuka/internal/hub"
	"github.com/jason-s-yu/njuka/internal/middleware"
	"github.com/sirupsen/logrus"
)

// initialWriteTimeout bounds the snapshot sent right after the handshake.
const initialWriteTimeout = 5 * time.Second

// wsSender adapts a websocket connection to a hub channel.
type wsSender struct {
	conn *websocket.Conn
}

func (s *wsSender) Send(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *wsSender) Close() error {
	return s.conn.Close(websocket.StatusGoingAway, "server shutting down")
}

// getGameWS subscribes the caller to a game's updates under ?player_name=.
// The current snapshot is sent first; afterwards every change is pushed by the hub.
func (a *API) getGameWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := uuidVar(r, "id")
		playerName := strings.TrimSpace(r.URL.Query().Get("player_name"))

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: a.originPatterns})
		if err != nil {
			a.logger.WithField("game", gameID).Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if playerName == "" {
			c.Close(MissingPlayerNameError, "player_name is required")
			return
		}
		snap, err := a.sessions.GetGame(r.Context(), gameID)
		if err != nil {
			a.logger.WithField("game", gameID).Warn("websocket connection attempt for unknown game")
			c.Close(RoomNotFoundError, "game does not exist")
			return
		}

		sender := &wsSender{conn: c}
		h := a.sessions.Hub()
		h.ConnectGame(gameID, playerName, sender)
		defer h.DisconnectGame(gameID, playerName, sender)
		middleware.LogWebSocketConnect(a.logger, r)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sendEnvelope(ctx, sender, a.logger, hub.Envelope[game.Snapshot]{Type: hub.TypeGameUpdate, Version: game.SnapshotVersion, Data: snap})

		err = readKeepAlive(ctx, c, a.logger.WithFields(logrus.Fields{"game": gameID, "player": playerName}))
		middleware.LogWebSocketDisconnect(a.logger, r, err)
		if err == nil {
			c.Close(websocket.StatusNormalClosure, "")
		}
	}
}

// readKeepAlive answers pings until the client goes away. Other inbound frames are ignored.
// A normal closure returns nil.
func readKeepAlive(ctx context.Context, c *websocket.Conn, logger *logrus.Entry) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if typ != websocket.MessageText || !hub.IsPing(data) {
			logger.Trace("ignoring inbound frame")
			continue
		}
		writeCtx, cancel := context.WithTimeout(ctx, initialWriteTimeout)
		err = c.Write(writeCtx, websocket.MessageText, hub.PongMessage)
		cancel()
		if err != nil {
			return err
		}
	}
}

func sendEnvelope[T any](ctx context.Context, s hub.Sender, logger *logrus.Logger, env hub.Envelope[T]) {
	data, err := json.Marshal(env)
	if err != nil {
		logger.WithError(err).Error("failed to marshal initial snapshot")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, initialWriteTimeout)
	defer cancel()
	if err := s.Send(ctx, data); err != nil {
		logger.WithError(err).Warn("failed to send initial snapshot")
	}
}
