// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used within the lobby and game handlers.
// These provide more specific reasons for closure than standard codes.
const (
	MissingPlayerNameError websocket.StatusCode = 3002 // Game channel opened without a player_name.
	RoomNotFoundError      websocket.StatusCode = 3003 // Target lobby or game does not exist or was removed.
)
