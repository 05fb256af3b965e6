// internal/handlers/lobby.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/njuka/internal/auth"
	"github.com/jason-s-yu/njuka/internal/session"
)

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// postLobbyCreate opens a lobby hosted by the caller.
// Body: {"host": "name", "max_players": 4, "entry_fee": 10}
func (a *API) postLobbyCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req session.CreateLobbyRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		req.HostUserID = auth.UserID(r.Context())

		res, err := a.sessions.CreateLobby(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// getLobbyList returns lobbies that can still be joined.
func (a *API) getLobbyList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.sessions.ListLobbies(r.Context()))
	}
}

func (a *API) getLobby() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := a.sessions.GetLobby(r.Context(), uuidVar(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// postLobbyJoin seats the caller. Body: {"player": "name"}
func (a *API) postLobbyJoin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req session.JoinLobbyRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		req.LobbyID = uuidVar(r, "id")
		req.PlayerUserID = auth.UserID(r.Context())

		res, err := a.sessions.JoinLobby(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (a *API) postLobbyStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := a.sessions.StartLobby(r.Context(), uuidVar(r, "id"), auth.UserID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (a *API) postLobbyQuit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := a.sessions.QuitLobby(r.Context(), uuidVar(r, "id"), auth.UserID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (a *API) postLobbyCancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.sessions.CancelLobby(r.Context(), uuidVar(r, "id"), auth.UserID(r.Context())); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{
			Status:  "success",
			Message: "Lobby cancelled and participants refunded (if applicable)",
		})
	}
}
