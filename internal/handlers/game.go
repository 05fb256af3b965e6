// internal/handlers/game.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/auth"
	"github.com/jason-s-yu/njuka/internal/game"
	"github.com/jason-s-yu/njuka/internal/session"
)

// postNewGame starts a tutorial game for the caller.
// Query: ?mode=tutorial&player_name=name
func (a *API) postNewGame() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := session.NewGameRequest{
			Mode:       game.Mode(q.Get("mode")),
			PlayerName: q.Get("player_name"),
			UserID:     auth.UserID(r.Context()),
		}

		snap, err := a.sessions.NewTutorial(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (a *API) getGame() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := a.sessions.GetGame(r.Context(), uuidVar(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (a *API) postGameDraw() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := a.sessions.Draw(r.Context(), uuidVar(r, "id"), auth.UserID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// postGameDiscard discards the card at ?card_index= from the caller's hand.
func (a *API) postGameDiscard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, err := strconv.Atoi(r.URL.Query().Get("card_index"))
		if err != nil {
			writeError(w, apperr.Validation("card_index must be an integer"))
			return
		}

		snap, err := a.sessions.Discard(r.Context(), uuidVar(r, "id"), auth.UserID(r.Context()), idx)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (a *API) postGameQuit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := a.sessions.QuitGame(r.Context(), uuidVar(r, "id"), auth.UserID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
