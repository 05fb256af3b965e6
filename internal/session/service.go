// internal/session/service.go
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/cache"
	"github.com/jason-s-yu/njuka/internal/game"
	"github.com/jason-s-yu/njuka/internal/hub"
	"github.com/jason-s-yu/njuka/internal/lobby"
	"github.com/jason-s-yu/njuka/internal/rng"
	"github.com/jason-s-yu/njuka/internal/settlement"
	"github.com/sirupsen/logrus"
)

// Options tunes a Service. Zero values fall back to production defaults.
type Options struct {
	UnstartedTTL time.Duration
	StartedTTL   time.Duration

	// Now is the clock used for lobby timestamps and expiry.
	Now func() time.Time
	// Rand shuffles decks and picks tutorial starting seats.
	Rand rng.Generator
	// Actions receives game actions for the historian.
	Actions cache.Publisher
}

// Service owns the in-memory lobby and game registries and runs every session operation.
// Lock order is lobby, then game, then store; a store lock is never held while taking an entity lock.
type Service struct {
	lobbies *lobby.LobbyStore
	games   *game.GameStore

	engine *settlement.Engine
	hub    *hub.Hub
	logger *logrus.Logger

	unstartedTTL time.Duration
	startedTTL   time.Duration
	now          func() time.Time
	rand         rng.Generator
	actions      cache.Publisher
}

// New builds a Service with empty registries.
func New(engine *settlement.Engine, h *hub.Hub, logger *logrus.Logger, opts Options) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{
		lobbies:      lobby.NewLobbyStore(),
		games:        game.NewGameStore(),
		engine:       engine,
		hub:          h,
		logger:       logger,
		unstartedTTL: opts.UnstartedTTL,
		startedTTL:   opts.StartedTTL,
		now:          opts.Now,
		rand:         opts.Rand,
		actions:      opts.Actions,
	}
	if s.unstartedTTL <= 0 {
		s.unstartedTTL = 30 * time.Minute
	}
	if s.startedTTL <= 0 {
		s.startedTTL = 10 * time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rand == nil {
		s.rand = rng.Crypto{}
	}
	return s
}

// Close drops every live channel. Registries are ephemeral and vanish with the process.
func (s *Service) Close() {
	s.hub.Close()
}

// Hub exposes the connection hub for the streaming endpoints.
func (s *Service) Hub() *hub.Hub {
	return s.hub
}

// GameExists reports whether a game is registered.
func (s *Service) GameExists(id uuid.UUID) bool {
	_, ok := s.games.GetGame(id)
	return ok
}

// LobbyExists reports whether a lobby is registered.
func (s *Service) LobbyExists(id uuid.UUID) bool {
	_, ok := s.lobbies.GetLobby(id)
	return ok
}

// Balance returns a user's ledger balance.
func (s *Service) Balance(ctx context.Context, userID string) (float64, error) {
	return s.engine.Balance(ctx, userID)
}

// HouseBalance returns the house account's accumulated earnings.
func (s *Service) HouseBalance(ctx context.Context) (float64, error) {
	return s.engine.HouseBalance(ctx)
}

// lockLobby fetches and locks a live lobby. The caller must unlock it.
func (s *Service) lockLobby(id uuid.UUID) (*lobby.Lobby, error) {
	l, ok := s.lobbies.GetLobby(id)
	if !ok {
		return nil, apperr.NotFound("lobby not found")
	}
	l.Mu.Lock()
	if l.Closed() {
		l.Mu.Unlock()
		return nil, apperr.NotFound("lobby not found")
	}
	return l, nil
}

// lockGame fetches and locks a live game. The caller must unlock it.
func (s *Service) lockGame(id uuid.UUID) (*game.NjukaGame, error) {
	g, ok := s.games.GetGame(id)
	if !ok {
		return nil, apperr.NotFound("game not found")
	}
	g.Mu.Lock()
	if g.Removed() {
		g.Mu.Unlock()
		return nil, apperr.NotFound("game not found")
	}
	return g, nil
}

// finalizeLocked settles a game that just ended. Settlement failures are logged and
// never undo the game over. Assumes g.Mu is held.
func (s *Service) finalizeLocked(ctx context.Context, g *game.NjukaGame) {
	if g.Winner == "" {
		return
	}
	if _, err := s.engine.DistributeWinnings(ctx, g); err != nil {
		s.logger.WithFields(logrus.Fields{
			"game": g.ID,
			"kind": apperr.KindOf(err).String(),
		}).WithError(err).Warn("game finished with incomplete settlement")
	}
}

func (s *Service) newGame(mode game.Mode, maxPlayers int, entryFee float64) *game.NjukaGame {
	g := game.NewGame(mode, maxPlayers, entryFee, s.rand)
	g.Actions = s.actions
	return g
}
