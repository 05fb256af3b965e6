// internal/session/game_ops.go
package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/game"
	"github.com/sirupsen/logrus"
)

// NewTutorial starts a free practice game against the CPU. If the CPU holds the
// opening seat it plays before the game is returned.
func (s *Service) NewTutorial(ctx context.Context, req NewGameRequest) (game.Snapshot, error) {
	if err := req.Validate(); err != nil {
		return game.Snapshot{}, err
	}

	g, err := game.NewTutorial(req.PlayerName, req.UserID, s.rand)
	if err != nil {
		return game.Snapshot{}, err
	}
	g.Actions = s.actions
	g.PlayCPUTurns()
	snap := g.Snapshot()
	s.games.AddGame(g)

	s.logger.WithFields(logrus.Fields{"game": g.ID, "player": req.PlayerName}).Info("tutorial game created")
	return snap, nil
}

// GetGame returns the current state of a game.
func (s *Service) GetGame(ctx context.Context, gameID uuid.UUID) (game.Snapshot, error) {
	g, err := s.lockGame(gameID)
	if err != nil {
		return game.Snapshot{}, err
	}
	defer g.Mu.Unlock()
	return g.Snapshot(), nil
}

// Draw takes the top deck card for the current player. A winning draw settles the pot.
func (s *Service) Draw(ctx context.Context, gameID uuid.UUID, userID string) (game.Snapshot, error) {
	return s.play(ctx, gameID, func(g *game.NjukaGame) (bool, error) {
		return g.Draw(userID)
	})
}

// Discard moves a card from the current player's hand to the pot. In a tutorial game
// the CPU answers immediately.
func (s *Service) Discard(ctx context.Context, gameID uuid.UUID, userID string, cardIndex int) (game.Snapshot, error) {
	return s.play(ctx, gameID, func(g *game.NjukaGame) (bool, error) {
		won, err := g.Discard(userID, cardIndex)
		if err != nil || won {
			return won, err
		}
		if g.Mode == game.ModeTutorial {
			_, won = g.PlayCPUTurns()
		}
		return won, nil
	})
}

// play runs one move under the game lock and settles the game if the move ended it.
// Lobby games reject moves until the lobby starts and fees are in the pot.
func (s *Service) play(ctx context.Context, gameID uuid.UUID, move func(*game.NjukaGame) (bool, error)) (game.Snapshot, error) {
	g, err := s.lockGame(gameID)
	if err != nil {
		return game.Snapshot{}, err
	}
	snap, err := func() (game.Snapshot, error) {
		defer g.Mu.Unlock()
		won, err := move(g)
		if err != nil {
			return game.Snapshot{}, err
		}
		if won {
			s.finalizeLocked(ctx, g)
		}
		return g.Snapshot(), nil
	}()
	if err != nil {
		return game.Snapshot{}, err
	}

	s.hub.BroadcastGame(ctx, snap)
	return snap, nil
}

// QuitGame removes a player from a game in progress. The quitter's stake stays in the pot.
// A lone survivor wins the pot; if nobody remains the pot goes to the house.
// Before a lobby starts, players leave through QuitLobby instead.
func (s *Service) QuitGame(ctx context.Context, gameID uuid.UUID, userID string) (game.Snapshot, error) {
	snap, err := s.quitGame(ctx, gameID, userID)
	if err != nil {
		return game.Snapshot{}, err
	}

	s.hub.BroadcastGame(ctx, snap)
	return snap, nil
}

// quitGame needs only the game lock. A started game outlives its lobby, which may
// already have expired from the registry.
func (s *Service) quitGame(ctx context.Context, gameID uuid.UUID, userID string) (game.Snapshot, error) {
	g, err := s.lockGame(gameID)
	if err != nil {
		return game.Snapshot{}, err
	}
	defer g.Mu.Unlock()

	outcome, err := g.Quit(userID)
	if err != nil {
		return game.Snapshot{}, err
	}

	fields := logrus.Fields{"game": g.ID, "uid": userID}
	switch outcome {
	case game.QuitLastPlayerWins:
		s.logger.WithFields(fields).Info("player quit, last player wins")
		s.finalizeLocked(ctx, g)
	case game.QuitAllGone:
		s.logger.WithFields(fields).Info("last player quit, pot forfeited")
		if err := s.engine.ForfeitPotToHouse(ctx, g); err != nil {
			s.logger.WithFields(fields).WithError(err).Warn("pot forfeiture incomplete")
		}
	case game.QuitContinues:
		s.logger.WithFields(fields).Info("player quit")
	}
	return g.Snapshot(), nil
}
