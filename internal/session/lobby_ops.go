// internal/session/lobby_ops.go
package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/game"
	"github.com/jason-s-yu/njuka/internal/lobby"
	"github.com/sirupsen/logrus"
)

// CreateLobby opens a lobby with its paired game. The host is dealt in immediately
// but pays only when the lobby starts.
func (s *Service) CreateLobby(ctx context.Context, req CreateLobbyRequest) (LobbyResult, error) {
	if err := req.Validate(); err != nil {
		return LobbyResult{}, err
	}
	if err := s.engine.CheckBalance(ctx, req.HostUserID, req.EntryFee); err != nil {
		return LobbyResult{}, err
	}

	g := s.newGame(game.ModeMultiplayer, req.MaxPlayers, req.EntryFee)
	if _, err := g.AddPlayer(req.Host, req.HostUserID, false); err != nil {
		return LobbyResult{}, err
	}
	l := lobby.New(req.Host, req.HostUserID, req.MaxPlayers, req.EntryFee, g.ID, s.now())
	g.LobbyID = l.ID

	res := LobbyResult{Lobby: l.Snapshot(), Game: g.Snapshot()}
	s.games.AddGame(g)
	s.lobbies.AddLobby(l)

	s.logger.WithFields(logrus.Fields{
		"lobby":       l.ID,
		"game":        g.ID,
		"host":        req.Host,
		"max_players": req.MaxPlayers,
		"entry_fee":   req.EntryFee,
	}).Info("lobby created")
	return res, nil
}

// JoinLobby seats a player, dealing them in from the live deck. Joining twice is a no-op.
// The lobby starts automatically once it is full.
func (s *Service) JoinLobby(ctx context.Context, req JoinLobbyRequest) (LobbyResult, error) {
	if err := req.Validate(); err != nil {
		return LobbyResult{}, err
	}

	l, err := s.lockLobby(req.LobbyID)
	if err != nil {
		return LobbyResult{}, err
	}
	res, changed, err := s.joinLocked(ctx, l, req)
	l.Mu.Unlock()
	if err != nil {
		return LobbyResult{}, err
	}

	if changed {
		s.hub.BroadcastLobby(ctx, res.Lobby)
		s.hub.BroadcastGame(ctx, res.Game)
	}
	return res, nil
}

// joinLocked assumes l.Mu is held.
func (s *Service) joinLocked(ctx context.Context, l *lobby.Lobby, req JoinLobbyRequest) (LobbyResult, bool, error) {
	g, err := s.lockGame(l.GameID)
	if err != nil {
		return LobbyResult{}, false, err
	}
	defer g.Mu.Unlock()

	if l.IsMember(req.PlayerUserID) {
		return LobbyResult{Lobby: l.Snapshot(), Game: g.Snapshot()}, false, nil
	}
	if err := l.CanAdd(req.Player); err != nil {
		return LobbyResult{}, false, err
	}
	if err := s.engine.CheckBalance(ctx, req.PlayerUserID, l.EntryFee); err != nil {
		return LobbyResult{}, false, err
	}
	if _, err := g.AddPlayer(req.Player, req.PlayerUserID, false); err != nil {
		return LobbyResult{}, false, err
	}
	if err := l.AddMember(req.Player, req.PlayerUserID, s.now()); err != nil {
		// unreachable after CanAdd under the same lock, but keep the game consistent
		_, _ = g.RemovePlayer(req.PlayerUserID)
		return LobbyResult{}, false, err
	}

	s.logger.WithFields(logrus.Fields{"lobby": l.ID, "player": req.Player}).Info("player joined lobby")
	if l.Full() {
		if err := s.startLocked(ctx, l, g); err != nil {
			return LobbyResult{}, false, err
		}
	}
	return LobbyResult{Lobby: l.Snapshot(), Game: g.Snapshot()}, true, nil
}

// StartLobby starts a lobby on the host's request.
func (s *Service) StartLobby(ctx context.Context, lobbyID uuid.UUID, requestedBy string) (LobbyResult, error) {
	l, err := s.lockLobby(lobbyID)
	if err != nil {
		return LobbyResult{}, err
	}
	res, err := func() (LobbyResult, error) {
		defer l.Mu.Unlock()
		if !l.IsHost(requestedBy) {
			return LobbyResult{}, apperr.Authorization("only the host can start the game")
		}
		if l.Started {
			return LobbyResult{}, apperr.Conflict("lobby already started")
		}
		if len(l.Players) < lobby.MinPlayers {
			return LobbyResult{}, apperr.Conflict("need at least %d players to start", lobby.MinPlayers)
		}

		g, err := s.lockGame(l.GameID)
		if err != nil {
			return LobbyResult{}, err
		}
		defer g.Mu.Unlock()
		if err := s.startLocked(ctx, l, g); err != nil {
			return LobbyResult{}, err
		}
		return LobbyResult{Lobby: l.Snapshot(), Game: g.Snapshot()}, nil
	}()
	if err != nil {
		return LobbyResult{}, err
	}

	s.hub.BroadcastLobby(ctx, res.Lobby)
	s.hub.BroadcastGame(ctx, res.Game)
	return res, nil
}

// startLocked collects entry fees and freezes membership. A member whose fee cannot be
// collected is skipped; the pot holds only what was collected. A game that is already
// over is never charged. Assumes l.Mu and g.Mu are held.
func (s *Service) startLocked(ctx context.Context, l *lobby.Lobby, g *game.NjukaGame) error {
	if g.GameOver || g.Started {
		return apperr.Conflict("game can no longer be started")
	}
	total, err := s.engine.CollectFees(ctx, l)
	if err != nil {
		s.logger.WithField("lobby", l.ID).WithError(err).Warn("lobby started with partial fee collection")
	}
	if err := g.Start(total); err != nil {
		return err
	}
	l.MarkStarted(s.now())

	s.logger.WithFields(logrus.Fields{
		"lobby":   l.ID,
		"game":    g.ID,
		"players": len(l.Players),
		"pot":     total,
	}).Info("lobby started")
	return nil
}

// QuitLobby removes a player before the game starts. A quitting host cancels the lobby.
func (s *Service) QuitLobby(ctx context.Context, lobbyID uuid.UUID, userID string) (QuitResult, error) {
	l, err := s.lockLobby(lobbyID)
	if err != nil {
		return QuitResult{}, err
	}

	if l.Started {
		l.Mu.Unlock()
		return QuitResult{}, apperr.Conflict("cannot leave a lobby that has started")
	}
	if !l.IsMember(userID) {
		l.Mu.Unlock()
		return QuitResult{}, apperr.NotFound("player is not in this lobby")
	}

	if l.IsHost(userID) {
		gameID, err := s.cancelLocked(ctx, l)
		l.Mu.Unlock()
		if err != nil {
			return QuitResult{}, err
		}
		s.announceCancel(ctx, lobbyID, gameID)
		return QuitResult{Cancelled: true}, nil
	}

	res, err := func() (QuitResult, error) {
		defer l.Mu.Unlock()
		g, err := s.lockGame(l.GameID)
		if err != nil {
			return QuitResult{}, err
		}
		defer g.Mu.Unlock()

		if _, err := g.RemovePlayer(userID); err != nil {
			return QuitResult{}, err
		}
		if err := l.RemoveMember(userID, s.now()); err != nil {
			return QuitResult{}, err
		}
		ls, gs := l.Snapshot(), g.Snapshot()
		return QuitResult{Lobby: &ls, Game: &gs}, nil
	}()
	if err != nil {
		return QuitResult{}, err
	}

	s.logger.WithFields(logrus.Fields{"lobby": lobbyID, "uid": userID}).Info("player left lobby")
	s.hub.BroadcastLobby(ctx, *res.Lobby)
	s.hub.BroadcastGame(ctx, *res.Game)
	return res, nil
}

// CancelLobby deletes a lobby and its game on the host's request, refunding any collected fees.
// Once any player has drawn the lobby can no longer be cancelled.
func (s *Service) CancelLobby(ctx context.Context, lobbyID uuid.UUID, requestedBy string) error {
	l, err := s.lockLobby(lobbyID)
	if err != nil {
		return err
	}
	if !l.IsHost(requestedBy) {
		l.Mu.Unlock()
		return apperr.Authorization("only the host can cancel the lobby")
	}
	gameID, err := s.cancelLocked(ctx, l)
	l.Mu.Unlock()
	if err != nil {
		return err
	}

	s.announceCancel(ctx, lobbyID, gameID)
	return nil
}

// cancelLocked removes the lobby and its game. A game that has seen a draw or has
// already ended keeps its pot. Assumes l.Mu is held.
func (s *Service) cancelLocked(ctx context.Context, l *lobby.Lobby) (uuid.UUID, error) {
	if g, ok := s.games.GetGame(l.GameID); ok {
		g.Mu.Lock()
		if g.AnyPlayerHasDrawn {
			g.Mu.Unlock()
			return uuid.Nil, apperr.Conflict("cannot cancel a game once a move has been made")
		}
		if g.GameOver || g.Settled || g.Forfeited {
			g.Mu.Unlock()
			return uuid.Nil, apperr.Conflict("cannot cancel a game that has ended")
		}
		g.MarkRemoved()
		g.Mu.Unlock()
		s.games.DeleteGame(g.ID)
	}

	if l.Started {
		if err := s.engine.Refund(ctx, l); err != nil {
			s.logger.WithField("lobby", l.ID).WithError(err).Warn("lobby cancelled with incomplete refunds")
		}
	}

	l.Close()
	s.lobbies.DeleteLobby(l.ID)
	s.logger.WithFields(logrus.Fields{"lobby": l.ID, "started": l.Started}).Info("lobby cancelled")
	return l.GameID, nil
}

func (s *Service) announceCancel(ctx context.Context, lobbyID, gameID uuid.UUID) {
	s.hub.NotifyLobbyCancelled(ctx, lobbyID)
	s.hub.ForgetGame(gameID)
}

// ListLobbies returns open lobbies, oldest first. Lobbies idle past their TTL are
// removed from the registry as a side effect.
func (s *Service) ListLobbies(ctx context.Context) []lobby.Snapshot {
	now := s.now()
	out := make([]lobby.Snapshot, 0)

	for _, l := range s.lobbies.All() {
		l.Mu.Lock()
		switch {
		case l.Closed():
		case l.Expired(now, s.unstartedTTL, s.startedTTL):
			l.Close()
			s.lobbies.DeleteLobby(l.ID)
			s.logger.WithFields(logrus.Fields{"lobby": l.ID, "started": l.Started}).Info("lobby expired")
		case !l.Started && !l.Full():
			out = append(out, l.Snapshot())
		}
		l.Mu.Unlock()
	}
	return out
}

// GetLobby returns a lobby snapshot.
func (s *Service) GetLobby(ctx context.Context, lobbyID uuid.UUID) (lobby.Snapshot, error) {
	l, err := s.lockLobby(lobbyID)
	if err != nil {
		return lobby.Snapshot{}, err
	}
	defer l.Mu.Unlock()
	return l.Snapshot(), nil
}
