// internal/game/game.go
package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/cache"
	"github.com/jason-s-yu/njuka/internal/models"
	"github.com/jason-s-yu/njuka/internal/rng"
	log "github.com/sirupsen/logrus"
)

// Mode selects between a lobby-backed wager game and a single-player practice game.
type Mode string

const (
	ModeTutorial    Mode = "tutorial"
	ModeMultiplayer Mode = "multiplayer"
)

// Identity of the computer-controlled opponent in tutorial games.
const (
	CPUName   = "CPU Demo"
	CPUUserID = "cpu_demo"
)

// QuitOutcome describes what an in-game quit did to the table.
type QuitOutcome int

const (
	// QuitIgnored means the game was already over.
	QuitIgnored QuitOutcome = iota
	// QuitContinues means two or more players remain.
	QuitContinues
	// QuitLastPlayerWins means one player remains and was declared winner.
	QuitLastPlayerWins
	// QuitAllGone means nobody remains and no winner exists.
	QuitAllGone
)

// NjukaGame holds the entire state for a single game in memory.
// Every exported method assumes Mu is held by the caller.
type NjukaGame struct {
	Mu sync.Mutex

	ID      uuid.UUID
	LobbyID uuid.UUID // uuid.Nil for tutorial games

	Mode       Mode
	MaxPlayers int
	CreatedAt  time.Time

	Players []*models.Player
	Deck    []models.Card // top of the deck is the last element
	Pot     []models.Card // top of the pot is the last element

	// Started is set once entry fees are collected. Tutorial games start on creation.
	Started bool

	CurrentPlayer     int
	HasDrawn          bool
	AnyPlayerHasDrawn bool

	Winner       string
	WinnerUserID string
	WinnerHand   []models.Card
	GameOver     bool
	Forfeited    bool

	EntryFee     float64
	PotAmount    float64
	WinnerAmount float64
	HouseCut     float64
	Settled      bool

	// Revision increases on every mutation so clients can discard stale snapshots.
	Revision int64

	// Actions receives a record of every action for the historian. Nil disables it.
	Actions cache.Publisher

	gen         rng.Generator
	actionIndex int
	removed     bool
}

// NewGame builds an empty game around a freshly shuffled deck.
func NewGame(mode Mode, maxPlayers int, entryFee float64, gen rng.Generator) *NjukaGame {
	if gen == nil {
		gen = rng.Crypto{}
	}
	id, _ := uuid.NewRandom()
	g := &NjukaGame{
		ID:         id,
		Mode:       mode,
		MaxPlayers: maxPlayers,
		EntryFee:   entryFee,
		CreatedAt:  time.Now(),
		Deck:       NewDeck(),
		Pot:        []models.Card{},
		gen:        gen,
	}
	shuffleCards(gen, g.Deck)
	return g
}

// NewTutorial creates a practice game against the CPU with no entry fee.
// The starting seat is chosen at random.
func NewTutorial(playerName, userID string, gen rng.Generator) (*NjukaGame, error) {
	g := NewGame(ModeTutorial, 2, 0, gen)
	if _, err := g.AddPlayer(playerName, userID, false); err != nil {
		return nil, err
	}
	if _, err := g.AddPlayer(CPUName, CPUUserID, true); err != nil {
		return nil, err
	}
	g.CurrentPlayer = g.gen.Intn(len(g.Players))
	g.Started = true
	return g, nil
}

// AddPlayer seats a player and deals them HandSize cards from the live deck.
func (g *NjukaGame) AddPlayer(name, userID string, isCPU bool) (*models.Player, error) {
	if g.GameOver {
		return nil, apperr.Conflict("game is over")
	}
	if g.MaxPlayers > 0 && len(g.Players) >= g.MaxPlayers {
		return nil, apperr.Conflict("game is full")
	}
	if g.PlayerByName(name) != nil {
		return nil, apperr.Conflict("player name %q already taken", name)
	}
	if len(g.Deck) < HandSize {
		return nil, apperr.Conflict("not enough cards left to deal")
	}

	p := &models.Player{Name: name, UserID: userID, IsCPU: isCPU}
	for i := 0; i < HandSize; i++ {
		p.Hand = append(p.Hand, g.popDeck())
	}
	g.Players = append(g.Players, p)

	g.logAction(userID, models.ActionJoin, map[string]interface{}{"player": name})
	g.bump()
	return p, nil
}

// Draw moves the top deck card into the current player's hand and evaluates the table.
// userID, when non-empty, must match the current player's account.
// It reports whether the draw produced a winner.
func (g *NjukaGame) Draw(userID string) (bool, error) {
	if err := g.checkPlayable(userID); err != nil {
		return false, err
	}
	if g.HasDrawn {
		return false, apperr.Conflict("already drawn")
	}
	if len(g.Deck) == 0 {
		g.reshufflePot()
	}
	if len(g.Deck) == 0 {
		return false, apperr.Conflict("deck empty")
	}

	p := g.Players[g.CurrentPlayer]
	card := g.popDeck()
	p.Hand = append(p.Hand, card)
	g.HasDrawn = true
	g.AnyPlayerHasDrawn = true
	g.logAction(p.UserID, models.ActionDraw, map[string]interface{}{"player": p.Name})

	won := g.evaluateWin()
	g.bump()
	return won, nil
}

// Discard moves the card at cardIndex from the current player's hand onto the pot.
// Without a winner the turn passes to the next seat.
func (g *NjukaGame) Discard(userID string, cardIndex int) (bool, error) {
	if err := g.checkPlayable(userID); err != nil {
		return false, err
	}
	if !g.HasDrawn {
		return false, apperr.Conflict("must draw first")
	}
	p := g.Players[g.CurrentPlayer]
	if cardIndex < 0 || cardIndex >= len(p.Hand) {
		return false, apperr.Validation("invalid card index %d", cardIndex)
	}

	card := p.Hand[cardIndex]
	p.Hand = append(p.Hand[:cardIndex], p.Hand[cardIndex+1:]...)
	g.Pot = append(g.Pot, card)
	g.HasDrawn = false
	g.logAction(p.UserID, models.ActionDiscard, map[string]interface{}{
		"player": p.Name,
		"card":   card.String(),
	})

	won := g.evaluateWin()
	if !won {
		g.CurrentPlayer = (g.CurrentPlayer + 1) % len(g.Players)
	}
	g.bump()
	return won, nil
}

// RemovePlayer takes a seat out of the game. The player's cards go back under the deck.
func (g *NjukaGame) RemovePlayer(userID string) (*models.Player, error) {
	i := g.PlayerIndexByUserID(userID)
	if i < 0 {
		return nil, apperr.NotFound("player is not in this game")
	}
	p := g.removePlayerAt(i)
	g.logAction(userID, models.ActionQuit, map[string]interface{}{"player": p.Name, "before_start": true})
	g.bump()
	return p, nil
}

// Quit removes a player from a game in progress. The quitter forfeits their stake.
// With one player left that player wins; with none left the caller must forfeit the pot.
func (g *NjukaGame) Quit(userID string) (QuitOutcome, error) {
	if g.GameOver {
		return QuitIgnored, nil
	}
	if !g.Started {
		return QuitIgnored, apperr.Conflict("game has not started, leave the lobby instead")
	}
	i := g.PlayerIndexByUserID(userID)
	if i < 0 {
		return QuitIgnored, apperr.NotFound("player is not in this game")
	}

	p := g.removePlayerAt(i)
	g.logAction(userID, models.ActionQuit, map[string]interface{}{"player": p.Name})
	defer g.bump()

	switch len(g.Players) {
	case 0:
		g.GameOver = true
		return QuitAllGone, nil
	case 1:
		last := g.Players[0]
		g.declareWinner(WinResult{PlayerIndex: 0, Name: last.Name, UserID: last.UserID, Hand: last.HandCopy()})
		return QuitLastPlayerWins, nil
	}
	return QuitContinues, nil
}

// MarkForfeited records that the whole pot went to the house.
func (g *NjukaGame) MarkForfeited() {
	g.GameOver = true
	g.Forfeited = true
	g.HouseCut = g.PotAmount
	g.WinnerAmount = 0
	g.logAction("", models.ActionForfeit, map[string]interface{}{"pot_amount": g.PotAmount})
	g.bump()
}

// RecordSettlement stores the payout split computed by the settlement engine.
func (g *NjukaGame) RecordSettlement(winnerAmount, houseCut float64) {
	g.WinnerAmount = winnerAmount
	g.HouseCut = houseCut
	g.Settled = true
	g.logAction(g.WinnerUserID, models.ActionSettlement, map[string]interface{}{
		"winner_amount": winnerAmount,
		"house_cut":     houseCut,
	})
	g.bump()
}

// Start records the total of entry fees actually collected and opens the table for play.
func (g *NjukaGame) Start(amount float64) error {
	if g.GameOver {
		return apperr.Conflict("game is over")
	}
	if g.Started {
		return apperr.Conflict("game already started")
	}
	g.Started = true
	g.PotAmount = amount
	g.logAction("", models.ActionStart, map[string]interface{}{"pot_amount": amount})
	g.bump()
	return nil
}

// CurrentPlayerRef returns the seat whose turn it is, or nil if the table is empty.
func (g *NjukaGame) CurrentPlayerRef() *models.Player {
	if len(g.Players) == 0 {
		return nil
	}
	return g.Players[g.CurrentPlayer]
}

func (g *NjukaGame) PlayerByName(name string) *models.Player {
	for _, p := range g.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// PlayerIndexByUserID returns the seat index of userID, or -1.
func (g *NjukaGame) PlayerIndexByUserID(userID string) int {
	if userID == "" {
		return -1
	}
	for i, p := range g.Players {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// CardCount returns the number of cards across deck, pot and hands.
func (g *NjukaGame) CardCount() int {
	n := len(g.Deck) + len(g.Pot)
	for _, p := range g.Players {
		n += len(p.Hand)
	}
	return n
}

// MarkRemoved flags the game as deleted from its store.
func (g *NjukaGame) MarkRemoved() {
	g.removed = true
	g.logAction("", models.ActionCancel, nil)
}

// Removed reports whether the game was deleted while a caller held a reference to it.
func (g *NjukaGame) Removed() bool {
	return g.removed
}

// checkPlayable validates game state and turn ownership before a draw or discard.
func (g *NjukaGame) checkPlayable(userID string) error {
	if g.GameOver {
		return apperr.Conflict("game is over")
	}
	if !g.Started {
		return apperr.Conflict("game has not started")
	}
	p := g.CurrentPlayerRef()
	if p == nil {
		return apperr.Conflict("no players at the table")
	}
	if userID != "" && p.UserID != "" && p.UserID != userID {
		return apperr.Conflict("not your turn")
	}
	return nil
}

func (g *NjukaGame) evaluateWin() bool {
	res, ok := FindWinner(g.Players, g.Pot)
	if !ok {
		return false
	}
	g.declareWinner(res)
	return true
}

func (g *NjukaGame) declareWinner(res WinResult) {
	g.Winner = res.Name
	g.WinnerUserID = res.UserID
	g.WinnerHand = res.Hand
	g.GameOver = true

	hand := make([]string, len(res.Hand))
	for i, c := range res.Hand {
		hand[i] = c.String()
	}
	g.logAction(res.UserID, models.ActionWin, map[string]interface{}{
		"winner": res.Name,
		"hand":   hand,
	})
	log.Infof("Game %s: %s wins with %v.", g.ID, res.Name, hand)
}

// removePlayerAt drops seat i and repairs the turn index.
func (g *NjukaGame) removePlayerAt(i int) *models.Player {
	p := g.Players[i]
	g.Deck = append(copyCards(p.Hand), g.Deck...)
	p.Hand = nil
	g.Players = append(g.Players[:i], g.Players[i+1:]...)

	switch {
	case len(g.Players) == 0:
		g.CurrentPlayer = 0
		g.HasDrawn = false
	case i < g.CurrentPlayer:
		g.CurrentPlayer--
	case i == g.CurrentPlayer:
		g.HasDrawn = false
		if g.CurrentPlayer >= len(g.Players) {
			g.CurrentPlayer = 0
		}
	}
	return p
}

// reshufflePot returns every pot card except the top one to the deck.
func (g *NjukaGame) reshufflePot() {
	if len(g.Pot) < 2 {
		return
	}
	top := g.Pot[len(g.Pot)-1]
	g.Deck = append(g.Deck, g.Pot[:len(g.Pot)-1]...)
	g.Pot = []models.Card{top}
	shuffleCards(g.gen, g.Deck)

	log.Infof("Game %s: deck empty, reshuffled pot into %d card(s).", g.ID, len(g.Deck))
	g.logAction("", models.ActionReshuffle, map[string]interface{}{"deck_size": len(g.Deck)})
}

func (g *NjukaGame) popDeck() models.Card {
	card := g.Deck[len(g.Deck)-1]
	g.Deck = g.Deck[:len(g.Deck)-1]
	return card
}

func (g *NjukaGame) bump() {
	g.Revision++
}

// logAction sends the action to the historian asynchronously.
func (g *NjukaGame) logAction(actorID string, action models.GameAction, payload map[string]interface{}) {
	g.actionIndex++
	if g.Actions == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.ActionRecord{
		GameID:        g.ID,
		ActionIndex:   g.actionIndex,
		ActorUserID:   actorID,
		ActionType:    string(action),
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	pub := g.Actions
	go func(rec cache.ActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := pub.PublishGameAction(ctx, rec); err != nil {
			log.Warnf("Error publishing action %d for game %s: %v", rec.ActionIndex, rec.GameID, err)
		}
	}(record)
}
