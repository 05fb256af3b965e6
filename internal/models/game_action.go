// internal/models/game_action.go
package models

// GameAction names an action published to the historian for a game.
type GameAction string

const (
	ActionJoin       GameAction = "join"
	ActionStart      GameAction = "start"
	ActionDraw       GameAction = "draw"
	ActionDiscard    GameAction = "discard"
	ActionWin        GameAction = "win"
	ActionQuit       GameAction = "quit"
	ActionForfeit    GameAction = "forfeit"
	ActionCancel     GameAction = "cancel"
	ActionReshuffle  GameAction = "reshuffle"
	ActionSettlement GameAction = "settlement"
)
