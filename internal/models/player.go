// internal/models/player.go
package models

// Player is a seat at a game table. UserID is empty for legacy entries identified only by name.
type Player struct {
	Name   string `json:"name"`
	UserID string `json:"uid"`
	Hand   []Card `json:"hand"`
	IsCPU  bool   `json:"is_cpu"`
}

// HandCopy returns a copy of the player's hand safe to hand out of the game lock.
func (p *Player) HandCopy() []Card {
	out := make([]Card, len(p.Hand))
	copy(out, p.Hand)
	return out
}
