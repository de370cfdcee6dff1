// models/player.go
package models

// Player 房间内的玩家记录，房间存在期间不会被删除
type Player struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	SessionToken  string   `json:"sessionToken"`
	Hand          []int    `json:"hand"`
	Revolver      Revolver `json:"revolver"`
	IsActive      bool     `json:"isActive"`
	IsCurrentTurn bool     `json:"isCurrentTurn"`
}

// HasCards reports whether every id is in the player's hand.
func (p *Player) HasCards(ids []int) bool {
	for _, id := range ids {
		if !containsInt(p.Hand, id) {
			return false
		}
	}
	return true
}

// RemoveCards drops ids from the hand, keeping the order of the rest.
func (p *Player) RemoveCards(ids []int) {
	kept := p.Hand[:0]
	for _, id := range p.Hand {
		if !containsInt(ids, id) {
			kept = append(kept, id)
		}
	}
	p.Hand = kept
}

func (p *Player) clone() *Player {
	c := *p
	c.Hand = cloneInts(p.Hand)
	return &c
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func cloneInts(src []int) []int {
	if src == nil {
		return nil
	}
	out := make([]int, len(src))
	copy(out, src)
	return out
}
