// card/card.go
package card

import (
	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/randutil"
)

// Type 牌面类型
type Type string

const (
	Queen Type = "QUEEN"
	King  Type = "KING"
	Ace   Type = "ACE"
	Joker Type = "JOKER"
)

const (
	// DeckSize is the number of cards in every room.
	DeckSize = 20
	// HandSize is the number of cards dealt to each player per round.
	HandSize = 5
	// MaxPerMove is the most cards a player may place in one move.
	MaxPerMove = 3
)

// composition in id order: ids 1..6 QUEEN, 7..12 KING, 13..18 ACE, 19..20 JOKER.
var composition = []struct {
	t     Type
	count int
}{
	{Queen, 6},
	{King, 6},
	{Ace, 6},
	{Joker, 2},
}

// BaseTypes are the types a round may be played against. JOKER never is.
var BaseTypes = []Type{Queen, King, Ace}

// Valid reports whether t is one of the four card types.
func (t Type) Valid() bool {
	switch t {
	case Queen, King, Ace, Joker:
		return true
	}
	return false
}

// IsBase reports whether t can be chosen as a round's base card.
func (t Type) IsBase() bool {
	return t.Valid() && t != Joker
}

// Card is immutable once created.
type Card struct {
	ID   int  `json:"id"`
	Type Type `json:"type"`
}

// BuildDeck returns the fixed 20-card set with ids assigned in stable order.
func BuildDeck() []Card {
	cards := make([]Card, 0, DeckSize)
	id := 1
	for _, c := range composition {
		for i := 0; i < c.count; i++ {
			cards = append(cards, Card{ID: id, Type: c.t})
			id++
		}
	}
	return cards
}

// IDs returns the ids of cards in order.
func IDs(cards []Card) []int {
	ids := make([]int, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return ids
}

// Shuffle returns a uniformly random permutation of ids (Fisher–Yates). The
// input slice is left untouched.
func Shuffle(rng randutil.Source, ids []int) []int {
	out := make([]int, len(ids))
	copy(out, ids)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Deal removes perPlayer ids per player in turn order from the front of
// shuffled and returns the hands plus the remainder.
func Deal(shuffled []int, players, perPlayer int) ([][]int, []int, error) {
	if players < 0 || perPlayer < 0 {
		return nil, nil, apperr.Newf(apperr.KindCapacity, "cannot deal %d cards to %d players", perPlayer, players)
	}
	need := players * perPlayer
	if need > len(shuffled) {
		return nil, nil, apperr.Newf(apperr.KindCapacity, "deck underflow: need %d cards, have %d", need, len(shuffled))
	}

	hands := make([][]int, players)
	for i := 0; i < players; i++ {
		hand := make([]int, perPlayer)
		copy(hand, shuffled[i*perPlayer:(i+1)*perPlayer])
		hands[i] = hand
	}
	remainder := make([]int, len(shuffled)-need)
	copy(remainder, shuffled[need:])
	return hands, remainder, nil
}

// RandomBaseType picks a base type uniformly from QUEEN, KING and ACE.
func RandomBaseType(rng randutil.Source) Type {
	return BaseTypes[rng.IntN(len(BaseTypes))]
}
