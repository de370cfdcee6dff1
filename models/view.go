// models/view.go
package models

import "github.com/wfunc/liarsbar/card"

// RoomView is what one viewer is allowed to see of a room. Card identities in
// other players' hands, the deck and the discard pile stay on the server; all
// flags are derived from the phase and data, never stored.
type RoomView struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Capacity        int          `json:"capacity"`
	IsStarted       bool         `json:"isStarted"`
	Phase           Phase        `json:"phase"`
	RoundNumber     int          `json:"roundNumber"`
	BaseCardType    card.Type    `json:"baseCardType,omitempty"`
	CurrentPlayerID string       `json:"currentPlayerId,omitempty"`
	WinnerID        string       `json:"winnerId,omitempty"`
	DeckCount       int          `json:"deckCount"`
	DiscardCount    int          `json:"discardCount"`
	LastMove        *MoveView    `json:"lastMove,omitempty"`
	Players         []PlayerView `json:"players"`
	You             *SelfView    `json:"you,omitempty"`
}

// MoveView hides which cards were placed.
type MoveView struct {
	PlayerID      string `json:"playerId"`
	DeclaredClaim Claim  `json:"declaredClaim"`
	CardCount     int    `json:"cardCount"`
}

// PlayerView is the public face of a player.
type PlayerView struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	HandCount      int     `json:"handCount"`
	IsActive       bool    `json:"isActive"`
	IsCurrentTurn  bool    `json:"isCurrentTurn"`
	CurrentChamber int     `json:"currentChamber"`
	FireOdds       float64 `json:"fireOdds"`
}

// SelfView carries the viewer's private data and what they may do now.
type SelfView struct {
	PlayerID           string      `json:"playerId"`
	Hand               []card.Card `json:"hand"`
	CanMakeMove        bool        `json:"canMakeMove"`
	CanCallLiar        bool        `json:"canCallLiar"`
	CanTriggerRoulette bool        `json:"canTriggerRoulette"`
	MaxCardsPerMove    int         `json:"maxCardsPerMove"`
}

// NewRoomView renders r for viewerID. An empty or unknown viewer gets the
// public view only.
func NewRoomView(r *GameRoom, viewerID string) RoomView {
	gs := r.State
	v := RoomView{
		ID:           r.ID,
		Name:         r.Name,
		Capacity:     r.Capacity,
		IsStarted:    r.IsStarted,
		Phase:        gs.Phase,
		RoundNumber:  gs.RoundNumber,
		BaseCardType: gs.BaseCardType,
		WinnerID:     gs.WinnerID,
		DeckCount:    len(gs.Deck),
		DiscardCount: len(gs.DiscardPile),
		Players:      make([]PlayerView, 0, len(gs.Players)),
	}
	if gs.Phase == PhaseSetup {
		// the deck is full and undealt before the game starts
		v.DeckCount = 0
	}
	if gs.LastMove != nil {
		v.LastMove = &MoveView{
			PlayerID:      gs.LastMove.PlayerID,
			DeclaredClaim: gs.LastMove.DeclaredClaim,
			CardCount:     len(gs.LastMove.CardIDs),
		}
	}
	if cur, ok := gs.CurrentPlayer(); ok {
		v.CurrentPlayerID = cur.ID
	}

	for _, p := range gs.Players {
		v.Players = append(v.Players, PlayerView{
			ID:             p.ID,
			Name:           p.Name,
			HandCount:      len(p.Hand),
			IsActive:       p.IsActive,
			IsCurrentTurn:  p.IsCurrentTurn,
			CurrentChamber: p.Revolver.CurrentChamber,
			FireOdds:       p.Revolver.FireOdds(),
		})
	}

	if me, ok := gs.Player(viewerID); ok {
		hand := make([]card.Card, 0, len(me.Hand))
		for _, id := range me.Hand {
			t, _ := gs.TypeOf(id)
			hand = append(hand, card.Card{ID: id, Type: t})
		}
		myTurn := me.IsActive && me.IsCurrentTurn
		v.You = &SelfView{
			PlayerID:           me.ID,
			Hand:               hand,
			CanMakeMove:        myTurn && gs.Phase == PhasePlayerTurn && len(me.Hand) > 0,
			CanCallLiar:        myTurn && gs.Phase == PhasePlayerTurn && gs.LastMove != nil && gs.LastMove.PlayerID != me.ID,
			CanTriggerRoulette: myTurn && gs.Phase == PhaseRussianRoulette,
			MaxCardsPerMove:    card.MaxPerMove,
		}
	}
	return v
}
