// models/game.go
package models

import (
	"time"

	"github.com/wfunc/liarsbar/card"
)

// Phase 游戏阶段，是房间状态的唯一依据
type Phase string

const (
	PhaseSetup           Phase = "SETUP"
	PhasePlayerTurn      Phase = "PLAYER_TURN"
	PhaseRussianRoulette Phase = "RUSSIAN_ROULETTE"
	PhaseGameOver        Phase = "GAME_OVER"
)

// Claim is what a mover declares about the cards they placed.
type Claim struct {
	Count int       `json:"count"`
	Type  card.Type `json:"type"`
}

// Move is the last unresolved play on the table.
type Move struct {
	PlayerID      string `json:"playerId"`
	DeclaredClaim Claim  `json:"declaredClaim"`
	CardIDs       []int  `json:"cardIds"`
}

// GameState is the authoritative state of one room's game.
type GameState struct {
	Phase              Phase       `json:"phase"`
	Players            []*Player   `json:"players"`
	Deck               []int       `json:"deck"`
	DiscardPile        []int       `json:"discardPile"`
	BaseCardType       card.Type   `json:"baseCardType"`
	CurrentPlayerIndex int         `json:"currentPlayerIndex"`
	LastMove           *Move       `json:"lastMove"`
	RoundNumber        int         `json:"roundNumber"`
	WinnerID           string      `json:"winnerId"`
	CardRegistry       []card.Card `json:"cardRegistry"`
}

// NewGameState returns a SETUP state with the full card set registered but not
// yet dealt.
func NewGameState() *GameState {
	registry := card.BuildDeck()
	return &GameState{
		Phase:              PhaseSetup,
		Players:            []*Player{},
		Deck:               card.IDs(registry),
		DiscardPile:        []int{},
		CurrentPlayerIndex: -1,
		RoundNumber:        0,
		CardRegistry:       registry,
	}
}

// TypeOf resolves a card id through the registry.
func (gs *GameState) TypeOf(id int) (card.Type, bool) {
	for _, c := range gs.CardRegistry {
		if c.ID == id {
			return c.Type, true
		}
	}
	return "", false
}

// PlayerIndex returns the turn-order index of playerID, or -1.
func (gs *GameState) PlayerIndex(playerID string) int {
	for i, p := range gs.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// Player returns the player with the given id.
func (gs *GameState) Player(playerID string) (*Player, bool) {
	i := gs.PlayerIndex(playerID)
	if i < 0 {
		return nil, false
	}
	return gs.Players[i], true
}

// PlayerBySession returns the player bound to token.
func (gs *GameState) PlayerBySession(token string) (*Player, bool) {
	for _, p := range gs.Players {
		if p.SessionToken == token {
			return p, true
		}
	}
	return nil, false
}

// CurrentPlayer returns the player holding the turn.
func (gs *GameState) CurrentPlayer() (*Player, bool) {
	for _, p := range gs.Players {
		if p.IsCurrentTurn {
			return p, true
		}
	}
	return nil, false
}

// ActivePlayers returns players still in the game, in turn order.
func (gs *GameState) ActivePlayers() []*Player {
	var active []*Player
	for _, p := range gs.Players {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active
}

// CardCount counts ids across hands, deck and discard pile.
func (gs *GameState) CardCount() int {
	n := len(gs.Deck) + len(gs.DiscardPile)
	for _, p := range gs.Players {
		n += len(p.Hand)
	}
	return n
}

// Clone returns a deep copy safe to mutate or share.
func (gs *GameState) Clone() *GameState {
	if gs == nil {
		return nil
	}
	c := *gs
	c.Players = make([]*Player, len(gs.Players))
	for i, p := range gs.Players {
		c.Players[i] = p.clone()
	}
	c.Deck = cloneInts(gs.Deck)
	c.DiscardPile = cloneInts(gs.DiscardPile)
	if gs.LastMove != nil {
		m := *gs.LastMove
		m.CardIDs = cloneInts(gs.LastMove.CardIDs)
		c.LastMove = &m
	}
	// the registry is never mutated after creation
	c.CardRegistry = gs.CardRegistry
	return &c
}

// GameRoom 游戏房间
type GameRoom struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Capacity  int        `json:"capacity"`
	IsStarted bool       `json:"isStarted"`
	CreatedAt time.Time  `json:"createdAt"`
	State     *GameState `json:"gameState"`
}

// NewGameRoom creates a room in SETUP phase.
func NewGameRoom(id, name string, capacity int, now time.Time) *GameRoom {
	return &GameRoom{
		ID:        id,
		Name:      name,
		Capacity:  capacity,
		CreatedAt: now,
		State:     NewGameState(),
	}
}

// Players returns the room's players in turn order.
func (r *GameRoom) Players() []*Player {
	return r.State.Players
}

// Clone returns a deep copy of the room.
func (r *GameRoom) Clone() *GameRoom {
	if r == nil {
		return nil
	}
	c := *r
	c.State = r.State.Clone()
	return &c
}

// RoomSummary is the lobby listing entry for a room.
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
	Capacity    int    `json:"capacity"`
	IsStarted   bool   `json:"isStarted"`
	Phase       Phase  `json:"phase"`
}

// Summary builds the lobby entry for r.
func (r *GameRoom) Summary() RoomSummary {
	return RoomSummary{
		ID:          r.ID,
		Name:        r.Name,
		PlayerCount: len(r.State.Players),
		Capacity:    r.Capacity,
		IsStarted:   r.IsStarted,
		Phase:       r.State.Phase,
	}
}
