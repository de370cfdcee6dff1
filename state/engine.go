package state

import (
	"strings"

	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/card"
	"github.com/wfunc/liarsbar/models"
	"github.com/wfunc/liarsbar/randutil"
)

// MinPlayers is the smallest table a game can start with.
const MinPlayers = 2

// WinRule decides whether the game ends after a roulette resolution. loserID is
// the player who just pulled the trigger.
type WinRule func(gs *models.GameState, loserID string) (winnerID string, ok bool)

// Rules tunes the engine.
type Rules struct {
	HandSize        int
	MaxCardsPerMove int
	// ExtraWinRules are checked after the last-player-standing rule.
	ExtraWinRules []WinRule
}

// DefaultRules returns the standard table rules.
func DefaultRules() Rules {
	return Rules{
		HandSize:        card.HandSize,
		MaxCardsPerMove: card.MaxPerMove,
	}
}

// JoinRequest describes a player entering a room.
type JoinRequest struct {
	PlayerID     string
	Name         string
	SessionToken string
}

// Challenge is the outcome of a liar call.
type Challenge struct {
	CallerID      string       `json:"callerId"`
	MoverID       string       `json:"moverId"`
	LoserID       string       `json:"loserId"`
	Claim         models.Claim `json:"claim"`
	AllMatch      bool         `json:"allMatch"`
	RevealedTypes []card.Type  `json:"revealedTypes"`
}

// RouletteOutcome is the result of one trigger pull.
type RouletteOutcome struct {
	PlayerID   string `json:"playerId"`
	Chamber    int    `json:"chamber"`
	WillFire   bool   `json:"willFire"`
	Eliminated bool   `json:"eliminated"`
	WinnerID   string `json:"winnerId,omitempty"`
	NewRound   bool   `json:"newRound"`
}

// Engine applies game operations to a room. It holds no per-room state and is
// safe to share; callers must serialize operations on the same room.
type Engine struct {
	machine *Machine
	rules   Rules
}

// NewEngine creates an engine with the given rules.
func NewEngine(rules Rules) *Engine {
	if rules.HandSize <= 0 {
		rules.HandSize = card.HandSize
	}
	if rules.MaxCardsPerMove <= 0 {
		rules.MaxCardsPerMove = card.MaxPerMove
	}
	return &Engine{
		machine: NewGameMachine(),
		rules:   rules,
	}
}

// Rules returns the engine's rules.
func (e *Engine) Rules() Rules {
	return e.rules
}

// Join adds a player to room, or returns the existing player bound to the same
// session token. created is false for a reconnecting token.
func (e *Engine) Join(room *models.GameRoom, req JoinRequest, rng randutil.Source) (player *models.Player, created bool, err error) {
	gs := room.State
	if req.SessionToken != "" {
		if existing, ok := gs.PlayerBySession(req.SessionToken); ok {
			return existing, false, nil
		}
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, false, apperr.New(apperr.KindInvalidRequest, "player name is required")
	}
	if room.IsStarted || gs.Phase != models.PhaseSetup {
		return nil, false, apperr.Newf(apperr.KindInvalidPhase, "room %s has already started", room.ID)
	}
	if len(gs.Players) >= room.Capacity {
		return nil, false, apperr.Newf(apperr.KindRoomFull, "room %s is full (%d/%d)", room.ID, len(gs.Players), room.Capacity)
	}

	player = &models.Player{
		ID:           req.PlayerID,
		Name:         req.Name,
		SessionToken: req.SessionToken,
		Hand:         []int{},
		Revolver:     models.NewRevolver(rng),
		IsActive:     true,
	}
	gs.Players = append(gs.Players, player)
	return player, true, nil
}

// Rebind moves the player bound to oldToken onto newToken.
func (e *Engine) Rebind(room *models.GameRoom, oldToken, newToken string) (*models.Player, error) {
	p, ok := room.State.PlayerBySession(oldToken)
	if !ok {
		return nil, apperr.New(apperr.KindPlayerNotFound, "no player for session")
	}
	p.SessionToken = newToken
	return p, nil
}

// StartGame deals the first round.
func (e *Engine) StartGame(room *models.GameRoom, rng randutil.Source) error {
	gs := room.State
	if gs.Phase != models.PhaseSetup {
		return apperr.Newf(apperr.KindInvalidPhase, "cannot start game in phase %s", gs.Phase)
	}
	if len(gs.Players) < MinPlayers {
		return apperr.Newf(apperr.KindInsufficientPlayers, "need at least %d players, have %d", MinPlayers, len(gs.Players))
	}
	if !e.machine.CanChange(gs, models.PhasePlayerTurn) {
		return ErrTransitionNotAllowed
	}

	if err := e.dealRound(gs, rng); err != nil {
		return err
	}
	if err := e.machine.ChangePhase(gs, models.PhasePlayerTurn); err != nil {
		return err
	}
	setCurrent(gs, 0)
	gs.RoundNumber = 1
	gs.WinnerID = ""
	room.IsStarted = true
	return nil
}

// MakeMove places cardIDs face-down under claim and passes the turn to the
// next active player.
func (e *Engine) MakeMove(gs *models.GameState, playerID string, claim models.Claim, cardIDs []int) error {
	idx := gs.PlayerIndex(playerID)
	if idx < 0 {
		return apperr.Newf(apperr.KindPlayerNotFound, "player %s not in room", playerID)
	}
	if gs.Phase != models.PhasePlayerTurn {
		return apperr.Newf(apperr.KindInvalidPhase, "cannot play cards in phase %s", gs.Phase)
	}
	p := gs.Players[idx]
	if !p.IsActive || !p.IsCurrentTurn {
		return apperr.New(apperr.KindNotYourTurn, "it is not your turn")
	}
	if err := e.validateCards(gs, p, claim, cardIDs); err != nil {
		return err
	}
	next := nextActiveAfter(gs, idx)
	if next < 0 || next == idx {
		return apperr.New(apperr.KindNoCurrentPlayer, "no opponent left to take the turn")
	}

	placed := make([]int, len(cardIDs))
	copy(placed, cardIDs)

	p.RemoveCards(placed)
	gs.DiscardPile = append(gs.DiscardPile, placed...)
	gs.LastMove = &models.Move{
		PlayerID:      p.ID,
		DeclaredClaim: claim,
		CardIDs:       placed,
	}
	setCurrent(gs, next)
	return nil
}

func (e *Engine) validateCards(gs *models.GameState, p *models.Player, claim models.Claim, cardIDs []int) error {
	if len(cardIDs) == 0 {
		return apperr.New(apperr.KindInvalidCards, "no cards selected")
	}
	if len(cardIDs) > e.rules.MaxCardsPerMove {
		return apperr.Newf(apperr.KindInvalidCards, "at most %d cards per move", e.rules.MaxCardsPerMove)
	}
	seen := make(map[int]bool, len(cardIDs))
	for _, id := range cardIDs {
		if seen[id] {
			return apperr.Newf(apperr.KindInvalidCards, "card %d selected twice", id)
		}
		seen[id] = true
	}
	if !p.HasCards(cardIDs) {
		return apperr.New(apperr.KindInvalidCards, "cards are not in your hand")
	}
	if claim.Count != len(cardIDs) {
		return apperr.Newf(apperr.KindInvalidCards, "claimed %d cards but placed %d", claim.Count, len(cardIDs))
	}
	if claim.Type != gs.BaseCardType {
		return apperr.Newf(apperr.KindInvalidCards, "claim must be %s this round", gs.BaseCardType)
	}
	return nil
}

// CallLiar resolves a challenge against the last move. Only the next active
// player after the mover may call it.
func (e *Engine) CallLiar(gs *models.GameState, callerID string) (Challenge, error) {
	callerIdx := gs.PlayerIndex(callerID)
	if callerIdx < 0 {
		return Challenge{}, apperr.Newf(apperr.KindPlayerNotFound, "player %s not in room", callerID)
	}
	if gs.Phase != models.PhasePlayerTurn {
		return Challenge{}, apperr.Newf(apperr.KindInvalidPhase, "cannot call liar in phase %s", gs.Phase)
	}
	if gs.LastMove == nil {
		return Challenge{}, apperr.New(apperr.KindNoPendingMove, "there is no move to challenge")
	}
	moverIdx := gs.PlayerIndex(gs.LastMove.PlayerID)
	if moverIdx < 0 {
		return Challenge{}, apperr.Newf(apperr.KindCapacity, "last move belongs to unknown player %s", gs.LastMove.PlayerID)
	}
	if callerIdx == moverIdx || callerIdx != nextActiveAfter(gs, moverIdx) {
		return Challenge{}, apperr.New(apperr.KindIllegalChallenger, "only the next player may call liar")
	}

	claim := gs.LastMove.DeclaredClaim
	revealed := make([]card.Type, 0, len(gs.LastMove.CardIDs))
	allMatch := true
	for _, id := range gs.LastMove.CardIDs {
		t, ok := gs.TypeOf(id)
		if !ok {
			return Challenge{}, apperr.Newf(apperr.KindCapacity, "card %d missing from registry", id)
		}
		revealed = append(revealed, t)
		if t != claim.Type && t != card.Joker {
			allMatch = false
		}
	}

	loserIdx := moverIdx
	if allMatch {
		loserIdx = callerIdx
	}
	if !e.machine.CanChange(gs, models.PhaseRussianRoulette) {
		return Challenge{}, ErrTransitionNotAllowed
	}
	if err := e.machine.ChangePhase(gs, models.PhaseRussianRoulette); err != nil {
		return Challenge{}, err
	}
	setCurrent(gs, loserIdx)

	return Challenge{
		CallerID:      callerID,
		MoverID:       gs.LastMove.PlayerID,
		LoserID:       gs.Players[loserIdx].ID,
		Claim:         claim,
		AllMatch:      allMatch,
		RevealedTypes: revealed,
	}, nil
}

// TriggerRoulette makes the current player pull the trigger, then either ends
// the game or starts the next round. A non-empty playerID must name the
// current player.
func (e *Engine) TriggerRoulette(gs *models.GameState, playerID string, rng randutil.Source) (RouletteOutcome, error) {
	if gs.Phase != models.PhaseRussianRoulette {
		return RouletteOutcome{}, apperr.Newf(apperr.KindInvalidPhase, "cannot pull the trigger in phase %s", gs.Phase)
	}
	cur, ok := gs.CurrentPlayer()
	if !ok {
		return RouletteOutcome{}, apperr.New(apperr.KindNoCurrentPlayer, "nobody holds the revolver")
	}
	if playerID != "" && playerID != cur.ID {
		if gs.PlayerIndex(playerID) < 0 {
			return RouletteOutcome{}, apperr.Newf(apperr.KindPlayerNotFound, "player %s not in room", playerID)
		}
		return RouletteOutcome{}, apperr.New(apperr.KindNotYourTurn, "it is not your turn to pull the trigger")
	}

	out := RouletteOutcome{
		PlayerID: cur.ID,
		Chamber:  cur.Revolver.CurrentChamber,
		WillFire: cur.Revolver.WillFire(),
	}
	if out.WillFire {
		cur.IsActive = false
		out.Eliminated = true
	} else {
		cur.Revolver.Advance()
	}

	if winnerID, won := e.winner(gs, cur.ID); won {
		if err := e.machine.ChangePhase(gs, models.PhaseGameOver); err != nil {
			return RouletteOutcome{}, err
		}
		gs.WinnerID = winnerID
		clearCurrent(gs)
		out.WinnerID = winnerID
		return out, nil
	}

	if err := e.startNextRound(gs, cur.ID, rng); err != nil {
		return RouletteOutcome{}, err
	}
	out.NewRound = true
	return out, nil
}

func (e *Engine) winner(gs *models.GameState, loserID string) (string, bool) {
	if id, ok := LastPlayerStanding(gs, loserID); ok {
		return id, true
	}
	for _, rule := range e.rules.ExtraWinRules {
		if id, ok := rule(gs, loserID); ok {
			return id, true
		}
	}
	return "", false
}

// startNextRound redeals and gives the turn to the next active player after
// the disputed mover.
func (e *Engine) startNextRound(gs *models.GameState, loserID string, rng randutil.Source) error {
	anchor := gs.PlayerIndex(loserID)
	if gs.LastMove != nil {
		if i := gs.PlayerIndex(gs.LastMove.PlayerID); i >= 0 {
			anchor = i
		}
	}
	next := nextActiveAfter(gs, anchor)
	if next < 0 {
		return apperr.New(apperr.KindNoCurrentPlayer, "no active player for the next round")
	}
	if !e.machine.CanChange(gs, models.PhasePlayerTurn) {
		return ErrTransitionNotAllowed
	}
	if err := e.dealRound(gs, rng); err != nil {
		return err
	}
	if err := e.machine.ChangePhase(gs, models.PhasePlayerTurn); err != nil {
		return err
	}
	gs.RoundNumber++
	setCurrent(gs, next)
	return nil
}

// dealRound gathers every card, shuffles, deals a hand to each active player
// and picks the round's base card.
func (e *Engine) dealRound(gs *models.GameState, rng randutil.Source) error {
	active := gs.ActivePlayers()
	shuffled := card.Shuffle(rng, card.IDs(gs.CardRegistry))
	hands, rest, err := card.Deal(shuffled, len(active), e.rules.HandSize)
	if err != nil {
		return err
	}
	for _, p := range gs.Players {
		p.Hand = []int{}
	}
	for i, p := range active {
		p.Hand = hands[i]
	}
	gs.Deck = rest
	gs.DiscardPile = []int{}
	gs.LastMove = nil
	gs.BaseCardType = card.RandomBaseType(rng)
	return nil
}

// LastPlayerStanding ends the game when exactly one active player remains.
func LastPlayerStanding(gs *models.GameState, _ string) (string, bool) {
	active := gs.ActivePlayers()
	if len(active) == 1 {
		return active[0].ID, true
	}
	return "", false
}

// EmptiedHand lets the disputed mover win when they got rid of every card and
// did not lose the challenge.
func EmptiedHand(gs *models.GameState, loserID string) (string, bool) {
	if gs.LastMove == nil || gs.LastMove.PlayerID == loserID {
		return "", false
	}
	mover, ok := gs.Player(gs.LastMove.PlayerID)
	if !ok || !mover.IsActive || len(mover.Hand) > 0 {
		return "", false
	}
	return mover.ID, true
}

// nextActiveAfter returns the index of the first active player after idx in
// turn order, wrapping around. Inactive players are always skipped.
func nextActiveAfter(gs *models.GameState, idx int) int {
	n := len(gs.Players)
	if n == 0 {
		return -1
	}
	for step := 1; step <= n; step++ {
		j := (idx + step + n) % n
		if gs.Players[j].IsActive {
			return j
		}
	}
	return -1
}

func setCurrent(gs *models.GameState, idx int) {
	for i, p := range gs.Players {
		p.IsCurrentTurn = i == idx
	}
	gs.CurrentPlayerIndex = idx
}

func clearCurrent(gs *models.GameState) {
	for _, p := range gs.Players {
		p.IsCurrentTurn = false
	}
	gs.CurrentPlayerIndex = -1
}
