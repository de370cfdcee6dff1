package state

import (
	"sync"

	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/models"
)

// Condition guards a phase transition.
type Condition func(gs *models.GameState) bool

// ErrTransitionNotAllowed is returned when a phase transition is not allowed.
var ErrTransitionNotAllowed = apperr.New(apperr.KindInvalidPhase, "phase transition not allowed")

// Machine 阶段状态机：只允许登记过的转换，条件不满足时拒绝
type Machine struct {
	transitions map[models.Phase]map[models.Phase]Condition // from -> to -> condition
	mutex       sync.RWMutex
}

// NewMachine returns an empty machine that refuses every transition.
func NewMachine() *Machine {
	return &Machine{
		transitions: make(map[models.Phase]map[models.Phase]Condition),
	}
}

// NewGameMachine returns the machine for the game's phase graph:
// SETUP -> PLAYER_TURN -> RUSSIAN_ROULETTE -> PLAYER_TURN | GAME_OVER.
func NewGameMachine() *Machine {
	m := NewMachine()
	m.AddTransition(models.PhaseSetup, models.PhasePlayerTurn, func(gs *models.GameState) bool {
		return len(gs.Players) >= MinPlayers
	})
	m.AddTransition(models.PhasePlayerTurn, models.PhaseRussianRoulette, func(gs *models.GameState) bool {
		return gs.LastMove != nil
	})
	m.AddTransition(models.PhaseRussianRoulette, models.PhasePlayerTurn, func(gs *models.GameState) bool {
		return len(gs.ActivePlayers()) >= MinPlayers
	})
	m.AddTransition(models.PhaseRussianRoulette, models.PhaseGameOver, func(gs *models.GameState) bool {
		return len(gs.ActivePlayers()) >= 1
	})
	return m
}

// AddTransition registers from -> to. A nil condition always allows it.
func (m *Machine) AddTransition(from, to models.Phase, condition Condition) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.transitions[from]; !exists {
		m.transitions[from] = make(map[models.Phase]Condition)
	}
	m.transitions[from][to] = condition
}

// CanChange reports whether gs may move to phase to.
func (m *Machine) CanChange(gs *models.GameState, to models.Phase) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	conditions, exists := m.transitions[gs.Phase]
	if !exists {
		return false
	}
	condition, exists := conditions[to]
	if !exists {
		return false
	}
	return condition == nil || condition(gs)
}

// ChangePhase moves gs to phase to, or leaves it untouched and returns
// ErrTransitionNotAllowed.
func (m *Machine) ChangePhase(gs *models.GameState, to models.Phase) error {
	if !m.CanChange(gs, to) {
		return ErrTransitionNotAllowed
	}
	gs.Phase = to
	return nil
}
