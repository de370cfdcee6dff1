package state

import (
	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/card"
	"github.com/wfunc/liarsbar/models"
)

// Validate checks the structural invariants of gs: every card accounted for
// exactly once, turn exclusivity per phase, winner only at game over and
// revolvers in range. A violation is reported as a CapacityError because the
// room can no longer be trusted.
func Validate(gs *models.GameState) error {
	if len(gs.CardRegistry) != card.DeckSize {
		return apperr.Newf(apperr.KindCapacity, "registry holds %d cards", len(gs.CardRegistry))
	}

	seen := make(map[int]string, card.DeckSize)
	place := func(id int, where string) error {
		if _, ok := gs.TypeOf(id); !ok {
			return apperr.Newf(apperr.KindCapacity, "unknown card %d in %s", id, where)
		}
		if prev, dup := seen[id]; dup {
			return apperr.Newf(apperr.KindCapacity, "card %d in both %s and %s", id, prev, where)
		}
		seen[id] = where
		return nil
	}
	for _, p := range gs.Players {
		for _, id := range p.Hand {
			if err := place(id, "hand of "+p.ID); err != nil {
				return err
			}
		}
	}
	for _, id := range gs.Deck {
		if err := place(id, "deck"); err != nil {
			return err
		}
	}
	for _, id := range gs.DiscardPile {
		if err := place(id, "discard pile"); err != nil {
			return err
		}
	}
	if len(seen) != card.DeckSize {
		return apperr.Newf(apperr.KindCapacity, "%d of %d cards accounted for", len(seen), card.DeckSize)
	}

	current := 0
	currentIdx := -1
	for i, p := range gs.Players {
		if p.IsCurrentTurn {
			current++
			currentIdx = i
		}
		if p.Revolver.CurrentChamber < 0 || p.Revolver.CurrentChamber >= models.ChamberCount {
			return apperr.Newf(apperr.KindCapacity, "player %s chamber %d out of range", p.ID, p.Revolver.CurrentChamber)
		}
		if p.Revolver.LoadedCount() != 1 {
			return apperr.Newf(apperr.KindCapacity, "player %s revolver has %d loaded chambers", p.ID, p.Revolver.LoadedCount())
		}
	}

	switch gs.Phase {
	case models.PhasePlayerTurn, models.PhaseRussianRoulette:
		if len(gs.ActivePlayers()) == 0 {
			return apperr.Newf(apperr.KindCapacity, "no active player in %s", gs.Phase)
		}
		if current != 1 {
			return apperr.Newf(apperr.KindCapacity, "%d players hold the turn in %s", current, gs.Phase)
		}
		if currentIdx != gs.CurrentPlayerIndex {
			return apperr.Newf(apperr.KindCapacity, "current index %d but player %d holds the turn", gs.CurrentPlayerIndex, currentIdx)
		}
		if cur := gs.Players[currentIdx]; !cur.IsActive {
			return apperr.Newf(apperr.KindCapacity, "eliminated player %s holds the turn", cur.ID)
		}
	case models.PhaseSetup, models.PhaseGameOver:
		if current != 0 {
			return apperr.Newf(apperr.KindCapacity, "%d players hold the turn in %s", current, gs.Phase)
		}
	default:
		return apperr.Newf(apperr.KindCapacity, "unknown phase %q", gs.Phase)
	}

	if (gs.WinnerID != "") != (gs.Phase == models.PhaseGameOver) {
		return apperr.Newf(apperr.KindCapacity, "winner %q in phase %s", gs.WinnerID, gs.Phase)
	}
	if gs.WinnerID != "" {
		w, ok := gs.Player(gs.WinnerID)
		if !ok || !w.IsActive {
			return apperr.Newf(apperr.KindCapacity, "winner %s is not an active player", gs.WinnerID)
		}
	}
	return nil
}
