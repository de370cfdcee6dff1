// models/revolver.go
package models

import "github.com/wfunc/liarsbar/randutil"

// ChamberCount 左轮弹巢数
const ChamberCount = 6

// Revolver is a player's elimination device: one loaded chamber out of six and
// a trigger position that only moves forward.
type Revolver struct {
	Chambers       [ChamberCount]bool `json:"chambers"`
	CurrentChamber int                `json:"currentChamber"`
}

// NewRevolver loads one chamber at a uniformly random position with the
// trigger at chamber 0, so the first pull fires with probability 1/6.
func NewRevolver(rng randutil.Source) Revolver {
	var r Revolver
	r.Chambers[rng.IntN(ChamberCount)] = true
	return r
}

// WillFire reports whether the chamber under the trigger is loaded.
func (r Revolver) WillFire() bool {
	return r.Chambers[r.CurrentChamber]
}

// Advance moves the trigger to the next chamber after a survived pull.
func (r *Revolver) Advance() {
	r.CurrentChamber = (r.CurrentChamber + 1) % ChamberCount
}

// FireOdds is the probability, as seen by someone who does not know the loaded
// position, that the next pull fires: 1/(6-k) for chamber k.
func (r Revolver) FireOdds() float64 {
	return 1 / float64(ChamberCount-r.CurrentChamber)
}

// LoadedCount returns the number of loaded chambers.
func (r Revolver) LoadedCount() int {
	n := 0
	for _, c := range r.Chambers {
		if c {
			n++
		}
	}
	return n
}
