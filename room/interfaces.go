package room

import "github.com/wfunc/liarsbar/models"

// Saver persists committed snapshots. Defined here so room does not depend on
// a concrete store.
type Saver interface {
	SaveRoom(room *models.GameRoom) error
}

// Store is what the registry needs from persistence.
type Store interface {
	Saver
	DeleteRoom(roomID string) error
}

// Observer receives registry and fan-out statistics.
type Observer interface {
	SetActiveRooms(count int)
	IncDroppedUpdates()
}

type nopObserver struct{}

func (nopObserver) SetActiveRooms(int) {}
func (nopObserver) IncDroppedUpdates() {}
