package persistence

import (
	"sort"
	"sync"

	"github.com/wfunc/liarsbar/logger"
	"github.com/wfunc/liarsbar/models"
)

// MemoryStore keeps encoded rooms in a map. Rooms are stored as JSON so a
// loaded room never aliases a saved one, same as the SQL stores.
type MemoryStore struct {
	rooms map[string][]byte
	mutex sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]byte)}
}

func (m *MemoryStore) SaveRoom(room *models.GameRoom) error {
	rec, err := models.NewGormRoom(room)
	if err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rooms[room.ID] = rec.State
	return nil
}

func (m *MemoryStore) LoadRoom(roomID string) (*models.GameRoom, error) {
	m.mutex.RLock()
	data, ok := m.rooms[roomID]
	m.mutex.RUnlock()
	if !ok {
		return nil, ErrRecordNotFound
	}
	return models.DecodeRoom(data)
}

func (m *MemoryStore) DeleteRoom(roomID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.rooms, roomID)
	return nil
}

// ListRooms returns every stored room ordered by creation time. Records that
// no longer decode are logged and skipped.
func (m *MemoryStore) ListRooms() ([]*models.GameRoom, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rooms := make([]*models.GameRoom, 0, len(m.rooms))
	for id, data := range m.rooms {
		r, err := models.DecodeRoom(data)
		if err != nil {
			logger.Log.Warnf("skip stored room %s: %v", id, err)
			continue
		}
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
