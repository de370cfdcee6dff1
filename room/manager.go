package room

import (
	"sort"
	"sync"
	"time"

	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/logger"
	"github.com/wfunc/liarsbar/models"
	"github.com/wfunc/liarsbar/timer"
)

// ManagerOptions configures the registry.
type ManagerOptions struct {
	Store    Store
	Timers   *timer.TimerManager
	IdleTTL  time.Duration // 0 disables idle removal
	Buffer   int
	Observer Observer
	// OnRemove runs after a room has been dropped from the registry.
	OnRemove func(roomID string)
}

// Manager 管理所有房间以及会话与房间的绑定
type Manager struct {
	opts     ManagerOptions
	rooms    map[string]*Room
	sessions map[string]string // session token -> roomID
	mutex    sync.RWMutex

	idleMutex sync.Mutex
	idle      map[string]int64 // roomID -> timer id
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(opts ManagerOptions) *Manager {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Manager{
		opts:     opts,
		rooms:    make(map[string]*Room),
		sessions: make(map[string]string),
		idle:     make(map[string]int64),
	}
}

// CreateRoom registers r and starts its actor. The room is persisted before it
// becomes visible.
func (m *Manager) CreateRoom(r *models.GameRoom) (*Room, error) {
	m.mutex.Lock()
	if _, exists := m.rooms[r.ID]; exists {
		m.mutex.Unlock()
		return nil, apperr.Newf(apperr.KindDuplicateRoomID, "room %s already exists", r.ID)
	}
	if m.opts.Store != nil {
		if err := m.opts.Store.SaveRoom(r); err != nil {
			m.mutex.Unlock()
			return nil, err
		}
	}

	room := NewRoom(r, Options{
		Saver:    m.opts.Store,
		Buffer:   m.opts.Buffer,
		Observer: m.opts.Observer,
		OnIdle:   m.armIdle,
		OnActive: m.disarmIdle,
	})
	m.rooms[r.ID] = room
	for _, p := range r.State.Players {
		if p.SessionToken != "" {
			m.sessions[p.SessionToken] = r.ID
		}
	}
	count := len(m.rooms)
	m.mutex.Unlock()

	m.opts.Observer.SetActiveRooms(count)
	m.armIdle(r.ID)
	return room, nil
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	if !exists {
		return nil, apperr.Newf(apperr.KindRoomNotFound, "room %s not found", id)
	}
	return room, nil
}

// RemoveRoom 从管理器中移除并关闭一个房间，同时删除存储与会话绑定
func (m *Manager) RemoveRoom(id string) bool {
	m.mutex.Lock()
	room, exists := m.rooms[id]
	if !exists {
		m.mutex.Unlock()
		return false
	}
	delete(m.rooms, id)
	for token, roomID := range m.sessions {
		if roomID == id {
			delete(m.sessions, token)
		}
	}
	count := len(m.rooms)
	m.mutex.Unlock()

	room.Close()
	m.disarmIdle(id)
	if m.opts.Store != nil {
		if err := m.opts.Store.DeleteRoom(id); err != nil {
			logger.Log.Errorf("delete room %s from store: %v", id, err)
		}
	}
	m.opts.Observer.SetActiveRooms(count)
	if m.opts.OnRemove != nil {
		m.opts.OnRemove(id)
	}
	return true
}

// List returns live rooms ordered by creation time.
func (m *Manager) List() []*Room {
	m.mutex.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mutex.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		a, b := rooms[i].Snapshot(), rooms[j].Snapshot()
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return rooms
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Bind records that token plays in roomID.
func (m *Manager) Bind(token, roomID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[token] = roomID
}

// Unbind drops the binding for token.
func (m *Manager) Unbind(token string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, token)
}

// FindBySession returns the room a session token plays in.
func (m *Manager) FindBySession(token string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	roomID, ok := m.sessions[token]
	if !ok {
		return nil, false
	}
	room, ok := m.rooms[roomID]
	return room, ok
}

// Close 关闭所有房间
func (m *Manager) Close() {
	m.mutex.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*Room)
	m.sessions = make(map[string]string)
	m.mutex.Unlock()

	for id, r := range rooms {
		r.Close()
		m.disarmIdle(id)
	}
	m.opts.Observer.SetActiveRooms(0)
}

func (m *Manager) armIdle(roomID string) {
	if m.opts.Timers == nil || m.opts.IdleTTL <= 0 {
		return
	}
	m.idleMutex.Lock()
	defer m.idleMutex.Unlock()

	if id, ok := m.idle[roomID]; ok && m.opts.Timers.ResetTimer(id, m.opts.IdleTTL) {
		return
	}
	m.idle[roomID] = m.opts.Timers.AddTimer(m.opts.IdleTTL, 0, func() {
		m.expire(roomID)
	})
}

func (m *Manager) disarmIdle(roomID string) {
	if m.opts.Timers == nil {
		return
	}
	m.idleMutex.Lock()
	defer m.idleMutex.Unlock()

	if id, ok := m.idle[roomID]; ok {
		m.opts.Timers.RemoveTimer(id)
		delete(m.idle, roomID)
	}
}

func (m *Manager) expire(roomID string) {
	room, err := m.GetRoom(roomID)
	if err != nil {
		return
	}
	if !room.CloseIfIdle() {
		return
	}
	logger.Log.Infof("room %s idle for %s, removing", roomID, m.opts.IdleTTL)
	m.RemoveRoom(roomID)
}
