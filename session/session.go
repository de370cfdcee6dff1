// session/session.go
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/wfunc/liarsbar/network"
)

// Session 一条客户端连接。ID 同时作为会话令牌下发给客户端，用于重连
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	lastActive time.Time
	roomID     string
	playerID   string
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
	}
}

// Bind records that this connection acts as playerID in roomID.
func (s *Session) Bind(roomID, playerID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.roomID = roomID
	s.playerID = playerID
}

// Unbind clears the room binding and returns what it was.
func (s *Session) Unbind() (roomID, playerID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	roomID, playerID = s.roomID, s.playerID
	s.roomID, s.playerID = "", ""
	return roomID, playerID
}

// Binding returns the current room and player, empty when unbound.
func (s *Session) Binding() (roomID, playerID string) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomID, s.playerID
}

// Touch marks the session as active now.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.Touch()
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns every session ordered by id.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	m.mutex.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetByRoom returns the sessions currently bound to roomID.
func (m *Manager) GetByRoom(roomID string) []*Session {
	var result []*Session
	for _, s := range m.All() {
		if r, _ := s.Binding(); r == roomID {
			result = append(result, s)
		}
	}
	return result
}
