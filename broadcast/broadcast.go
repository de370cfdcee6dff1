// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"

	"github.com/wfunc/liarsbar/logger"
	"github.com/wfunc/liarsbar/models"
	"github.com/wfunc/liarsbar/network"
	"github.com/wfunc/liarsbar/room"
	"github.com/wfunc/liarsbar/session"
)

// Sender is anything a frame can be written to.
type Sender interface {
	Send(msgID uint16, data []byte) error
}

// Frame is one encoded push message.
type Frame struct {
	MsgID uint16
	Data  []byte
}

// Broadcaster 基于会话的广播器
type Broadcaster struct {
	sessionManager *session.Manager
}

func NewBroadcaster(sessionManager *session.Manager) *Broadcaster {
	return &Broadcaster{sessionManager: sessionManager}
}

// BroadcastToAll sends to every connected session and returns how many sends
// succeeded.
func (b *Broadcaster) BroadcastToAll(msgID uint16, data []byte) int {
	return sendAll(b.sessionManager.All(), msgID, data)
}

// BroadcastToRoom sends to the sessions bound to roomID.
func (b *Broadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) int {
	return sendAll(b.sessionManager.GetByRoom(roomID), msgID, data)
}

// BroadcastRooms pushes the lobby listing to everyone.
func (b *Broadcaster) BroadcastRooms(rooms []models.RoomSummary) int {
	data, err := json.Marshal(network.OK("", network.RoomsData{Rooms: rooms}))
	if err != nil {
		logger.Log.Errorf("encode rooms: %v", err)
		return 0
	}
	return b.BroadcastToAll(network.MsgTypeRoomsUpdated, data)
}

func sendAll(sessions []*session.Session, msgID uint16, data []byte) int {
	n := 0
	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			// 发送失败的连接由读循环负责清理
			logger.Log.Debugf("send %s to %s: %v", network.MsgName(msgID), s.ID, err)
			continue
		}
		n++
	}
	return n
}

// Frames renders u for viewerID. A snapshot without events becomes a single
// roomUpdated frame; otherwise there is one frame per event, in order.
func Frames(u room.Update, viewerID string) ([]Frame, error) {
	view := models.NewRoomView(u.Room, viewerID)
	if len(u.Events) == 0 {
		data, err := json.Marshal(network.RoomEvent{Seq: u.Seq, Room: view})
		if err != nil {
			return nil, err
		}
		return []Frame{{MsgID: network.MsgTypeRoomUpdated, Data: data}}, nil
	}

	frames := make([]Frame, 0, len(u.Events))
	for _, ev := range u.Events {
		msgID, ok := network.EventMsgType(ev.Name)
		if !ok {
			msgID = network.MsgTypeRoomUpdated
		}
		data, err := json.Marshal(network.RoomEvent{Seq: u.Seq, Room: view, Result: ev.Data})
		if err != nil {
			return nil, err
		}
		frames = append(frames, Frame{MsgID: msgID, Data: data})
	}
	return frames, nil
}

// Pump forwards updates to out as viewerID sees them until the channel is
// closed. Send errors are logged and the pump keeps draining.
func Pump(out Sender, viewerID string, updates <-chan room.Update) {
	for u := range updates {
		frames, err := Frames(u, viewerID)
		if err != nil {
			logger.Log.Errorf("room %s: encode seq %d: %v", u.RoomID, u.Seq, err)
			continue
		}
		for _, f := range frames {
			if err := out.Send(f.MsgID, f.Data); err != nil {
				logger.Log.Debugf("room %s: push seq %d to %s: %v", u.RoomID, u.Seq, viewerID, err)
				break
			}
		}
	}
}
