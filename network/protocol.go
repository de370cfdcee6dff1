package network

// 消息号：请求与响应共用同一消息号，3xx 为服务端推送
const (
	MsgTypeHeartbeat = 1

	MsgTypeCreateRoom = 101
	MsgTypeJoinRoom   = 102
	MsgTypeListRooms  = 103
	MsgTypeGetRoom    = 104
	MsgTypeReconnect  = 105
	MsgTypeLeaveRoom  = 106

	MsgTypeStartGame       = 201
	MsgTypeMakeMove        = 202
	MsgTypeCallLiar        = 203
	MsgTypeTriggerRoulette = 204

	MsgTypeRoomsUpdated     = 301
	MsgTypeRoomUpdated      = 302
	MsgTypeGameStarted      = 303
	MsgTypeGameStateUpdated = 304
	MsgTypeLiarResult       = 305
	MsgTypeRouletteResult   = 306
)

var eventMsgTypes = map[string]uint16{
	"roomsUpdated":     MsgTypeRoomsUpdated,
	"roomUpdated":      MsgTypeRoomUpdated,
	"gameStarted":      MsgTypeGameStarted,
	"gameStateUpdated": MsgTypeGameStateUpdated,
	"liarResult":       MsgTypeLiarResult,
	"rouletteResult":   MsgTypeRouletteResult,
}

// EventMsgType maps a room event name to its push message id.
func EventMsgType(name string) (uint16, bool) {
	id, ok := eventMsgTypes[name]
	return id, ok
}

// MsgName returns a readable name for logs.
func MsgName(msgID uint16) string {
	switch msgID {
	case MsgTypeHeartbeat:
		return "heartbeat"
	case MsgTypeCreateRoom:
		return "createRoom"
	case MsgTypeJoinRoom:
		return "joinRoom"
	case MsgTypeListRooms:
		return "listRooms"
	case MsgTypeGetRoom:
		return "getRoom"
	case MsgTypeReconnect:
		return "reconnect"
	case MsgTypeLeaveRoom:
		return "leaveRoom"
	case MsgTypeStartGame:
		return "startGame"
	case MsgTypeMakeMove:
		return "makeMove"
	case MsgTypeCallLiar:
		return "callLiar"
	case MsgTypeTriggerRoulette:
		return "triggerRoulette"
	}
	for name, id := range eventMsgTypes {
		if id == msgID {
			return name
		}
	}
	return "unknown"
}
