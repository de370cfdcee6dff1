package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/broadcast"
	"github.com/wfunc/liarsbar/logger"
	"github.com/wfunc/liarsbar/models"
	"github.com/wfunc/liarsbar/network"
	"github.com/wfunc/liarsbar/services"
	"github.com/wfunc/liarsbar/session"
)

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(s.heartbeat)
	sess := session.NewSession(uuid.NewString(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		// the player stays in the room so the client can reconnect
		if roomID, _ := sess.Unbind(); roomID != "" {
			ctx, cancel := services.WithTimeout(context.Background())
			if err := s.games.Unsubscribe(ctx, roomID, sess.GetID()); err != nil {
				logger.Log.Warnf("unsubscribe %s from room %s: %v", sess.GetID(), roomID, err)
			}
			cancel()
		}
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	s.monitor.IncMessagesReceived()
	sess.Touch()

	ctx, cancel := services.WithTimeout(context.Background())
	defer cancel()

	var (
		data interface{}
		err  error
	)
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		data = network.SessionData{SessionToken: sess.GetID()}
	case network.MsgTypeCreateRoom:
		data, err = s.handleCreateRoom(ctx, packet.Data)
	case network.MsgTypeJoinRoom:
		data, err = s.handleJoinRoom(ctx, sess, packet.Data)
	case network.MsgTypeListRooms:
		data, err = s.handleListRoomsMsg(packet.Data)
	case network.MsgTypeGetRoom:
		data, err = s.handleGetRoomMsg(sess, packet.Data)
	case network.MsgTypeReconnect:
		data, err = s.handleReconnect(ctx, sess, packet.Data)
	case network.MsgTypeLeaveRoom:
		data, err = s.handleLeaveRoom(ctx, sess, packet.Data)
	case network.MsgTypeStartGame:
		data, err = s.handleStartGame(ctx, sess, packet.Data)
	case network.MsgTypeMakeMove:
		data, err = s.handleMakeMove(ctx, sess, packet.Data)
	case network.MsgTypeCallLiar:
		data, err = s.handleCallLiar(ctx, sess, packet.Data)
	case network.MsgTypeTriggerRoulette:
		data, err = s.handleTriggerRoulette(ctx, sess, packet.Data)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		err = apperr.Newf(apperr.KindInvalidRequest, "unknown message type %d", packet.MsgID)
	}

	reqID := network.ReqIDOf(packet.Data)
	resp := network.OK(reqID, data)
	if err != nil {
		resp = network.Fail(reqID, err)
		if apperr.KindOf(err) == apperr.KindInternal {
			logger.Log.Errorf("%s from session %s: %v", network.MsgName(packet.MsgID), sess.GetID(), err)
		}
	}
	s.reply(sess, packet.MsgID, resp)
	s.monitor.ObserveMessageLatency(time.Since(start))
}

func (s *GameServer) reply(sess *session.Session, msgID uint16, resp network.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Errorf("encode %s response: %v", network.MsgName(msgID), err)
		return
	}
	if err := sess.Send(msgID, data); err != nil {
		logger.Log.Debugf("reply to %s: %v", sess.GetID(), err)
	}
}

func (s *GameServer) pushRooms() {
	s.broadcaster.BroadcastRooms(s.games.ListRooms())
}

// attach binds sess to the player and starts forwarding the room's updates.
func (s *GameServer) attach(ctx context.Context, sess *session.Session, roomID, playerID string) error {
	if prev, _ := sess.Binding(); prev != "" && prev != roomID {
		if err := s.games.Unsubscribe(ctx, prev, sess.GetID()); err != nil {
			logger.Log.Warnf("unsubscribe %s from room %s: %v", sess.GetID(), prev, err)
		}
	}
	sess.Bind(roomID, playerID)
	updates, err := s.games.Subscribe(ctx, roomID, sess.GetID())
	if err != nil {
		return err
	}
	go broadcast.Pump(sess, playerID, updates)
	return nil
}

// authorize checks that sess acts as playerID in roomID.
func authorize(sess *session.Session, roomID, playerID string) error {
	boundRoom, boundPlayer := sess.Binding()
	if boundRoom == "" || boundRoom != roomID || boundPlayer != playerID {
		return apperr.Newf(apperr.KindPlayerNotFound, "player %s is not bound to this connection", playerID)
	}
	return nil
}

// viewerIn returns the player sess acts as in roomID, if any.
func viewerIn(sess *session.Session, roomID string) string {
	boundRoom, boundPlayer := sess.Binding()
	if boundRoom != roomID {
		return ""
	}
	return boundPlayer
}

func (s *GameServer) handleCreateRoom(ctx context.Context, data []byte) (interface{}, error) {
	var req network.CreateRoomRequest
	if err := network.DecodeRequest(data, &req); err != nil {
		return nil, err
	}
	r, err := s.games.CreateRoom(ctx, req.Name, req.MaxPlayers, req.RoomID)
	if err != nil {
		return nil, err
	}
	s.pushRooms()
	return network.RoomData{Room: models.NewRoomView(r, "")}, nil
}

func (s *GameServer) handleJoinRoom(ctx context.Context, sess *session.Session, data []byte) (interface{}, error) {
	var req network.JoinRoomRequest
	if err := network.DecodeRequest(data, &req); err != nil {
		return nil, err
	}
	res, err := s.games.JoinRoom(ctx, req.RoomID, req.PlayerName, sess.GetID())
	if err != nil {
		return nil, err
	}
	if err := s.attach(ctx, sess, req.RoomID, res.Player.ID); err != nil {
		return nil, err
	}
	logger.Log.Infof("Session %s joined room %s as %s", sess.GetID(), req.RoomID, res.Player.ID)
	s.pushRooms()
	return network.JoinRoomData{
		PlayerID:     res.Player.ID,
		SessionToken: sess.GetID(),
		Room:         models.NewRoomView(res.Room, res.Player.ID),
	}, nil
}

func (s *GameServer) handleListRoomsMsg(data []byte) (interface{}, error) {
	var req network.ListRoomsRequest
	if err := network.DecodeRequest(data, &req); err != nil {
		return nil, err
	}
	return network.RoomsData{Rooms: s.games.ListRooms()}, nil
}

func (s *GameServer) handleGetRoomMsg(sess *session.Session, data []byte) (interface{}, error) {
	var req network.GetRoomRequest
	if err := network.DecodeRequest(data, &req); err != nil {
		return nil, err
	}
	r, err := s.games.GetRoom(req.RoomID)
	if err != nil {
		return nil, err
	}
	return network.RoomData{Room: models.NewRoomView(r, viewerIn(sess, req.RoomID))}, nil
}

func (s *GameServer) handleReconnect(ctx context.Context, sess *session.Session, data []byte) (interface{}, error) {
	var req network.ReconnectRequest
	if err := network.DecodeRequest(data, &req); err != nil {
		return nil, err
	}
	res, err := s.games.Reconnect(ctx, req.SessionToken, sess.GetID())
	if err != nil {
		return nil, err
	}
	roomID := res.Room.ID
	if req.SessionToken != sess.GetID() {
		// the previous connection may still be open
		if old, ok := s.sessionManager.Get(req.SessionToken); ok {
			old.Unbind()
		}
		if err := s.games.Unsubscribe(ctx, roomID, req.SessionToken); err != nil {
			logger.Log.Warnf("unsubscribe %s from room %s: %v", req.SessionToken, roomID, err)
		}
	}
	if err := s.attach(ctx, sess, roomID, res.Player.ID); err != nil {
		return nil, err
	}
	logger.Log.Infof("Session %s resumed player %s in room %s", sess.GetID(), res.Player.ID, roomID)
	return network.JoinRoomData{
		PlayerID:     res.Player.ID,
		SessionToken: sess.GetID(),
		Room:         models.NewRoomView(res.Room, res.Player.ID),
	}, nil
}

func (s *GameServer) handleLeaveRoom(ctx context.Context, sess *session.Session, data []byte) (interface{}, error) {
	var req network.LeaveRoomRequest
	if err := network.DecodeRequest(data, &req); err != nil {
		return nil, err
	}
	roomID, _ := sess.Unbind()
	if roomID == "" {
		return nil, nil
	}
	return nil, s.games.Unsubscribe(ctx, roomID, sess.GetID())
}

func (s *GameServer) handleStartGame(ctx context.Context, sess *session.Session, data []byte) (interface{}, error) {
	var req network.StartGameRequest
	if err := network.DecodeRequest(data, &req); err != nil {
		return nil, err
	}
	r, err := s.games.StartGame(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	s.pushRooms()
	return network.RoomData{Room: models.NewRoomView(r, viewerIn(sess, req.RoomID))}, nil
}

func (s *GameServer) handleMakeMove(ctx context.Context, sess *session.Session, data []byte) (interface{}, error) {
	var req network.MakeMoveRequest
	if err := network.DecodeRequest(data, &req); err != nil {
		return nil, err
	}
	if err := authorize(sess, req.RoomID, req.PlayerID); err != nil {
		return nil, err
	}
	r, err := s.games.MakeMove(ctx, req.RoomID, req.PlayerID, req.DeclaredClaim, req.CardIDs)
	if err != nil {
		return nil, err
	}
	return network.RoomData{Room: models.NewRoomView(r, req.PlayerID)}, nil
}

func (s *GameServer) handleCallLiar(ctx context.Context, sess *session.Session, data []byte) (interface{}, error) {
	var req network.CallLiarRequest
	if err := network.DecodeRequest(data, &req); err != nil {
		return nil, err
	}
	if err := authorize(sess, req.RoomID, req.PlayerID); err != nil {
		return nil, err
	}
	res, err := s.games.CallLiar(ctx, req.RoomID, req.PlayerID)
	if err != nil {
		return nil, err
	}
	return network.CallLiarData{
		Room:          models.NewRoomView(res.Room, req.PlayerID),
		AllMatch:      res.Challenge.AllMatch,
		RevealedTypes: res.Challenge.RevealedTypes,
		LoserID:       res.Challenge.LoserID,
	}, nil
}

func (s *GameServer) handleTriggerRoulette(ctx context.Context, sess *session.Session, data []byte) (interface{}, error) {
	var req network.TriggerRouletteRequest
	if err := network.DecodeRequest(data, &req); err != nil {
		return nil, err
	}
	viewer := req.PlayerID
	if viewer != "" {
		if err := authorize(sess, req.RoomID, viewer); err != nil {
			return nil, err
		}
	} else if viewer = viewerIn(sess, req.RoomID); viewer == "" {
		return nil, apperr.New(apperr.KindPlayerNotFound, "connection is not bound to this room")
	}
	res, err := s.games.TriggerRoulette(ctx, req.RoomID, req.PlayerID)
	if err != nil {
		return nil, err
	}
	return network.TriggerRouletteData{
		Room:       models.NewRoomView(res.Room, viewer),
		PlayerID:   res.Outcome.PlayerID,
		WillFire:   res.Outcome.WillFire,
		Eliminated: res.Outcome.Eliminated,
		WinnerID:   res.Outcome.WinnerID,
	}, nil
}
