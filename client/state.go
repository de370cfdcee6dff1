package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/models"
	"github.com/wfunc/liarsbar/network"
)

type outbound struct {
	msgID uint16
	req   map[string]interface{}
}

type response struct {
	ReqID   string          `json:"reqId"`
	Success bool            `json:"success"`
	Error   *apperr.Error   `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// clientState is what the client knows about its seat.
type clientState struct {
	mu           sync.Mutex
	name         string
	sessionToken string
	roomID       string
	playerID     string
	view         *models.RoomView
	nextReq      int
}

func (s *clientState) parseCommand(line string) (uint16, map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	s.nextReq++
	req := map[string]interface{}{"reqId": strconv.Itoa(s.nextReq)}

	switch cmd {
	case "list":
		return network.MsgTypeListRooms, req, nil
	case "create":
		if len(args) == 0 {
			return 0, nil, errors.New("usage: create NAME [MAX_PLAYERS]")
		}
		req["name"] = args[0]
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return 0, nil, fmt.Errorf("bad player count %q", args[1])
			}
			req["maxPlayers"] = n
		}
		return network.MsgTypeCreateRoom, req, nil
	case "join":
		if len(args) == 0 {
			return 0, nil, errors.New("usage: join ROOM_ID [NAME]")
		}
		name := s.name
		if len(args) > 1 {
			name = args[1]
		}
		if name == "" {
			return 0, nil, errors.New("a player name is required")
		}
		req["roomId"], req["playerName"] = args[0], name
		return network.MsgTypeJoinRoom, req, nil
	case "reconnect":
		token := s.sessionToken
		if len(args) > 0 {
			token = args[0]
		}
		if token == "" {
			return 0, nil, errors.New("usage: reconnect TOKEN")
		}
		req["sessionToken"] = token
		return network.MsgTypeReconnect, req, nil
	case "leave":
		return network.MsgTypeLeaveRoom, req, nil
	case "show":
		req["roomId"] = s.roomID
		return network.MsgTypeGetRoom, req, s.needRoom()
	case "start":
		req["roomId"] = s.roomID
		return network.MsgTypeStartGame, req, s.needRoom()
	case "play":
		if err := s.needRoom(); err != nil {
			return 0, nil, err
		}
		if len(args) == 0 {
			return 0, nil, errors.New("usage: play CARD_ID [CARD_ID...]")
		}
		ids := make([]int, 0, len(args))
		for _, a := range args {
			id, err := strconv.Atoi(a)
			if err != nil {
				return 0, nil, fmt.Errorf("bad card id %q", a)
			}
			ids = append(ids, id)
		}
		base := ""
		if s.view != nil {
			base = string(s.view.BaseCardType)
		}
		req["roomId"], req["playerId"], req["cardIds"] = s.roomID, s.playerID, ids
		req["declaredClaim"] = map[string]interface{}{"count": len(ids), "type": base}
		return network.MsgTypeMakeMove, req, nil
	case "liar":
		req["roomId"], req["playerId"] = s.roomID, s.playerID
		return network.MsgTypeCallLiar, req, s.needRoom()
	case "shoot":
		req["roomId"], req["playerId"] = s.roomID, s.playerID
		return network.MsgTypeTriggerRoulette, req, s.needRoom()
	}
	return 0, nil, fmt.Errorf("unknown command %q, type help", cmd)
}

func (s *clientState) needRoom() error {
	if s.roomID == "" || s.playerID == "" {
		return errors.New("join a room first")
	}
	return nil
}

func (s *clientState) handle(p *network.Packet) {
	switch p.MsgID {
	case network.MsgTypeRoomsUpdated, network.MsgTypeListRooms:
		var resp response
		var rooms network.RoomsData
		if s.decode(p, &resp, &rooms) {
			renderRooms(rooms.Rooms)
		}
	case network.MsgTypeRoomUpdated, network.MsgTypeGameStarted, network.MsgTypeGameStateUpdated,
		network.MsgTypeLiarResult, network.MsgTypeRouletteResult:
		var ev struct {
			Seq    uint64          `json:"seq"`
			Room   models.RoomView `json:"room"`
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(p.Data, &ev); err != nil {
			pterm.Warning.Printfln("bad %s event: %v", network.MsgName(p.MsgID), err)
			return
		}
		s.setView(ev.Room)
		renderEvent(p.MsgID, ev.Result, ev.Room)
	case network.MsgTypeHeartbeat:
		var resp response
		var sess network.SessionData
		if s.decode(p, &resp, &sess) {
			s.mu.Lock()
			if s.sessionToken == "" {
				pterm.Info.Printfln("Session token %s", sess.SessionToken)
			}
			s.sessionToken = sess.SessionToken
			s.mu.Unlock()
		}
	case network.MsgTypeJoinRoom, network.MsgTypeReconnect:
		var resp response
		var joined network.JoinRoomData
		if s.decode(p, &resp, &joined) {
			s.mu.Lock()
			s.roomID, s.playerID, s.sessionToken = joined.Room.ID, joined.PlayerID, joined.SessionToken
			s.mu.Unlock()
			s.setView(joined.Room)
			pterm.Success.Printfln("Seated in %s as %s", joined.Room.Name, joined.PlayerID)
			renderRoom(joined.Room)
		}
	case network.MsgTypeLeaveRoom:
		var resp response
		if s.decode(p, &resp, nil) {
			s.mu.Lock()
			s.roomID, s.playerID, s.view = "", "", nil
			s.mu.Unlock()
			pterm.Info.Println("Left the room")
		}
	case network.MsgTypeCreateRoom, network.MsgTypeGetRoom, network.MsgTypeStartGame, network.MsgTypeMakeMove,
		network.MsgTypeCallLiar, network.MsgTypeTriggerRoulette:
		var resp response
		var data struct {
			Room models.RoomView `json:"room"`
		}
		if s.decode(p, &resp, &data) {
			if p.MsgID == network.MsgTypeCreateRoom {
				pterm.Success.Printfln("Created room %s", data.Room.ID)
				return
			}
			s.setView(data.Room)
			if p.MsgID == network.MsgTypeGetRoom {
				renderRoom(data.Room)
			}
		}
	default:
		pterm.Debug.Printfln("RECV %d: %s", p.MsgID, string(p.Data))
	}
}

// decode parses a response envelope and reports failures.
func (s *clientState) decode(p *network.Packet, resp *response, data interface{}) bool {
	if err := json.Unmarshal(p.Data, resp); err != nil {
		pterm.Warning.Printfln("bad %s response: %v", network.MsgName(p.MsgID), err)
		return false
	}
	if !resp.Success {
		if resp.Error != nil {
			pterm.Error.Printfln("%s: %s (%s)", network.MsgName(p.MsgID), resp.Error.Message, resp.Error.Kind)
		}
		return false
	}
	if data != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, data); err != nil {
			pterm.Warning.Printfln("bad %s payload: %v", network.MsgName(p.MsgID), err)
			return false
		}
	}
	return true
}

func (s *clientState) setView(v models.RoomView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = &v
}
