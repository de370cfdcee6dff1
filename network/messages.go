package network

import (
	"encoding/json"
	"strings"

	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/card"
	"github.com/wfunc/liarsbar/models"
)

// Meta is carried by every request.
type Meta struct {
	ReqID string `json:"reqId,omitempty"`
}

// Validator is implemented by every request type.
type Validator interface {
	Validate() error
}

// DecodeRequest unmarshals data into req and validates it. An empty payload is
// treated as {}.
func DecodeRequest(data []byte, req Validator) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, req); err != nil {
		return apperr.Newf(apperr.KindInvalidRequest, "malformed payload: %v", err)
	}
	return req.Validate()
}

// ReqIDOf extracts the request id without full decoding.
func ReqIDOf(data []byte) string {
	var m Meta
	_ = json.Unmarshal(data, &m)
	return m.ReqID
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.Newf(apperr.KindInvalidRequest, "%s is required", field)
	}
	return nil
}

type CreateRoomRequest struct {
	Meta
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
	RoomID     string `json:"roomId,omitempty"`
}

func (r *CreateRoomRequest) Validate() error {
	if err := required("name", r.Name); err != nil {
		return err
	}
	if r.MaxPlayers < 0 {
		return apperr.New(apperr.KindInvalidRequest, "maxPlayers must not be negative")
	}
	return nil
}

type JoinRoomRequest struct {
	Meta
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
}

func (r *JoinRoomRequest) Validate() error {
	if err := required("roomId", r.RoomID); err != nil {
		return err
	}
	return required("playerName", r.PlayerName)
}

type ListRoomsRequest struct {
	Meta
}

func (r *ListRoomsRequest) Validate() error { return nil }

type GetRoomRequest struct {
	Meta
	RoomID string `json:"roomId"`
}

func (r *GetRoomRequest) Validate() error {
	return required("roomId", r.RoomID)
}

// ReconnectRequest carries the session token of the previous connection.
type ReconnectRequest struct {
	Meta
	SessionToken string `json:"sessionToken"`
}

func (r *ReconnectRequest) Validate() error {
	return required("sessionToken", r.SessionToken)
}

type LeaveRoomRequest struct {
	Meta
}

func (r *LeaveRoomRequest) Validate() error { return nil }

type StartGameRequest struct {
	Meta
	RoomID string `json:"roomId"`
}

func (r *StartGameRequest) Validate() error {
	return required("roomId", r.RoomID)
}

type MakeMoveRequest struct {
	Meta
	RoomID        string       `json:"roomId"`
	PlayerID      string       `json:"playerId"`
	CardIDs       []int        `json:"cardIds"`
	DeclaredClaim models.Claim `json:"declaredClaim"`
}

func (r *MakeMoveRequest) Validate() error {
	if err := required("roomId", r.RoomID); err != nil {
		return err
	}
	if err := required("playerId", r.PlayerID); err != nil {
		return err
	}
	if !r.DeclaredClaim.Type.Valid() {
		return apperr.Newf(apperr.KindInvalidRequest, "unknown card type %q", r.DeclaredClaim.Type)
	}
	if len(r.CardIDs) == 0 || len(r.CardIDs) > card.MaxPerMove {
		return apperr.Newf(apperr.KindInvalidCards, "play between 1 and %d cards", card.MaxPerMove)
	}
	return nil
}

type CallLiarRequest struct {
	Meta
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

func (r *CallLiarRequest) Validate() error {
	if err := required("roomId", r.RoomID); err != nil {
		return err
	}
	return required("playerId", r.PlayerID)
}

// TriggerRouletteRequest may omit PlayerID; the current player pulls.
type TriggerRouletteRequest struct {
	Meta
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId,omitempty"`
}

func (r *TriggerRouletteRequest) Validate() error {
	return required("roomId", r.RoomID)
}

// Response 统一响应格式
type Response struct {
	ReqID   string        `json:"reqId,omitempty"`
	Success bool          `json:"success"`
	Error   *apperr.Error `json:"error,omitempty"`
	Data    interface{}   `json:"data,omitempty"`
}

// OK builds a success response.
func OK(reqID string, data interface{}) Response {
	return Response{ReqID: reqID, Success: true, Data: data}
}

// Fail builds an error response from any error.
func Fail(reqID string, err error) Response {
	return Response{ReqID: reqID, Success: false, Error: apperr.From(err)}
}

type SessionData struct {
	SessionToken string `json:"sessionToken"`
}

type RoomData struct {
	Room models.RoomView `json:"room"`
}

type JoinRoomData struct {
	PlayerID     string          `json:"playerId"`
	SessionToken string          `json:"sessionToken"`
	Room         models.RoomView `json:"room"`
}

type RoomsData struct {
	Rooms []models.RoomSummary `json:"rooms"`
}

type CallLiarData struct {
	Room          models.RoomView `json:"room"`
	AllMatch      bool            `json:"allMatch"`
	RevealedTypes []card.Type     `json:"revealedTypes"`
	LoserID       string          `json:"loserId"`
}

type TriggerRouletteData struct {
	Room       models.RoomView `json:"room"`
	PlayerID   string          `json:"playerId"`
	WillFire   bool            `json:"willFire"`
	Eliminated bool            `json:"eliminated"`
	WinnerID   string          `json:"winnerId,omitempty"`
}

// RoomEvent is pushed to room subscribers. Result carries the event payload
// such as the challenge or roulette outcome.
type RoomEvent struct {
	Seq    uint64          `json:"seq"`
	Room   models.RoomView `json:"room"`
	Result interface{}     `json:"result,omitempty"`
}
