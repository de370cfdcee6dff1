// apperr/apperr.go
package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类型标签，传输层按此序列化给请求方
type Kind string

const (
	KindRoomNotFound        Kind = "RoomNotFound"
	KindDuplicateRoomID     Kind = "DuplicateRoomId"
	KindRoomFull            Kind = "RoomFull"
	KindInsufficientPlayers Kind = "InsufficientPlayers"
	KindPlayerNotFound      Kind = "PlayerNotFound"
	KindNotYourTurn         Kind = "NotYourTurn"
	KindInvalidCards        Kind = "InvalidCards"
	KindNoPendingMove       Kind = "NoPendingMove"
	KindIllegalChallenger   Kind = "IllegalChallenger"
	KindNoCurrentPlayer     Kind = "NoCurrentPlayer"
	KindCapacity            Kind = "CapacityError"
	KindInvalidPhase        Kind = "InvalidPhase"
	KindInvalidRequest      Kind = "InvalidRequest"
	KindInternal            Kind = "Internal"
)

// Error is a failure carrying a kind tag. Two errors match under errors.Is when
// their kinds are equal.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is an *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrRoomNotFound        = &Error{Kind: KindRoomNotFound}
	ErrDuplicateRoomID     = &Error{Kind: KindDuplicateRoomID}
	ErrRoomFull            = &Error{Kind: KindRoomFull}
	ErrInsufficientPlayers = &Error{Kind: KindInsufficientPlayers}
	ErrPlayerNotFound      = &Error{Kind: KindPlayerNotFound}
	ErrNotYourTurn         = &Error{Kind: KindNotYourTurn}
	ErrInvalidCards        = &Error{Kind: KindInvalidCards}
	ErrNoPendingMove       = &Error{Kind: KindNoPendingMove}
	ErrIllegalChallenger   = &Error{Kind: KindIllegalChallenger}
	ErrNoCurrentPlayer     = &Error{Kind: KindNoCurrentPlayer}
	ErrCapacity            = &Error{Kind: KindCapacity}
	ErrInvalidPhase        = &Error{Kind: KindInvalidPhase}
	ErrInvalidRequest      = &Error{Kind: KindInvalidRequest}
)

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err. Errors without a tag are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// From converts any error into an *Error suitable for a response payload.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: err.Error()}
}

// IsFatal reports whether err means the room state can no longer be trusted.
func IsFatal(err error) bool {
	return KindOf(err) == KindCapacity
}
