package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := Newf(KindRoomFull, "room %s is full", "r1")

	assert.True(t, errors.Is(err, ErrRoomFull))
	assert.False(t, errors.Is(err, ErrRoomNotFound))
	assert.Equal(t, "RoomFull: room r1 is full", err.Error())
}

func TestKindOfWrapped(t *testing.T) {
	wrapped := fmt.Errorf("join: %w", New(KindNotYourTurn, "wait"))

	assert.Equal(t, KindNotYourTurn, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrNotYourTurn))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	plain := From(errors.New("disk on fire"))
	assert.Equal(t, KindInternal, plain.Kind)
	assert.Equal(t, "disk on fire", plain.Message)

	tagged := From(fmt.Errorf("x: %w", ErrCapacity))
	assert.Equal(t, KindCapacity, tagged.Kind)
	assert.True(t, IsFatal(tagged))
	assert.False(t, IsFatal(ErrRoomFull))
}
