package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/liarsbar/card"
	"github.com/wfunc/liarsbar/models"
	"github.com/wfunc/liarsbar/network"
)

func TestParseCommand(t *testing.T) {
	st := &clientState{name: "Ann"}

	msgID, req, err := st.parseCommand("create Table 3")
	require.NoError(t, err)
	assert.Equal(t, uint16(network.MsgTypeCreateRoom), msgID)
	assert.Equal(t, "Table", req["name"])
	assert.Equal(t, 3, req["maxPlayers"])
	assert.Equal(t, "1", req["reqId"])

	msgID, req, err = st.parseCommand("join r1")
	require.NoError(t, err)
	assert.Equal(t, uint16(network.MsgTypeJoinRoom), msgID)
	assert.Equal(t, "Ann", req["playerName"])

	_, _, err = st.parseCommand("liar")
	assert.Error(t, err, "needs a seat")

	_, _, err = st.parseCommand("dance")
	assert.Error(t, err)
}

func TestHandleJoinThenPlay(t *testing.T) {
	st := &clientState{}
	view := models.RoomView{ID: "r1", Name: "Table", Phase: models.PhasePlayerTurn, BaseCardType: card.Ace}
	data, err := json.Marshal(network.OK("2", network.JoinRoomData{PlayerID: "p1", SessionToken: "tok", Room: view}))
	require.NoError(t, err)
	st.handle(&network.Packet{MsgID: network.MsgTypeJoinRoom, Data: data})

	assert.Equal(t, "r1", st.roomID)
	assert.Equal(t, "p1", st.playerID)
	assert.Equal(t, "tok", st.sessionToken)

	msgID, req, err := st.parseCommand("play 13 19")
	require.NoError(t, err)
	assert.Equal(t, uint16(network.MsgTypeMakeMove), msgID)
	assert.Equal(t, []int{13, 19}, req["cardIds"])
	assert.Equal(t, map[string]interface{}{"count": 2, "type": "ACE"}, req["declaredClaim"])

	_, req, err = st.parseCommand("reconnect")
	require.NoError(t, err)
	assert.Equal(t, "tok", req["sessionToken"])
}
