package proto

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/netutil"
)

func TestMsgTypeNames(t *testing.T) {
	for mt := MT_INVALID + 1; mt < MT_MAX; mt++ {
		if mt.Name() == "" {
			t.Fatalf("message type %d has no name", mt)
		}
		parsed, ok := ParseMsgType(mt.Name())
		assert.T(t, ok)
		assert.Equal(t, mt, parsed)
	}
	_, ok := ParseMsgType("no:such")
	assert.Equal(t, false, ok)
	_, ok = ParseMsgType("")
	assert.Equal(t, false, ok)
	assert.Equal(t, "MsgType<999>", MsgType(999).String())
}

func TestDecodeEnvelopeRejectsProtocolErrors(t *testing.T) {
	for _, packer := range []netutil.MsgPacker{netutil.MessagePackMsgPacker{}, netutil.JSONMsgPacker{}} {
		_, err := DecodeEnvelope(packer, []byte{0xc1, 0x00, 0x01})
		assert.NotEqual(t, nil, err)

		unknown, _ := packer.PackMsg(&Envelope{Name: "nope", Scope: common.UserScope(1)}, nil)
		_, err = DecodeEnvelope(packer, unknown)
		assert.NotEqual(t, nil, err)

		noScope, _ := packer.PackMsg(&Envelope{Name: MT_PING.Name()}, nil)
		_, err = DecodeEnvelope(packer, noScope)
		assert.NotEqual(t, nil, err)
	}
}

func TestEnvelopePayload(t *testing.T) {
	packer := netutil.MessagePackMsgPacker{}
	x := 1.0
	env, err := NewEnvelope(packer, MT_STATE_UPDATE, common.RoomScope(3), []EntityState{
		{ID: 7, Attrs: map[string]float64{"x": x}},
	})
	assert.Equal(t, nil, err)
	env.ID = 5

	data, err := env.Encode(packer)
	assert.Equal(t, nil, err)
	decoded, err := DecodeEnvelope(packer, data)
	assert.Equal(t, nil, err)
	assert.T(t, decoded.IsRequest())
	mt, _ := decoded.Type()
	assert.Equal(t, MT_STATE_UPDATE, mt)

	var states []EntityState
	assert.Equal(t, nil, decoded.DecodeData(packer, &states))
	assert.Equal(t, common.ID(7), states[0].ID)
	assert.Equal(t, 1.0, states[0].Attrs["x"])

	empty, _ := NewEnvelope(packer, MT_ROOM_CLOSE, common.RoomScope(3), nil)
	assert.NotEqual(t, nil, empty.DecodeData(packer, &states))
}

func TestLocalEventTypes(t *testing.T) {
	assert.T(t, EV_PLAYER_JOINED.IsLocal())
	assert.Equal(t, false, MT_PLAYER_JOIN.IsLocal())
	assert.Equal(t, "", EV_FAULT.Name())
	assert.Equal(t, "fault", EV_FAULT.String())
	_, ok := ParseMsgType(EV_FAULT.String())
	assert.Equal(t, false, ok)
}
