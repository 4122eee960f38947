package events

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/proto"
)

func TestEmitter(t *testing.T) {
	e := NewEmitter()
	var got []string
	e.On(proto.MT_PLAYER_JOIN, func(ev *Event) { got = append(got, "join") })
	sub := e.On(proto.MT_PLAYER_JOIN, func(ev *Event) { got = append(got, "join2") })
	e.OnAny(func(ev *Event) { got = append(got, "any:"+ev.Type.String()) })

	assert.Equal(t, 3, e.Emit(NewLocalEvent(proto.MT_PLAYER_JOIN, nil)))
	sub.Cancel()
	assert.Equal(t, 1, e.Emit(NewLocalEvent(proto.MT_PLAYER_LEAVE, nil)))
	assert.Equal(t, []string{"join", "join2", "any:player:join", "any:player:leave"}, got)

	assert.T(t, e.Handles(proto.MT_PLAYER_JOIN))
	assert.Equal(t, false, e.Handles(proto.MT_PLAYER_LEAVE))

	e.Clear()
	assert.Equal(t, 0, e.Emit(NewLocalEvent(proto.MT_PLAYER_JOIN, nil)))
}

func TestHandlerCancelledWhileEmitting(t *testing.T) {
	e := NewEmitter()
	calls := 0
	var second Subscription
	e.On(proto.MT_ROOM_CLOSE, func(ev *Event) {
		calls += 1
		second.Cancel()
	})
	second = e.On(proto.MT_ROOM_CLOSE, func(ev *Event) { calls += 10 })
	e.Emit(NewLocalEvent(proto.MT_ROOM_CLOSE, nil))
	assert.Equal(t, 1, calls)
}

func TestNestedEmitAfterCancel(t *testing.T) {
	e := NewEmitter()
	var got []string
	var b Subscription
	nested := false
	e.On(proto.MT_ROOM_MESSAGE, func(ev *Event) {
		got = append(got, "a")
		if !nested {
			nested = true
			b.Cancel()
			e.Emit(NewLocalEvent(proto.MT_ROOM_MESSAGE, nil))
		}
	})
	b = e.On(proto.MT_ROOM_MESSAGE, func(ev *Event) { got = append(got, "b") })
	e.On(proto.MT_ROOM_MESSAGE, func(ev *Event) { got = append(got, "c") })

	assert.Equal(t, 2, e.Emit(NewLocalEvent(proto.MT_ROOM_MESSAGE, nil)))
	// the nested emit runs a and c, then the outer one goes on with c
	assert.Equal(t, []string{"a", "a", "c", "c"}, got)
	assert.Equal(t, 2, e.Emit(NewLocalEvent(proto.MT_ROOM_MESSAGE, nil)))
}

func TestEventRespondsOnce(t *testing.T) {
	packer := netutil.MessagePackMsgPacker{}
	env, _ := proto.NewEnvelope(packer, proto.MT_ROOM_JOIN, common.UserScope(1), proto.RoomRequest{RoomID: 9})
	env.ID = 1

	var answers []error
	ev := NewEvent(proto.MT_ROOM_JOIN, env, 4, packer, func(err error, payload interface{}) {
		answers = append(answers, err)
	})
	assert.T(t, ev.IsRequest())
	assert.Equal(t, common.ID(4), ev.From)

	var req proto.RoomRequest
	assert.Equal(t, nil, ev.Decode(&req))
	assert.Equal(t, common.ID(9), req.RoomID)

	fail := errors.New("nope")
	ev.Fail(fail)
	ev.Reply("ignored")
	assert.Equal(t, []error{fail}, answers)
	assert.T(t, ev.Responded())

	local := NewLocalEvent(proto.MT_PLAYER_JOIN, 3)
	assert.Equal(t, false, local.IsRequest())
	assert.NotEqual(t, nil, local.Decode(&req))
	local.Reply(1)
}
