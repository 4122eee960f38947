package router

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/proto"
)

type capture struct {
	sent []*proto.Envelope
}

func (c *capture) send(env *proto.Envelope) error {
	c.sent = append(c.sent, env)
	return nil
}

func newTestRouter() (*Router, *capture) {
	c := &capture{}
	return New("test", netutil.MessagePackMsgPacker{}, c.send, nil), c
}

func replyTo(r *Router, req *proto.Envelope, payload interface{}) *proto.Envelope {
	reply := &proto.Envelope{Name: req.Name, Scope: req.Scope, ID: req.ID, Reply: true}
	if payload != nil {
		reply.Data, _ = r.Packer().PackMsg(payload, nil)
	}
	return reply
}

func TestCorrelationIDsIncrease(t *testing.T) {
	r, c := newTestRouter()
	var last uint64
	for i := 0; i < 5; i++ {
		id, err := r.Request(proto.MT_ROOM_CREATE, common.UserScope(1), nil, func(err error, ev *events.Event) {})
		assert.Equal(t, nil, err)
		assert.T(t, id > last)
		last = id
	}
	assert.Equal(t, 5, len(c.sent))
	assert.Equal(t, 5, r.PendingCount())
	assert.Equal(t, uint64(5), c.sent[4].ID)
}

func TestReplyInvokesCallbackOnce(t *testing.T) {
	r, c := newTestRouter()
	calls := 0
	var got proto.CreateRoomReply
	r.Request(proto.MT_ROOM_CREATE, common.UserScope(1), proto.CreateRoomRequest{Tickrate: 20}, func(err error, ev *events.Event) {
		calls += 1
		assert.Equal(t, nil, err)
		assert.Equal(t, nil, ev.Decode(&got))
	})

	reply := replyTo(r, c.sent[0], proto.CreateRoomReply{RoomID: 42})
	rootEvents := 0
	r.Root().OnAny(func(ev *events.Event) { rootEvents += 1 })

	r.HandleEnvelope(reply)
	r.HandleEnvelope(reply)
	assert.Equal(t, 1, calls)
	assert.Equal(t, common.ID(42), got.RoomID)
	assert.Equal(t, 0, r.PendingCount())
	// replies are never dispatched as events
	assert.Equal(t, 0, rootEvents)
}

func TestErrorReply(t *testing.T) {
	r, c := newTestRouter()
	var gotErr error
	r.Request(proto.MT_ROOM_JOIN, common.UserScope(1), proto.RoomRequest{RoomID: 1}, func(err error, ev *events.Event) {
		gotErr = err
	})
	reply := replyTo(r, c.sent[0], nil)
	reply.Error = "already joined"
	r.HandleEnvelope(reply)
	assert.Equal(t, "already joined", gotErr.Error())
}

func TestScopedDispatch(t *testing.T) {
	r, _ := newTestRouter()
	room := events.NewEmitter()
	r.SetResolver(common.ScopeRoom, func(id common.ID) (*events.Emitter, bool) {
		if id == 7 {
			return room, true
		}
		return nil, false
	})

	var roomGot, rootGot []common.ID
	room.On(proto.MT_ROOM_MESSAGE, func(ev *events.Event) { roomGot = append(roomGot, ev.Scope().ID) })
	r.Root().On(proto.MT_ROOM_MESSAGE, func(ev *events.Event) { rootGot = append(rootGot, ev.Scope().ID) })

	env7, _ := proto.NewEnvelope(r.Packer(), proto.MT_ROOM_MESSAGE, common.RoomScope(7), proto.RelayPayload{})
	env8, _ := proto.NewEnvelope(r.Packer(), proto.MT_ROOM_MESSAGE, common.RoomScope(8), proto.RelayPayload{})
	r.HandleEnvelope(env7)
	r.HandleEnvelope(env8)

	assert.Equal(t, []common.ID{7}, roomGot)
	assert.Equal(t, []common.ID{7, 8}, rootGot)
}

func TestRequestAnsweredByHandler(t *testing.T) {
	r, c := newTestRouter()
	r.Root().On(proto.MT_USER_MESSAGE, func(ev *events.Event) {
		ev.Reply(proto.RelayPayload{From: 3})
	})
	req, _ := proto.NewEnvelope(r.Packer(), proto.MT_USER_MESSAGE, common.UserScope(3), proto.RelayPayload{})
	req.ID = 11
	r.HandleEnvelope(req)

	assert.Equal(t, 1, len(c.sent))
	assert.Equal(t, true, c.sent[0].Reply)
	assert.Equal(t, uint64(11), c.sent[0].ID)
	var payload proto.RelayPayload
	assert.Equal(t, nil, c.sent[0].DecodeData(r.Packer(), &payload))
	assert.Equal(t, common.ID(3), payload.From)
}

func TestUnhandledRequest(t *testing.T) {
	r, c := newTestRouter()
	req, _ := proto.NewEnvelope(r.Packer(), proto.MT_ENTITY_MESSAGE, common.NetworkEntityScope(1), nil)
	req.ID = 1
	r.HandleEnvelope(req)
	assert.Equal(t, 1, len(c.sent))
	assert.NotEqual(t, "", c.sent[0].Error)

	var forwarded []*events.Event
	r.SetUnhandled(func(ev *events.Event) { forwarded = append(forwarded, ev) })
	req.ID = 2
	r.HandleEnvelope(req)
	assert.Equal(t, 1, len(forwarded))
	assert.Equal(t, 1, len(c.sent))
}

func TestHeartbeat(t *testing.T) {
	r, c := newTestRouter()
	pingsSeen := 0
	r.Root().OnAny(func(ev *events.Event) {
		if ev.Type == proto.MT_PING {
			pingsSeen += 1
		}
	})
	unhandled := 0
	r.SetUnhandled(func(ev *events.Event) { unhandled += 1 })

	ping, _ := proto.NewEnvelope(r.Packer(), proto.MT_PING, common.UserScope(5), proto.PingPayload{Nonce: 99, Latency: 12.5, BandwidthIn: 100})
	r.HandleEnvelope(ping)

	assert.Equal(t, 1, len(c.sent))
	pong := c.sent[0]
	assert.Equal(t, proto.MT_PONG.Name(), pong.Name)
	assert.Equal(t, common.UserScope(5), pong.Scope)
	var payload proto.PongPayload
	pong.DecodeData(r.Packer(), &payload)
	assert.Equal(t, int64(99), payload.Nonce)

	stats := r.Stats()
	assert.Equal(t, 12.5, stats.Latency)
	assert.Equal(t, 100.0, stats.BandwidthIn)
	assert.Equal(t, uint64(1), stats.Heartbeats)
	assert.Equal(t, 1, pingsSeen)
	assert.Equal(t, 0, unhandled)

	// a malformed ping is dropped without a pong
	r.HandleEnvelope(&proto.Envelope{Name: proto.MT_PING.Name(), Scope: common.UserScope(5), Data: []byte{0xc1}})
	assert.Equal(t, 1, len(c.sent))
	assert.Equal(t, 1, pingsSeen)
}

func TestMalformedMessageDropped(t *testing.T) {
	r, c := newTestRouter()
	seen := 0
	r.Root().OnAny(func(ev *events.Event) { seen += 1 })
	r.HandleMessage([]byte{0xc1, 0xc1})
	data, _ := (&proto.Envelope{Name: "bogus", Scope: common.UserScope(1)}).Encode(r.Packer())
	r.HandleMessage(data)
	assert.Equal(t, 0, seen)
	assert.Equal(t, 0, len(c.sent))
}

func TestSweepExpired(t *testing.T) {
	r, _ := newTestRouter()
	r.SetTimeout(time.Second)
	var errs []error
	cb := func(err error, ev *events.Event) { errs = append(errs, err) }
	r.Request(proto.MT_ROOM_CREATE, common.UserScope(1), nil, cb)
	r.SetTimeout(time.Hour)
	r.Request(proto.MT_ROOM_CREATE, common.UserScope(1), nil, cb)

	assert.Equal(t, 0, r.SweepExpired(time.Now()))
	assert.Equal(t, 1, r.SweepExpired(time.Now().Add(2*time.Second)))
	assert.Equal(t, 1, len(errs))
	assert.Equal(t, ErrRequestTimeout, errors.Cause(errs[0]))
	assert.Equal(t, 1, r.PendingCount())

	r.Close()
	assert.Equal(t, 2, len(errs))
	assert.Equal(t, ErrConnectionClosed, errs[1])
	_, err := r.Request(proto.MT_ROOM_CREATE, common.UserScope(1), nil, cb)
	assert.Equal(t, ErrConnectionClosed, err)
}
