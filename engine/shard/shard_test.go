package shard

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/entity"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/idpool"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/proto"
)

type rootRecorder struct {
	sync.Mutex
	msgs []interface{}
}

func (r *rootRecorder) post(msg interface{}) {
	r.Lock()
	r.msgs = append(r.msgs, msg)
	r.Unlock()
}

func (r *rootRecorder) take() []interface{} {
	r.Lock()
	defer r.Unlock()
	msgs := r.msgs
	r.msgs = nil
	return msgs
}

func request(t *testing.T, id uint64, mt proto.MsgType, scope common.Scope, payload interface{}) *proto.Envelope {
	env, err := proto.NewEnvelope(netutil.MSG_PACKER, mt, scope, payload)
	assert.Equal(t, nil, err)
	env.ID = id
	return env
}

func newTestShard() (*Shard, *rootRecorder) {
	rec := &rootRecorder{}
	s := New(0, Config{}, rec.post)
	s.handle(&Init{Pool: idpool.New()})
	return s, rec
}

func TestConnectAndCreateRoom(t *testing.T) {
	s, rec := newTestShard()
	s.handle(&ConnectUser{User: proto.UserInfo{ID: 101, Name: "a"}})
	assert.Equal(t, []interface{}{&UserConnected{Shard: 0, UserID: 101}}, rec.take())
	u, ok := s.World().Users.Get(101)
	assert.T(t, ok)
	assert.T(t, u.IsLocal())

	s.handle(&ClientMessage{UserID: 101, Env: request(t, 1, proto.MT_ROOM_CREATE, common.UserScope(101), proto.CreateRoomRequest{Tickrate: 10})})
	msgs := rec.take()
	assert.Equal(t, 2, len(msgs))
	created := msgs[0].(*RoomCreated)
	reply := msgs[1].(*SendToUsers)
	assert.Equal(t, []common.ID{101}, reply.UserIDs)
	assert.T(t, reply.Env.Reply)
	var cr proto.CreateRoomReply
	assert.Equal(t, nil, reply.Env.DecodeData(netutil.MSG_PACKER, &cr))
	assert.Equal(t, created.RoomID, cr.RoomID)

	s.handle(&ClientMessage{UserID: 101, Env: request(t, 2, proto.MT_ROOM_JOIN, common.UserScope(101), proto.RoomRequest{RoomID: cr.RoomID})})
	msgs = rec.take()
	joined := msgs[0].(*PlayerJoined)
	assert.Equal(t, cr.RoomID, joined.RoomID)
	assert.Equal(t, common.ID(101), joined.UserID)
	var jp proto.JoinPayload
	assert.Equal(t, nil, msgs[1].(*SendToUsers).Env.DecodeData(netutil.MSG_PACKER, &jp))
	assert.Equal(t, 10, jp.Tickrate)

	s.handle(&DisconnectUser{UserID: 101})
	assert.Equal(t, false, s.World().Users.Has(101))
	msgs = rec.take()
	// the player left, then the room closed with it
	_, ok = msgs[0].(*PlayerLeft)
	assert.T(t, ok)
	_, ok = msgs[len(msgs)-1].(*RoomDestroyed)
	assert.T(t, ok)
}

func TestFanoutAck(t *testing.T) {
	s, rec := newTestShard()
	s.handle(&ConnectUser{User: proto.UserInfo{ID: 101}})
	rec.take()

	s.handle(&ClientMessage{UserID: 101, Fanout: true, Env: request(t, 7, proto.MT_USER_MESSAGE, common.UserScope(101), proto.RelayPayload{})})
	assert.Equal(t, []interface{}{&FanoutAck{Shard: 0, UserID: 101, RequestID: 7}}, rec.take())

	// a handler answering the fan-out
	s.World().Events.On(proto.MT_USER_MESSAGE, func(ev *events.Event) {
		ev.Reply("pong")
	})
	s.handle(&ClientMessage{UserID: 101, Fanout: true, Env: request(t, 8, proto.MT_USER_MESSAGE, common.UserScope(101), proto.RelayPayload{})})
	ack := rec.take()[0].(*FanoutAck)
	assert.Equal(t, uint64(8), ack.RequestID)
	var body string
	assert.Equal(t, nil, netutil.MSG_PACKER.UnpackMsg(ack.Data, &body))
	assert.Equal(t, "pong", body)
}

func TestUnhandledRequestFails(t *testing.T) {
	s, rec := newTestShard()
	s.handle(&ConnectUser{User: proto.UserInfo{ID: 101}})
	rec.take()

	s.handle(&ClientMessage{UserID: 101, Env: request(t, 3, proto.MT_USER_MESSAGE, common.UserScope(101), proto.RelayPayload{})})
	reply := rec.take()[0].(*SendToUsers)
	assert.T(t, reply.Env.Reply)
	assert.Equal(t, "user:message: unhandled request", reply.Env.Error)
}

func TestTickRooms(t *testing.T) {
	s, rec := newTestShard()
	room, err := s.World().CreateRoom(0, 10, proto.Level{})
	assert.Equal(t, nil, err)
	rec.take()

	now := time.Now()
	s.tickRooms(now)
	assert.Equal(t, uint64(1), room.Ticks())
	s.tickRooms(now.Add(50 * time.Millisecond))
	assert.Equal(t, uint64(1), room.Ticks())
	s.tickRooms(now.Add(100 * time.Millisecond))
	assert.Equal(t, uint64(2), room.Ticks())

	room.Close()
	_, ok := s.nextTicks[room.ID()]
	assert.Equal(t, false, ok)
}

func TestStartStop(t *testing.T) {
	rec := &rootRecorder{}
	setupDone := false
	s := New(1, Config{Setup: func(index int, w *entity.World) {
		setupDone = index == 1
	}}, rec.post)
	s.Start()
	s.Post(&Init{Pool: idpool.New()})

	done := make(chan bool)
	s.Call(func(w *entity.World) {
		done <- setupDone
	})
	assert.T(t, <-done)
	s.Stop()
}

func TestFaultIsReported(t *testing.T) {
	rec := &rootRecorder{}
	s := New(0, Config{}, rec.post)
	s.Start()
	defer s.Stop()

	var observed error
	s.Call(func(w *entity.World) {
		w.Events.On(proto.EV_FAULT, func(ev *events.Event) {
			observed = ev.Value.(error)
		})
	})
	s.Call(func(w *entity.World) {
		panic("boom")
	})
	done := make(chan error)
	s.Call(func(w *entity.World) {
		done <- observed
	})
	assert.NotEqual(t, nil, <-done)

	var fault *Fault
	for _, msg := range rec.take() {
		if f, ok := msg.(*Fault); ok {
			fault = f
		}
	}
	assert.T(t, fault != nil)
	assert.T(t, strings.Contains(fault.Err.Error(), "boom"))
}
