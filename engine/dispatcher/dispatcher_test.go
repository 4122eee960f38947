package dispatcher

import (
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/entity"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/router"
)

// testClient drives a client router over a pipe, every callback runs on the test goroutine
type testClient struct {
	t      *testing.T
	conn   *netutil.PipeConn
	router *router.Router
	recv   chan []byte
}

func newTestClient(t *testing.T, d *Dispatcher) *testClient {
	a, b := netutil.NewPipe(256)
	go d.ServeConn(b)

	c := &testClient{t: t, conn: a, recv: make(chan []byte, 256)}
	c.router = router.New("client", netutil.MSG_PACKER, func(env *proto.Envelope) error {
		data, err := env.Encode(netutil.MSG_PACKER)
		if err != nil {
			return err
		}
		return a.WriteMessage(data)
	}, nil)
	go func() {
		for {
			data, err := a.ReadMessage()
			if err != nil {
				close(c.recv)
				return
			}
			c.recv <- data
		}
	}()
	return c
}

// pump handles received messages until done returns true
func (c *testClient) pump(done func() bool) {
	deadline := time.After(5 * time.Second)
	for !done() {
		select {
		case data, ok := <-c.recv:
			if !ok {
				c.t.Fatal("connection closed")
			}
			c.router.HandleMessage(data)
		case <-deadline:
			c.t.Fatal("timeout")
		}
	}
}

func (c *testClient) request(mt proto.MsgType, scope common.Scope, payload interface{}, reply interface{}) error {
	var (
		answered bool
		rerr     error
	)
	_, err := c.router.Request(mt, scope, payload, func(err error, ev *events.Event) {
		answered = true
		rerr = err
		if err == nil && reply != nil {
			rerr = ev.Decode(reply)
		}
	})
	assert.Equal(c.t, nil, err)
	c.pump(func() bool { return answered })
	return rerr
}

func (c *testClient) auth(name string) common.ID {
	var ar proto.AuthReply
	err := c.request(proto.MT_AUTHENTICATE, common.UserScope(0), proto.AuthRequest{Name: name}, &ar)
	assert.Equal(c.t, nil, err)
	assert.T(c.t, !ar.UserID.IsNil())
	return ar.UserID
}

func startTestDispatcher(shards int, setup func(index int, w *entity.World)) *Dispatcher {
	d := New(Config{Shards: shards, Setup: setup})
	d.Start()
	return d
}

func TestAuthentication(t *testing.T) {
	d := startTestDispatcher(2, nil)
	defer d.Stop()

	c := newTestClient(t, d)
	err := c.request(proto.MT_ROOM_CREATE, common.UserScope(0), proto.CreateRoomRequest{}, nil)
	assert.NotEqual(t, nil, err)
	assert.T(t, strings.Contains(err.Error(), ErrNotAuthenticated.Error()))

	uid := c.auth("alice")
	err = c.request(proto.MT_AUTHENTICATE, common.UserScope(uid), proto.AuthRequest{Name: "alice"}, nil)
	assert.NotEqual(t, nil, err)
	assert.T(t, strings.Contains(err.Error(), ErrAlreadyAuthenticated.Error()))
}

func TestNotificationFailureIsReported(t *testing.T) {
	d := startTestDispatcher(1, nil)
	defer d.Stop()

	c := newTestClient(t, d)
	var got *proto.ErrorPayload
	c.router.Root().On(proto.MT_ERROR, func(ev *events.Event) {
		got = &proto.ErrorPayload{}
		assert.Equal(t, nil, ev.Decode(got))
	})
	assert.Equal(t, nil, c.router.Send(proto.MT_ROOM_MESSAGE, common.RoomScope(5), proto.RelayPayload{}))
	c.pump(func() bool { return got != nil })
	assert.Equal(t, "room:message", got.Name)
	assert.Equal(t, ErrNotAuthenticated.Error(), got.Message)

	c.auth("bob")
	got = nil
	assert.Equal(t, nil, c.router.Send(proto.MT_ROOM_MESSAGE, common.RoomScope(5), proto.RelayPayload{}))
	c.pump(func() bool { return got != nil })
	assert.T(t, strings.Contains(got.Message, ErrNoSuchTarget.Error()))
}

func TestCreateAndJoinRoom(t *testing.T) {
	d := startTestDispatcher(2, nil)
	defer d.Stop()

	c := newTestClient(t, d)
	uid := c.auth("carol")

	var cr proto.CreateRoomReply
	assert.Equal(t, nil, c.request(proto.MT_ROOM_CREATE, common.UserScope(uid), proto.CreateRoomRequest{Tickrate: 10}, &cr))
	assert.T(t, !cr.RoomID.IsNil())

	var jp proto.JoinPayload
	assert.Equal(t, nil, c.request(proto.MT_ROOM_JOIN, common.UserScope(uid), proto.RoomRequest{RoomID: cr.RoomID}, &jp))
	assert.Equal(t, cr.RoomID, jp.ID)
	assert.Equal(t, 10, jp.Tickrate)
	assert.Equal(t, 1, len(jp.Players))
	assert.Equal(t, uid, jp.Players[0].User.ID)

	owner := make(chan int)
	d.Call(func() {
		s, _ := d.OwnerOfRoom(cr.RoomID)
		owner <- s
	})
	assert.Equal(t, 0, <-owner)

	err := c.request(proto.MT_ROOM_JOIN, common.UserScope(uid), proto.RoomRequest{RoomID: cr.RoomID + 1000}, nil)
	assert.NotEqual(t, nil, err)
	assert.T(t, strings.Contains(err.Error(), ErrNoSuchTarget.Error()))
}

func TestUserMessageFanout(t *testing.T) {
	d := startTestDispatcher(3, func(index int, w *entity.World) {
		w.Events.On(proto.MT_USER_MESSAGE, func(ev *events.Event) {
			ev.Reply(index)
		})
	})
	defer d.Stop()

	c := newTestClient(t, d)
	uid := c.auth("dave")

	var fr proto.FanoutReply
	assert.Equal(t, nil, c.request(proto.MT_USER_MESSAGE, common.UserScope(uid), proto.RelayPayload{}, &fr))
	assert.Equal(t, 3, len(fr.Replies))
	for i, data := range fr.Replies {
		var index int
		assert.Equal(t, nil, netutil.MSG_PACKER.UnpackMsg(data, &index))
		assert.Equal(t, i, index)
	}
}

func TestDisconnectReleasesUser(t *testing.T) {
	d := startTestDispatcher(1, nil)
	defer d.Stop()

	c := newTestClient(t, d)
	uid := c.auth("erin")
	c.conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		connected := make(chan bool)
		d.Call(func() {
			connected <- d.users[uid] != nil
		})
		if !<-connected {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("user still connected")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestShardFaultIsObservable(t *testing.T) {
	d := startTestDispatcher(1, nil)
	defer d.Stop()

	d.Shards()[0].Call(func(w *entity.World) {
		panic("boom")
	})
	select {
	case err := <-d.Errors():
		assert.T(t, strings.Contains(err.Error(), "boom"))
	case <-time.After(5 * time.Second):
		t.Fatal("fault not reported")
	}

	// the shard survives the panic
	alive := make(chan bool)
	d.Shards()[0].Call(func(w *entity.World) {
		alive <- true
	})
	assert.T(t, <-alive)
}
