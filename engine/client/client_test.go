package client

import (
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/dispatcher"
	"github.com/roomsync/roomsync/engine/entity"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/router"
	"github.com/roomsync/roomsync/engine/scene"
)

func connect(d *dispatcher.Dispatcher, cfg Config) *Client {
	a, b := netutil.NewPipe(256)
	go d.ServeConn(b)
	c := New(cfg)
	c.Connect(a)
	return c
}

// tickUntil ticks the clients until cond holds
func tickUntil(t *testing.T, cond func() bool, clients ...*Client) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout")
		}
		for _, c := range clients {
			c.Tick(0.016)
		}
		time.Sleep(time.Millisecond)
	}
}

func authenticate(t *testing.T, c *Client, name string) common.ID {
	var (
		done bool
		uid  common.ID
	)
	c.Authenticate(proto.AuthRequest{Name: name}, func(err error, userID common.ID) {
		assert.Equal(t, nil, err)
		uid = userID
		done = true
	})
	tickUntil(t, func() bool { return done }, c)
	assert.Equal(t, uid, c.UserID())
	return uid
}

func createRoom(t *testing.T, c *Client, tickrate int) common.ID {
	var (
		done   bool
		roomID common.ID
	)
	c.CreateRoom(tickrate, "", func(err error, id common.ID) {
		assert.Equal(t, nil, err)
		roomID = id
		done = true
	})
	tickUntil(t, func() bool { return done }, c)
	return roomID
}

func joinRoom(t *testing.T, c *Client, roomID common.ID) *entity.Room {
	var (
		done bool
		room *entity.Room
	)
	c.JoinRoom(roomID, func(err error, r *entity.Room) {
		assert.Equal(t, nil, err)
		room = r
		done = true
	})
	tickUntil(t, func() bool { return done }, c)
	return room
}

// onShard runs f on the shard owning rooms and waits for its result
func onShard(d *dispatcher.Dispatcher, f func(w *entity.World) bool) bool {
	res := make(chan bool)
	d.Shards()[0].Call(func(w *entity.World) {
		res <- f(w)
	})
	return <-res
}

func TestSession(t *testing.T) {
	d := dispatcher.New(dispatcher.Config{Shards: 2})
	d.Start()
	defer d.Stop()

	a := connect(d, Config{Name: "a"})
	b := connect(d, Config{Name: "b"})
	ua := authenticate(t, a, "a")
	ub := authenticate(t, b, "b")
	assert.NotEqual(t, ua, ub)

	roomID := createRoom(t, a, 20)
	roomA := joinRoom(t, a, roomID)
	assert.Equal(t, 1, len(roomA.Players()))
	roomB := joinRoom(t, b, roomID)
	assert.Equal(t, 2, len(roomB.Players()))
	tickUntil(t, func() bool { return len(roomA.Players()) == 2 }, a)

	// entities spawned after the first frame are broadcast
	tickUntil(t, func() bool {
		return onShard(d, func(w *entity.World) bool {
			room, ok := w.Rooms.Get(roomID)
			return ok && room.IsLive()
		})
	})
	var ship *scene.Node
	onShard(d, func(w *entity.World) bool {
		room, _ := w.Rooms.Get(roomID)
		ship = scene.NewNode("", "ship", true)
		room.Root().AddChild(ship)
		return true
	})
	tickUntil(t, func() bool {
		return a.World.NetworkEntities.Len() == 1 && b.World.NetworkEntities.Len() == 1
	}, a, b)
	e := roomA.Entities()[0]
	assert.Equal(t, ship.GUID, e.Node().GUID)

	onShard(d, func(w *entity.World) bool {
		ship.Pos = common.Vector3{X: 5}
		return true
	})
	tickUntil(t, func() bool { return e.Node().Pos.X > 0 }, a)
	assert.T(t, e.Node().Pos.X <= 5)

	var left bool
	b.LeaveRoom(roomID, func(err error) {
		assert.Equal(t, nil, err)
		left = true
	})
	tickUntil(t, func() bool { return left }, b)
	assert.Equal(t, false, b.World.Rooms.Has(roomID))
	assert.Equal(t, 0, b.World.NetworkEntities.Len())
	tickUntil(t, func() bool { return len(roomA.Players()) == 1 }, a)
}

func TestRequestErrors(t *testing.T) {
	d := dispatcher.New(dispatcher.Config{Shards: 1})
	d.Start()
	defer d.Stop()

	c := connect(d, Config{})
	var gotErr error
	c.CreateRoom(0, "", func(err error, roomID common.ID) {
		gotErr = err
	})
	tickUntil(t, func() bool { return gotErr != nil }, c)
	assert.T(t, strings.Contains(gotErr.Error(), dispatcher.ErrNotAuthenticated.Error()))

	authenticate(t, c, "")
	gotErr = nil
	c.JoinRoom(4242, func(err error, room *entity.Room) {
		gotErr = err
		assert.T(t, room == nil)
	})
	tickUntil(t, func() bool { return gotErr != nil }, c)
	assert.T(t, strings.Contains(gotErr.Error(), dispatcher.ErrNoSuchTarget.Error()))
	assert.Equal(t, 0, c.World.Rooms.Len())
}

func TestHeartbeat(t *testing.T) {
	d := dispatcher.New(dispatcher.Config{Shards: 1})
	d.Start()
	defer d.Stop()

	c := connect(d, Config{HeartbeatInterval: 10 * time.Millisecond})
	authenticate(t, c, "")
	tickUntil(t, func() bool { return c.Latency() > 0 }, c)
}

func TestUserMessageReplies(t *testing.T) {
	d := dispatcher.New(dispatcher.Config{Shards: 2})
	d.Start()
	defer d.Stop()

	c := connect(d, Config{})
	authenticate(t, c, "")
	var (
		done    bool
		replies [][]byte
	)
	c.SendUserMessage(map[string]interface{}{"hello": 1}, func(err error, r [][]byte) {
		assert.Equal(t, nil, err)
		replies = r
		done = true
	})
	tickUntil(t, func() bool { return done }, c)
	// nobody handles user messages, every shard acked with nothing
	assert.Equal(t, 2, len(replies))
}

func TestDisconnect(t *testing.T) {
	d := dispatcher.New(dispatcher.Config{Shards: 1})
	d.Start()
	defer d.Stop()

	c := connect(d, Config{})
	authenticate(t, c, "")
	roomID := createRoom(t, c, 0)
	joinRoom(t, c, roomID)

	closedCalled := false
	c.OnClosed(func() { closedCalled = true })
	var pendingErr error
	c.CreateRoom(0, "", func(err error, id common.ID) {
		pendingErr = err
	})
	c.Close()
	tickUntil(t, func() bool { return c.IsClosed() }, c)
	assert.T(t, closedCalled)
	assert.Equal(t, 0, c.World.Rooms.Len())
	if pendingErr != nil {
		// the reply may have arrived before the close
		assert.Equal(t, router.ErrConnectionClosed, pendingErr)
	}
}
