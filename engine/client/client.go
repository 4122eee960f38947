// Package client implements the client session: the connection to the root, the handshake and
// the mirrors of the joined rooms.
//
// A Client is single-threaded. The network goroutine only posts received messages, the owner
// drives everything else by calling Tick every frame.
package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/entity"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/interp"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/post"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/router"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/roomsync/roomsync/engine/scene"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
)

// ErrNotConnected is returned by operations of a client without connection
var ErrNotConnected = errors.New("not connected")

// Config configures a client
type Config struct {
	Name              string
	Packer            netutil.MsgPacker
	Loader            scene.Loader
	Interp            interp.Config
	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
}

// Client is a session with the server
type Client struct {
	// World holds the mirrors of the joined rooms
	World *entity.World

	name       string
	packer     netutil.MsgPacker
	conn       netutil.Conn
	posts      *post.Queue
	userID     common.ID
	heartbeat  time.Duration
	lastPing   time.Time
	nonce      int64
	pings      map[int64]time.Time
	latency    float64
	closed     xnsyncutil.AtomicBool
	onClosed   func()
	bytesIn    int
	bytesOut   int
	statsSince time.Time
}

// New creates a client without connection
func New(cfg Config) *Client {
	if cfg.Name == "" {
		cfg.Name = "client"
	}
	if cfg.Packer == nil {
		cfg.Packer = netutil.MSG_PACKER
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = consts.CLIENT_HEARTBEAT_INTERVAL
	}
	c := &Client{
		name:       cfg.Name,
		packer:     cfg.Packer,
		posts:      post.NewQueue(),
		heartbeat:  cfg.HeartbeatInterval,
		pings:      map[int64]time.Time{},
		statsSince: time.Now(),
	}
	c.World = entity.NewWorld(entity.Config{
		Name:   cfg.Name,
		Packer: cfg.Packer,
		Loader: cfg.Loader,
		Interp: cfg.Interp,
		Send:   c.send,
	})
	if cfg.RequestTimeout > 0 {
		c.World.Router.SetTimeout(cfg.RequestTimeout)
	}
	c.World.Events.On(proto.MT_PONG, c.handlePong)
	c.World.Events.On(proto.MT_ERROR, func(ev *events.Event) {
		var ep proto.ErrorPayload
		if err := ev.Decode(&ep); err == nil {
			rslog.Warnf("%s: server rejected %s: %s", c, ep.Name, ep.Message)
		}
	})
	return c
}

func (c *Client) String() string {
	return fmt.Sprintf("Client<%s|%s>", c.name, c.userID)
}

// UserID returns the authenticated user, nil before authentication
func (c *Client) UserID() common.ID {
	return c.userID
}

// Latency returns the last measured round trip time in milliseconds
func (c *Client) Latency() float64 {
	return c.latency
}

// Router returns the router of the session
func (c *Client) Router() *router.Router {
	return c.World.Router
}

// OnClosed sets the callback called on the client loop when the connection closes
func (c *Client) OnClosed(f func()) {
	c.onClosed = f
}

// Dial connects to a server url, kcp://host:port for KCP and ws://... for websockets
func (c *Client) Dial(url string) error {
	var (
		conn netutil.Conn
		err  error
	)
	if strings.HasPrefix(url, "kcp://") {
		conn, err = netutil.DialKCP(strings.TrimPrefix(url, "kcp://"))
	} else {
		conn, err = netutil.DialWebSocket(url)
	}
	if err != nil {
		return errors.Wrapf(err, "dial %s", url)
	}
	c.Connect(conn)
	return nil
}

// Connect starts the session over conn
func (c *Client) Connect(conn netutil.Conn) {
	c.conn = conn
	go c.readRoutine(conn)
}

// Close closes the connection, the session is torn down on the next Tick
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// IsClosed returns if the connection closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

func (c *Client) readRoutine(conn netutil.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if !netutil.IsConnectionError(err) {
				rslog.Warnf("%s: read failed: %v", c, err)
			}
			c.posts.Post(c.onDisconnected)
			return
		}
		c.posts.Post(func() {
			c.bytesIn += len(data)
			c.World.Router.HandleMessage(data)
		})
	}
}

func (c *Client) onDisconnected() {
	if c.closed.Load() {
		return
	}
	c.closed.Store(true)
	rslog.Infof("%s disconnected", c)
	c.World.Router.Close()
	for _, id := range c.World.Rooms.IDs() {
		if room, ok := c.World.Rooms.Get(id); ok {
			room.Destroy()
		}
	}
	if c.onClosed != nil {
		c.onClosed()
	}
}

func (c *Client) send(env *proto.Envelope) error {
	if c.conn == nil || c.closed.Load() {
		return ErrNotConnected
	}
	data, err := env.Encode(c.packer)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(data); err != nil {
		return err
	}
	c.bytesOut += len(data)
	return c.conn.Flush()
}

// Tick runs the received messages, fails timed out requests, sends the heartbeat and advances
// the interpolation of every mirrored entity by dt seconds
func (c *Client) Tick(dt float64) {
	c.posts.Tick()
	now := time.Now()
	c.World.Router.SweepExpired(now)
	if !c.userID.IsNil() && !c.closed.Load() && now.Sub(c.lastPing) >= c.heartbeat {
		c.ping(now)
	}
	c.World.Tick(dt)
}

func (c *Client) ping(now time.Time) {
	c.lastPing = now
	c.nonce += 1
	c.pings[c.nonce] = now

	payload := proto.PingPayload{Nonce: c.nonce, Latency: c.latency}
	if elapsed := now.Sub(c.statsSince).Seconds(); elapsed > 0 {
		payload.BandwidthIn = float64(c.bytesIn) / elapsed
		payload.BandwidthOut = float64(c.bytesOut) / elapsed
	}
	c.bytesIn, c.bytesOut, c.statsSince = 0, 0, now

	if err := c.World.Router.Send(proto.MT_PING, common.UserScope(c.userID), payload); err != nil {
		rslog.Warnf("%s: ping failed: %v", c, err)
	}
}

func (c *Client) handlePong(ev *events.Event) {
	var pong proto.PongPayload
	if err := ev.Decode(&pong); err != nil {
		return
	}
	sent, ok := c.pings[pong.Nonce]
	if !ok {
		return
	}
	// older pings are lost
	for nonce := range c.pings {
		if nonce <= pong.Nonce {
			delete(c.pings, nonce)
		}
	}
	c.latency = float64(time.Since(sent)) / float64(time.Millisecond)
}

func (c *Client) request(mt proto.MsgType, payload interface{}, cb router.Callback) {
	if _, err := c.World.Router.Request(mt, common.UserScope(c.userID), payload, cb); err != nil {
		cb(err, nil)
	}
}

// Authenticate sends the handshake, cb receives the user id minted or verified by the server
func (c *Client) Authenticate(req proto.AuthRequest, cb func(err error, userID common.ID)) {
	c.request(proto.MT_AUTHENTICATE, req, func(err error, ev *events.Event) {
		var reply proto.AuthReply
		if err == nil {
			err = ev.Decode(&reply)
		}
		if err != nil {
			cb(err, 0)
			return
		}
		c.userID = reply.UserID
		c.World.GetOrCreateUser(proto.UserInfo{ID: reply.UserID, Name: req.Name}, true)
		rslog.Infof("%s authenticated", c)
		cb(nil, reply.UserID)
	})
}

// CreateRoom creates a room on the server, it is not joined
func (c *Client) CreateRoom(tickrate int, level string, cb func(err error, roomID common.ID)) {
	c.request(proto.MT_ROOM_CREATE, proto.CreateRoomRequest{Tickrate: tickrate, Level: level}, func(err error, ev *events.Event) {
		var reply proto.CreateRoomReply
		if err == nil {
			err = ev.Decode(&reply)
		}
		cb(err, reply.RoomID)
	})
}

// JoinRoom joins a room and builds its mirror
func (c *Client) JoinRoom(roomID common.ID, cb func(err error, room *entity.Room)) {
	c.request(proto.MT_ROOM_JOIN, proto.RoomRequest{RoomID: roomID}, func(err error, ev *events.Event) {
		var jp proto.JoinPayload
		if err == nil {
			err = ev.Decode(&jp)
		}
		if err != nil {
			cb(err, nil)
			return
		}
		room, err := c.World.MirrorRoom(&jp)
		cb(err, room)
	})
}

// LeaveRoom leaves a room, its mirror is destroyed when the server confirms
func (c *Client) LeaveRoom(roomID common.ID, cb func(err error)) {
	c.request(proto.MT_ROOM_LEAVE, proto.RoomRequest{RoomID: roomID}, func(err error, ev *events.Event) {
		if err == nil {
			if room, ok := c.World.Rooms.Get(roomID); ok {
				room.Destroy()
			}
		}
		if cb != nil {
			cb(err)
		}
	})
}

// SendRoomMessage relays body to the other members of a room
func (c *Client) SendRoomMessage(roomID common.ID, body map[string]interface{}) error {
	return c.World.Router.Send(proto.MT_ROOM_MESSAGE, common.RoomScope(roomID), proto.RelayPayload{Body: body})
}

// SendEntityInput sends an input to the network entity on the server
func (c *Client) SendEntityInput(entityID common.ID, state proto.EntityState) error {
	state.ID = entityID
	return c.World.Router.Send(proto.MT_ENTITY_MESSAGE, common.NetworkEntityScope(entityID), state)
}

// SendUserMessage sends body to every shard, cb receives the reply of each shard
func (c *Client) SendUserMessage(body map[string]interface{}, cb func(err error, replies [][]byte)) {
	c.request(proto.MT_USER_MESSAGE, proto.RelayPayload{Body: body}, func(err error, ev *events.Event) {
		var reply proto.FanoutReply
		if err == nil {
			err = ev.Decode(&reply)
		}
		cb(err, reply.Replies)
	})
}
