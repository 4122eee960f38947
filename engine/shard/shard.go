// Package shard runs the worlds of the server, one per worker goroutine.
//
// A shard owns the rooms created on it and everything inside them. It never shares memory
// with other shards: the root posts messages to its inbox and the shard posts ownership
// changes, outbound envelopes and fan-out acks back to the root.
package shard

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/entity"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/opmon"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/router"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/roomsync/roomsync/engine/rsutils"
	"github.com/roomsync/roomsync/engine/scene"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
)

const (
	rsNotRunning = iota
	rsRunning
	rsTerminating
	rsTerminated
)

// Config configures the shards of a process
type Config struct {
	Packer netutil.MsgPacker
	Loader scene.Loader
	// Setup is called on the shard loop before any message is handled, it installs the
	// handlers of the application
	Setup func(index int, w *entity.World)
}

// Shard is one worker of the server
type Shard struct {
	Index int

	world      *entity.World
	inbox      chan interface{}
	toRoot     func(msg interface{})
	setup      func(index int, w *entity.World)
	nextTicks  map[common.ID]time.Time
	fanout     bool
	runState   xnsyncutil.AtomicInt
	terminated *xnsyncutil.OneTimeCond
}

// New creates a shard, toRoot posts messages to the root loop
func New(index int, cfg Config, toRoot func(msg interface{})) *Shard {
	s := &Shard{
		Index:      index,
		inbox:      make(chan interface{}, consts.SHARD_INBOX_SIZE),
		toRoot:     toRoot,
		setup:      cfg.Setup,
		nextTicks:  map[common.ID]time.Time{},
		terminated: xnsyncutil.NewOneTimeCond(),
	}
	s.world = entity.NewWorld(entity.Config{
		Name:          s.String(),
		Authoritative: true,
		Packer:        cfg.Packer,
		Loader:        cfg.Loader,
		Deliver: func(userIDs []common.ID, env *proto.Envelope) {
			s.toRoot(&SendToUsers{UserIDs: append([]common.ID(nil), userIDs...), Env: env})
		},
	})
	s.world.Router.SetUnhandled(s.handleUnhandled)
	s.watchOwnership()
	return s
}

func (s *Shard) String() string {
	return fmt.Sprintf("Shard<%d>", s.Index)
}

// World returns the world of the shard, it must only be used from the shard loop
func (s *Shard) World() *entity.World {
	return s.world
}

// Post posts a root message to the shard
func (s *Shard) Post(msg interface{}) {
	s.inbox <- msg
}

// Call runs f on the shard loop
func (s *Shard) Call(f func(w *entity.World)) {
	s.inbox <- f
}

// Start runs the shard loop in a new goroutine
func (s *Shard) Start() {
	s.runState.Store(rsRunning)
	go s.serveRoutine()
}

// Stop closes the rooms of the shard and waits for the loop to quit
func (s *Shard) Stop() {
	if s.runState.Load() != rsRunning {
		return
	}
	s.runState.Store(rsTerminating)
	s.terminated.Wait()
}

func (s *Shard) serveRoutine() {
	if s.setup != nil {
		if err := rsutils.CatchPanic(func() { s.setup(s.Index, s.world) }); err != nil {
			s.fault(err)
		}
	}

	ticker := time.NewTicker(consts.SHARD_TICK_INTERVAL)
	defer ticker.Stop()
	for {
		select {
		case msg := <-s.inbox:
			if err := rsutils.CatchPanic(func() { s.handle(msg) }); err != nil {
				s.fault(err)
			}
		case now := <-ticker.C:
			if s.runState.Load() == rsTerminating {
				s.doTerminate()
				return
			}
			if err := rsutils.CatchPanic(func() { s.tickRooms(now) }); err != nil {
				s.fault(err)
			}
		}
	}
}

func (s *Shard) fault(err error) {
	rslog.Errorf("%s: %+v", s, err)
	s.world.Events.Emit(events.NewLocalEvent(proto.EV_FAULT, err))
	s.toRoot(&Fault{Shard: s.Index, Err: err})
}

func (s *Shard) handle(msg interface{}) {
	switch m := msg.(type) {
	case *Init:
		s.world.SetIDPool(m.Pool)
	case *ConnectUser:
		s.world.GetOrCreateUser(m.User, true)
		s.toRoot(&UserConnected{Shard: s.Index, UserID: m.User.ID})
	case *DisconnectUser:
		if u, ok := s.world.Users.Get(m.UserID); ok {
			u.Destroy()
		}
	case *ClientMessage:
		s.handleClientMessage(m)
	case *UserLatency:
		s.world.SetUserLatency(m.UserID, m.Latency)
	case func(w *entity.World):
		m(s.world)
	default:
		rslog.TraceError("%s: unknown message %T", s, msg)
	}
}

func (s *Shard) handleClientMessage(m *ClientMessage) {
	op := opmon.StartOperation("ShardClientMessage")
	defer op.Finish(time.Millisecond * 100)

	replyTo := func(reply *proto.Envelope) error {
		s.toRoot(&SendToUsers{UserIDs: []common.ID{m.UserID}, Env: reply})
		return nil
	}
	if m.Fanout {
		replyTo = func(reply *proto.Envelope) error {
			s.toRoot(&FanoutAck{Shard: s.Index, UserID: m.UserID, RequestID: reply.ID, Data: reply.Data, Error: reply.Error})
			return nil
		}
	}

	s.fanout = m.Fanout
	ev := s.world.Router.Dispatch(m.Env, m.UserID, replyTo)
	s.fanout = false

	if !m.Fanout {
		return
	}
	if ev == nil {
		// dropped, the root still waits for every shard
		s.toRoot(&FanoutAck{Shard: s.Index, UserID: m.UserID, RequestID: m.Env.ID, Error: "message dropped"})
	} else if ev.IsRequest() && !ev.Responded() {
		ev.Reply(nil)
	}
}

// handleUnhandled answers requests no handler recognized: fan-out requests get a nil ack
func (s *Shard) handleUnhandled(ev *events.Event) {
	if !ev.IsRequest() {
		if consts.DEBUG_ROUTING {
			rslog.Debugf("%s: %s from %s not handled", s, ev.Type, ev.From)
		}
		return
	}
	if s.fanout {
		ev.Reply(nil)
		return
	}
	ev.Fail(errors.Wrapf(router.ErrUnhandled, "%s", ev.Type))
}

func (s *Shard) watchOwnership() {
	on := s.world.Events.On
	on(proto.EV_ROOM_CREATED, func(ev *events.Event) {
		room := ev.Value.(*entity.Room)
		s.toRoot(&RoomCreated{Shard: s.Index, RoomID: room.ID()})
	})
	on(proto.EV_ROOM_DESTROYED, func(ev *events.Event) {
		room := ev.Value.(*entity.Room)
		delete(s.nextTicks, room.ID())
		s.toRoot(&RoomDestroyed{Shard: s.Index, RoomID: room.ID()})
	})
	on(proto.EV_ENTITY_CREATED, func(ev *events.Event) {
		e := ev.Value.(*entity.NetworkEntity)
		s.toRoot(&EntityCreated{Shard: s.Index, EntityID: e.ID(), RoomID: e.Room().ID()})
	})
	on(proto.EV_ENTITY_DESTROYED, func(ev *events.Event) {
		e := ev.Value.(*entity.NetworkEntity)
		s.toRoot(&EntityDestroyed{Shard: s.Index, EntityID: e.ID()})
	})
	on(proto.EV_PLAYER_JOINED, func(ev *events.Event) {
		p := ev.Value.(*entity.Player)
		s.toRoot(&PlayerJoined{Shard: s.Index, PlayerID: p.ID(), UserID: p.User().ID(), RoomID: p.Room().ID()})
	})
	on(proto.EV_PLAYER_LEFT, func(ev *events.Event) {
		p := ev.Value.(*entity.Player)
		s.toRoot(&PlayerLeft{Shard: s.Index, PlayerID: p.ID()})
	})
}

// tickRooms ticks every room whose next frame is due
func (s *Shard) tickRooms(now time.Time) {
	s.world.Rooms.ForEach(func(room *entity.Room) {
		next, ok := s.nextTicks[room.ID()]
		if ok && now.Before(next) {
			return
		}
		if !ok {
			next = now
		}
		room.Tick()

		interval := time.Second / time.Duration(room.Tickrate)
		next = next.Add(interval)
		if next.Before(now) {
			// too late, skip the missed frames
			next = now.Add(interval)
		}
		s.nextTicks[room.ID()] = next
	})
	opmon.GetSink().SetGauge(fmt.Sprintf("shard%d_rooms", s.Index), float64(s.world.Rooms.Len()))
}

func (s *Shard) doTerminate() {
	for _, id := range s.world.Rooms.IDs() {
		if room, ok := s.world.Rooms.Get(id); ok {
			room.Close()
		}
	}
	for _, id := range s.world.Users.IDs() {
		if u, ok := s.world.Users.Get(id); ok {
			u.Destroy()
		}
	}
	rslog.Infof("%s terminated", s)
	s.runState.Store(rsTerminated)
	s.terminated.Signal()
}
