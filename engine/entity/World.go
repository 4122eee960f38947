// Package entity replicates rooms, players and network entities between the server and clients.
//
// A World is the replication context of one event loop: a shard on the server side
// (authoritative, it mints ids and broadcasts changes) or a client session (it mirrors what
// the server sends and smooths state updates through interpolation buffers). Both sides share
// the same objects and the same lifecycle rules so a room mirror tears down exactly like the
// room it mirrors.
//
// A World is not goroutine-safe, it must only be used from its own loop.
package entity

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/idpool"
	"github.com/roomsync/roomsync/engine/interp"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/registry"
	"github.com/roomsync/roomsync/engine/router"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/roomsync/roomsync/engine/scene"
)

var (
	// ErrAlreadyJoined is returned when a user joins a room twice
	ErrAlreadyJoined = errors.New("already joined")
	// ErrNotInRoom is returned when a user acts on a room it has not joined
	ErrNotInRoom = errors.New("not in room")
	// ErrNoSuchRoom is returned for unknown room ids
	ErrNoSuchRoom = errors.New("no such room")
	// ErrNoSuchUser is returned for unknown user ids
	ErrNoSuchUser = errors.New("no such user")
	// ErrNoSuchEntity is returned for unknown network entity ids
	ErrNoSuchEntity = errors.New("no such network entity")
	// ErrDuplicateGUID is returned when spawned nodes reuse guids of the room
	ErrDuplicateGUID = errors.New("duplicate guid")
)

// DeliverFunc writes an envelope to the connections of users, it is how authoritative worlds send
type DeliverFunc func(userIDs []common.ID, env *proto.Envelope)

// Config configures a World
type Config struct {
	Name string
	// Authoritative worlds mint ids, tick rooms and broadcast changes
	Authoritative bool
	Packer        netutil.MsgPacker
	Loader        scene.Loader
	Interp        interp.Config
	// Send writes envelopes of mirroring worlds to the server
	Send router.SendFunc
	// Deliver writes envelopes of authoritative worlds to users
	Deliver DeliverFunc
	// IDs is the id pool of authoritative worlds, it may be set later by SetIDPool
	IDs *idpool.Pool
}

// World holds the registries and the event streams of one replication context
type World struct {
	Users           *registry.Registry[*User]
	Players         *registry.Registry[*Player]
	Rooms           *registry.Registry[*Room]
	NetworkEntities *registry.Registry[*NetworkEntity]

	// Events is the root event stream: every dispatched message and every local event ends here
	Events *events.Emitter
	Router *router.Router

	name          string
	authoritative bool
	packer        netutil.MsgPacker
	loader        scene.Loader
	interp        interp.Config
	deliver       DeliverFunc
	ids           *idpool.Pool
	roots         map[*scene.Node]*Room
}

// NewWorld creates a world and installs the handlers of its side
func NewWorld(cfg Config) *World {
	if cfg.Packer == nil {
		cfg.Packer = netutil.MSG_PACKER
	}
	if cfg.Loader == nil {
		cfg.Loader = scene.NewLevelLoader()
	}
	if cfg.Interp.Capacity <= 0 {
		cfg.Interp = interp.DefaultConfig()
	}
	w := &World{
		Users:           registry.New[*User]("users"),
		Players:         registry.New[*Player]("players"),
		Rooms:           registry.New[*Room]("rooms"),
		NetworkEntities: registry.New[*NetworkEntity]("networkEntities"),
		Events:          events.NewEmitter(),
		name:            cfg.Name,
		authoritative:   cfg.Authoritative,
		packer:          cfg.Packer,
		loader:          cfg.Loader,
		interp:          cfg.Interp,
		deliver:         cfg.Deliver,
		ids:             cfg.IDs,
		roots:           map[*scene.Node]*Room{},
	}

	send := cfg.Send
	if w.authoritative {
		send = w.sendByScope
	}
	w.Router = router.New(cfg.Name, cfg.Packer, send, w.Events)
	w.Router.SetResolver(common.ScopeUser, func(id common.ID) (*events.Emitter, bool) {
		u, ok := w.Users.Get(id)
		if !ok {
			return nil, false
		}
		return u.events, true
	})
	w.Router.SetResolver(common.ScopeRoom, func(id common.ID) (*events.Emitter, bool) {
		room, ok := w.Rooms.Get(id)
		if !ok {
			return nil, false
		}
		return room.events, true
	})
	w.Router.SetResolver(common.ScopePlayer, func(id common.ID) (*events.Emitter, bool) {
		p, ok := w.Players.Get(id)
		if !ok {
			return nil, false
		}
		return p.events, true
	})
	w.Router.SetResolver(common.ScopeNetworkEntity, func(id common.ID) (*events.Emitter, bool) {
		e, ok := w.NetworkEntities.Get(id)
		if !ok {
			return nil, false
		}
		return e.events, true
	})

	if w.authoritative {
		w.installAuthorityHandlers()
	} else {
		w.installMirrorHandlers()
	}
	return w
}

func (w *World) String() string {
	return fmt.Sprintf("World<%s>", w.name)
}

// IsAuthoritative returns if the world is the server side
func (w *World) IsAuthoritative() bool {
	return w.authoritative
}

// Packer returns the packer of envelopes and payloads
func (w *World) Packer() netutil.MsgPacker {
	return w.packer
}

// SetIDPool sets the id pool shared by the shards of the process
func (w *World) SetIDPool(ids *idpool.Pool) {
	w.ids = ids
}

func (w *World) nextID() common.ID {
	if w.ids == nil {
		rslog.Panicf("%s: no id pool", w)
	}
	return w.ids.NextID()
}

func (w *World) nextNetworkEntityID() common.ID {
	if w.ids == nil {
		rslog.Panicf("%s: no id pool", w)
	}
	return w.ids.NextNetworkEntityID()
}

func (w *World) fire(mt proto.MsgType, value interface{}, streams ...*events.Emitter) {
	ev := events.NewLocalEvent(mt, value)
	for _, em := range streams {
		em.Emit(ev)
	}
	w.Events.Emit(ev)
}

// GetOrCreateUser returns the user of info, creating it if needed. A user is never downgraded
// from local.
func (w *World) GetOrCreateUser(info proto.UserInfo, isLocal bool) *User {
	if u, ok := w.Users.Get(info.ID); ok {
		if isLocal {
			u.isLocal = true
		}
		if u.Name == "" {
			u.Name = info.Name
		}
		return u
	}
	u := newUser(w, info, isLocal)
	w.Users.Add(u)
	return u
}

// SetUserLatency sets the latency sample of every player of the user
func (w *World) SetUserLatency(userID common.ID, latency float64) {
	u, ok := w.Users.Get(userID)
	if !ok {
		return
	}
	for _, p := range u.players {
		p.Latency = latency
	}
}

// CreateRoom creates a room with the content of level, authoritative worlds mint the id if it is nil
func (w *World) CreateRoom(id common.ID, tickrate int, level proto.Level) (*Room, error) {
	if id.IsNil() {
		if !w.authoritative {
			return nil, errors.Errorf("%s: mirrored rooms need an id", w)
		}
		id = w.nextID()
	}
	if w.Rooms.Has(id) {
		return nil, errors.Wrapf(ErrAlreadyJoined, "room %s", id)
	}
	if tickrate <= 0 {
		tickrate = consts.DEFAULT_ROOM_TICKRATE
	}

	room := newRoom(w, id, tickrate)
	room.expectIDs(level.Nodes)
	root, err := w.loader.Build(id, level)
	if err != nil {
		return nil, err
	}
	room.root = root
	room.level = level.Name

	w.roots[root] = room
	w.Rooms.Add(room)
	if consts.DEBUG_ROOMS {
		rslog.Debugf("%s: %s created, tickrate %d", w, room, tickrate)
	}
	w.fire(proto.EV_ROOM_CREATED, room, room.events)

	for _, c := range root.Children() {
		room.register(c)
	}
	room.pendingIDs = nil
	root.SetObserver(room)
	return room, nil
}

// MirrorRoom builds the mirror of a joined room from its join payload
func (w *World) MirrorRoom(p *proto.JoinPayload) (*Room, error) {
	if w.Rooms.Has(p.ID) {
		return nil, errors.Wrapf(ErrAlreadyJoined, "room %s", p.ID)
	}
	room, err := w.CreateRoom(p.ID, p.Tickrate, p.Level)
	if err != nil {
		return nil, err
	}
	for _, info := range p.Players {
		room.mirrorPlayer(info)
	}
	room.ApplyStates(p.State)
	return room, nil
}

// RoomOfNode returns the room whose scene contains n, found through the root of n
func (w *World) RoomOfNode(n *scene.Node) (*Room, bool) {
	if n == nil {
		return nil, false
	}
	room, ok := w.roots[n.Root()]
	return room, ok
}

// Tick advances the interpolation buffers of every mirrored entity by dt seconds
func (w *World) Tick(dt float64) {
	w.NetworkEntities.ForEach(func(e *NetworkEntity) {
		if e.smoother != nil {
			e.smoother.Tick(dt)
		}
	})
}

// Broadcast sends a message scoped to room to every member except the user except
func (w *World) Broadcast(room *Room, mt proto.MsgType, payload interface{}, except common.ID) error {
	env, err := proto.NewEnvelope(w.packer, mt, common.RoomScope(room.id), payload)
	if err != nil {
		return err
	}
	w.deliverTo(room.userIDs(except), env)
	return nil
}

func (w *World) deliverTo(userIDs []common.ID, env *proto.Envelope) {
	if len(userIDs) == 0 {
		return
	}
	if w.deliver == nil {
		rslog.Warnf("%s: can not deliver %s, no deliver func", w, env)
		return
	}
	w.deliver(userIDs, env)
}

// sendByScope is the router send func of authoritative worlds
func (w *World) sendByScope(env *proto.Envelope) error {
	id := env.Scope.ID
	switch env.Scope.Type {
	case common.ScopeUser:
		w.deliverTo([]common.ID{id}, env)
	case common.ScopeRoom:
		room, ok := w.Rooms.Get(id)
		if !ok {
			return errors.Wrapf(ErrNoSuchRoom, "%s", id)
		}
		w.deliverTo(room.userIDs(0), env)
	case common.ScopePlayer:
		p, ok := w.Players.Get(id)
		if !ok {
			return errors.Errorf("no such player: %s", id)
		}
		w.deliverTo([]common.ID{p.user.id}, env)
	case common.ScopeNetworkEntity:
		e, ok := w.NetworkEntities.Get(id)
		if !ok {
			return errors.Wrapf(ErrNoSuchEntity, "%s", id)
		}
		w.deliverTo(e.room.userIDs(0), env)
	default:
		return errors.Errorf("can not send %s: invalid scope", env)
	}
	return nil
}
