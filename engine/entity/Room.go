package entity

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/lifecycle"
	"github.com/roomsync/roomsync/engine/opmon"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/roomsync/roomsync/engine/scene"
)

// Room is a simulated scene joined by players. It is the observer of its scene root: networked
// nodes attached under the root become network entities, detached ones are destroyed.
type Room struct {
	// Tickrate is the number of state updates per second
	Tickrate int

	id       common.ID
	world    *World
	level    string
	root     *scene.Node
	players  map[common.ID]*Player
	entities map[common.ID]*NetworkEntity
	byNode   map[*scene.Node]*NetworkEntity
	// ids of mirrored nodes being built, by guid
	pendingIDs map[string]common.ID
	ticks      uint64
	closing    bool
	terminated lifecycle.Signal
	events     *events.Emitter
}

func newRoom(w *World, id common.ID, tickrate int) *Room {
	return &Room{
		Tickrate: tickrate,
		id:       id,
		world:    w,
		players:  map[common.ID]*Player{},
		entities: map[common.ID]*NetworkEntity{},
		byNode:   map[*scene.Node]*NetworkEntity{},
		events:   events.NewEmitter(),
	}
}

func (room *Room) String() string {
	if room == nil {
		return "Room<nil>"
	}
	return fmt.Sprintf("Room<%s>", room.id)
}

// ID returns the room id
func (room *Room) ID() common.ID {
	return room.id
}

// Root returns the scene root of the room
func (room *Room) Root() *scene.Node {
	return room.root
}

// Terminated returns the signal fired when the room is destroyed
func (room *Room) Terminated() *lifecycle.Signal {
	return &room.terminated
}

// Events returns the room scoped event stream
func (room *Room) Events() *events.Emitter {
	return room.events
}

// IsLive returns if the room has produced its first frame
func (room *Room) IsLive() bool {
	return room.ticks > 0
}

// Ticks returns the number of frames produced
func (room *Room) Ticks() uint64 {
	return room.ticks
}

// Players returns the players in the room ordered by id
func (room *Room) Players() []*Player {
	players := make([]*Player, 0, len(room.players))
	for _, p := range room.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].id < players[j].id
	})
	return players
}

// Player returns the player of id in the room
func (room *Room) Player(id common.ID) *Player {
	return room.players[id]
}

// HasUser returns if the user has joined the room
func (room *Room) HasUser(userID common.ID) bool {
	for _, p := range room.players {
		if p.user.id == userID {
			return true
		}
	}
	return false
}

func (room *Room) userIDs(except common.ID) []common.ID {
	ids := make([]common.ID, 0, len(room.players))
	for _, p := range room.players {
		if p.user.id != except {
			ids = append(ids, p.user.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}

// Entities returns the network entities of the room ordered by id
func (room *Room) Entities() []*NetworkEntity {
	entities := make([]*NetworkEntity, 0, len(room.entities))
	for _, e := range room.entities {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].id < entities[j].id
	})
	return entities
}

// Entity returns the network entity of id in the room
func (room *Room) Entity(id common.ID) *NetworkEntity {
	return room.entities[id]
}

// EntityOf returns the network entity wrapping node
func (room *Room) EntityOf(node *scene.Node) *NetworkEntity {
	return room.byNode[node]
}

// Join makes user join the room, the other members are notified
func (room *Room) Join(user *User) (*Player, error) {
	if room.terminated.Fired() {
		return nil, errors.Wrapf(ErrNoSuchRoom, "%s", room.id)
	}
	if user.players[room.id] != nil {
		return nil, errors.Wrapf(ErrAlreadyJoined, "%s in %s", user, room)
	}
	p := room.addPlayer(room.world.nextID(), user)
	if err := room.world.Broadcast(room, proto.MT_PLAYER_JOIN, p.Info(), user.id); err != nil {
		rslog.Errorf("%s: broadcast join of %s failed: %v", room, p, err)
	}
	return p, nil
}

// Leave destroys the player of user in the room
func (room *Room) Leave(user *User) error {
	p := user.players[room.id]
	if p == nil || p.room != room {
		return errors.Wrapf(ErrNotInRoom, "%s in %s", user, room)
	}
	p.Destroy()
	return nil
}

func (room *Room) addPlayer(id common.ID, user *User) *Player {
	p := &Player{
		id:     id,
		user:   user,
		room:   room,
		events: events.NewEmitter(),
	}
	room.players[id] = p
	user.players[room.id] = p
	room.world.Players.Add(p)
	if consts.DEBUG_ROOMS {
		rslog.Debugf("%s joined %s", p, room)
	}
	room.world.fire(proto.EV_PLAYER_JOINED, p, room.events)
	return p
}

func (room *Room) mirrorPlayer(info proto.PlayerInfo) *Player {
	if p := room.players[info.ID]; p != nil {
		return p
	}
	user := room.world.GetOrCreateUser(info.User, false)
	if user.players[room.id] != nil {
		rslog.Warnf("%s: %s already has a player, %s ignored", room, user, info.ID)
		return nil
	}
	p := room.addPlayer(info.ID, user)
	p.Latency = info.Latency
	return p
}

// JoinPayload builds what a joining client needs to mirror the room
func (room *Room) JoinPayload() *proto.JoinPayload {
	players := room.Players()
	jp := &proto.JoinPayload{
		ID:       room.id,
		Tickrate: room.Tickrate,
		Players:  make([]proto.PlayerInfo, len(players)),
		Level: proto.Level{
			Name:         room.level,
			Nodes:        scene.Flatten(room.root, room.nodeData),
			Materialized: true,
		},
	}
	for i, p := range players {
		jp.Players[i] = p.Info()
	}
	for _, e := range room.Entities() {
		jp.State = append(jp.State, e.fullState())
	}
	return jp
}

func (room *Room) nodeData(n *scene.Node) *proto.NodeData {
	nd := &proto.NodeData{}
	state := stateOfNode(n)
	if e := room.byNode[n]; e != nil {
		nd.ID = e.id
		state.ID = e.id
	}
	nd.State = &state
	return nd
}

// OnAttached registers the network entities of an attached subtree
func (room *Room) OnAttached(n *scene.Node) {
	created := room.register(n)
	if len(created) == 0 || !room.world.authoritative || room.closing {
		return
	}
	if !room.IsLive() {
		// joining clients get them from the join payload
		return
	}
	payload := proto.CreatePayload{Entities: scene.FlattenSubtree(n, room.nodeData)}
	if err := room.world.Broadcast(room, proto.MT_ENTITY_CREATE, payload, 0); err != nil {
		rslog.Errorf("%s: broadcast creation of %s failed: %v", room, n, err)
	}
}

// OnDetached destroys the network entities of a detached subtree
func (room *Room) OnDetached(n *scene.Node) {
	n.Walk(func(d *scene.Node) bool {
		if e := room.byNode[d]; e != nil {
			e.Destroy()
		}
		return true
	})
}

func (room *Room) expectIDs(nodes map[string]*proto.NodeData) {
	if room.world.authoritative {
		return
	}
	room.pendingIDs = make(map[string]common.ID, len(nodes))
	for guid, nd := range nodes {
		if nd != nil && nd.Networked && !nd.ID.IsNil() {
			room.pendingIDs[guid] = nd.ID
		}
	}
}

// register walks the subtree of n and creates the network entities of networked nodes
func (room *Room) register(n *scene.Node) []*NetworkEntity {
	w := room.world
	var created []*NetworkEntity
	n.Walk(func(d *scene.Node) bool {
		if !d.Networked || room.byNode[d] != nil {
			return true
		}
		var id common.ID
		if w.authoritative {
			id = w.nextNetworkEntityID()
		} else {
			id = room.pendingIDs[d.GUID]
			if id.IsNil() {
				rslog.Warnf("%s: networked %s has no id, not replicated", room, d)
				return true
			}
			if w.NetworkEntities.Has(id) {
				rslog.Warnf("%s: network entity %s already exists, %s not replicated", room, id, d)
				return true
			}
		}
		created = append(created, room.addEntity(id, d))
		return true
	})
	return created
}

func (room *Room) addEntity(id common.ID, node *scene.Node) *NetworkEntity {
	w := room.world
	e := &NetworkEntity{
		id:     id,
		room:   room,
		node:   node,
		events: events.NewEmitter(),
	}
	if !w.authoritative {
		e.smoother = newSmoother(node, float64(room.Tickrate), w.interp)
	}
	room.entities[id] = e
	room.byNode[node] = e
	w.NetworkEntities.Add(e)
	if consts.DEBUG_ROOMS {
		rslog.Debugf("%s: %s created for %s", room, e, node)
	}
	w.fire(proto.EV_ENTITY_CREATED, e, room.events)
	return e
}

// Spawn attaches the serialized nodes under the room root, the server mints their ids
func (room *Room) Spawn(nodes map[string]*proto.NodeData) (map[string]*scene.Node, error) {
	if err := scene.Validate(nodes); err != nil {
		return nil, err
	}
	for guid := range nodes {
		if room.root.FindByGUID(guid) != nil {
			return nil, errors.Wrapf(ErrDuplicateGUID, "%s", guid)
		}
	}
	for _, nd := range nodes {
		nd.ID = 0
		if nd.State != nil {
			nd.State.ID = 0
		}
	}
	created, missing := scene.Build(room.root, nodes)
	if len(missing) > 0 {
		rslog.Warnf("%s: spawned nodes reference missing parents %v", room, missing)
	}
	return created, nil
}

// applyCreate mirrors the entities of a create message
func (room *Room) applyCreate(payload *proto.CreatePayload) error {
	if err := scene.Validate(payload.Entities); err != nil {
		return err
	}
	room.expectIDs(payload.Entities)
	_, missing := scene.Build(room.root, payload.Entities)
	room.pendingIDs = nil
	if len(missing) > 0 {
		rslog.Warnf("%s: created entities reference missing parents %v", room, missing)
	}
	return nil
}

// DeleteEntity destroys the network entity of id, deleting an unknown id is a no-op
func (room *Room) DeleteEntity(id common.ID) bool {
	e := room.entities[id]
	if e == nil {
		return false
	}
	e.Destroy()
	return true
}

// ApplyStates applies a state update batch, records of unknown entities are skipped
func (room *Room) ApplyStates(states []proto.EntityState) {
	for i := range states {
		e := room.entities[states[i].ID]
		if e == nil {
			if consts.DEBUG_ROOMS {
				rslog.Debugf("%s: state of unknown entity %s skipped", room, states[i].ID)
			}
			continue
		}
		e.ApplyState(&states[i])
	}
}

// Tick produces one frame: one state update with the snapshots of the entities that changed
func (room *Room) Tick() {
	if room.terminated.Fired() {
		return
	}
	op := opmon.StartOperation("RoomTick")
	defer op.Finish(consts.ROOM_TICK_WARN_THRESHOLD)

	room.ticks += 1
	var states []proto.EntityState
	for _, e := range room.Entities() {
		if s := e.Snapshot(false); s != nil {
			states = append(states, *s)
		}
	}
	if len(states) == 0 {
		return
	}
	if err := room.world.Broadcast(room, proto.MT_STATE_UPDATE, states, 0); err != nil {
		rslog.Errorf("%s: broadcast state update failed: %v", room, err)
	}
}

// Close notifies the members and destroys the room
func (room *Room) Close() {
	if room.terminated.Fired() || room.closing {
		return
	}
	if room.world.authoritative {
		if err := room.world.Broadcast(room, proto.MT_ROOM_CLOSE, proto.RoomRequest{RoomID: room.id}, 0); err != nil {
			rslog.Errorf("%s: broadcast close failed: %v", room, err)
		}
	}
	room.Destroy()
}

// Destroy destroys the players and the network entities of the room then the room itself
func (room *Room) Destroy() {
	if room.terminated.Fired() || room.closing {
		return
	}
	room.closing = true
	w := room.world
	for _, p := range room.Players() {
		p.Destroy()
	}
	room.root.SetObserver(nil)
	for _, e := range room.Entities() {
		e.Destroy()
	}
	w.loader.Clear(room.id)
	delete(w.roots, room.root)
	room.terminated.Fire()

	if consts.DEBUG_ROOMS {
		rslog.Debugf("%s destroyed", room)
	}
	w.fire(proto.EV_ROOM_DESTROYED, room, room.events)
	room.events.Clear()
}
