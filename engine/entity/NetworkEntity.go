package entity

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/lifecycle"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/roomsync/roomsync/engine/scene"
)

// NetworkEntity is a networked scene node replicated to the members of its room
type NetworkEntity struct {
	id         common.ID
	room       *Room
	node       *scene.Node
	last       proto.EntityState
	sent       bool
	smoother   *Smoother
	terminated lifecycle.Signal
	events     *events.Emitter
}

func (e *NetworkEntity) String() string {
	if e == nil {
		return "NetworkEntity<nil>"
	}
	return fmt.Sprintf("NetworkEntity<%s|%s>", e.id, e.node.Name)
}

// ID returns the network entity id
func (e *NetworkEntity) ID() common.ID {
	return e.id
}

// Room returns the room of the entity
func (e *NetworkEntity) Room() *Room {
	return e.room
}

// Node returns the wrapped scene node
func (e *NetworkEntity) Node() *scene.Node {
	return e.node
}

// Smoother returns the interpolation buffers of a mirrored entity, nil on the server
func (e *NetworkEntity) Smoother() *Smoother {
	return e.smoother
}

// Terminated returns the signal fired when the entity is destroyed
func (e *NetworkEntity) Terminated() *lifecycle.Signal {
	return &e.terminated
}

// Events returns the entity scoped event stream
func (e *NetworkEntity) Events() *events.Emitter {
	return e.events
}

// IsDestroyed returns if the entity is destroyed
func (e *NetworkEntity) IsDestroyed() bool {
	return e.terminated.Fired()
}

func (e *NetworkEntity) fullState() proto.EntityState {
	s := stateOfNode(e.node)
	s.ID = e.id
	return s
}

// Snapshot returns the state to send this tick: the full state if force is set or nothing was
// sent yet, otherwise the fields changed since the last snapshot, nil if nothing changed.
func (e *NetworkEntity) Snapshot(force bool) *proto.EntityState {
	cur := e.fullState()
	if force || !e.sent {
		e.last = cur
		e.sent = true
		return &cur
	}

	delta := proto.EntityState{ID: e.id}
	if *cur.Pos != *e.last.Pos {
		delta.Pos = cur.Pos
	}
	if *cur.Rot != *e.last.Rot {
		delta.Rot = cur.Rot
	}
	if *cur.Scale != *e.last.Scale {
		delta.Scale = cur.Scale
	}
	for k, v := range cur.Attrs {
		if old, ok := e.last.Attrs[k]; !ok || old != v {
			if delta.Attrs == nil {
				delta.Attrs = map[string]float64{}
			}
			delta.Attrs[k] = v
		}
	}
	for k := range e.last.Attrs {
		if _, ok := cur.Attrs[k]; !ok {
			delta.DropAttrs = append(delta.DropAttrs, k)
		}
	}
	for k, v := range cur.Data {
		if old, ok := e.last.Data[k]; !ok || !reflect.DeepEqual(old, v) {
			if delta.Data == nil {
				delta.Data = map[string]interface{}{}
			}
			delta.Data[k] = v
		}
	}
	for k := range e.last.Data {
		if _, ok := cur.Data[k]; !ok {
			delta.DropData = append(delta.DropData, k)
		}
	}
	sort.Strings(delta.DropAttrs)
	sort.Strings(delta.DropData)
	e.last = cur
	if delta.IsEmpty() {
		return nil
	}
	return &delta
}

// ApplyState applies an incoming snapshot: mirrored entities feed their interpolation buffers,
// authoritative entities take it as is
func (e *NetworkEntity) ApplyState(s *proto.EntityState) {
	if e.terminated.Fired() {
		return
	}
	if e.smoother != nil {
		e.smoother.Push(s)
		return
	}
	applyToNode(e.node, s)
}

// Destroy unregisters the entity. On the server the members of the room are sent the deletion.
func (e *NetworkEntity) Destroy() {
	if e.terminated.Fired() {
		return
	}
	room, w := e.room, e.room.world
	delete(room.entities, e.id)
	if room.byNode[e.node] == e {
		delete(room.byNode, e.node)
	}
	e.terminated.Fire()

	if consts.DEBUG_ROOMS {
		rslog.Debugf("%s: %s destroyed", room, e)
	}
	if w.authoritative && !room.closing {
		if err := w.Broadcast(room, proto.MT_ENTITY_DELETE, e.id, 0); err != nil {
			rslog.Errorf("%s: broadcast deletion of %s failed: %v", room, e, err)
		}
	}
	w.fire(proto.EV_ENTITY_DESTROYED, e, e.events, room.events)
	e.events.Clear()

	// destroyed directly rather than by detaching its node
	if !room.closing && e.node.Parent() != nil && e.node.Root() == room.root {
		e.node.Remove()
	}
}

func stateOfNode(n *scene.Node) proto.EntityState {
	pos, rot, scale := n.Pos, n.Rot, n.Scale
	s := proto.EntityState{
		Pos:   &pos,
		Rot:   &rot,
		Scale: &scale,
	}
	if len(n.Attrs) > 0 {
		s.Attrs = make(map[string]float64, len(n.Attrs))
		for k, v := range n.Attrs {
			s.Attrs[k] = v
		}
	}
	if len(n.Data) > 0 {
		s.Data = make(map[string]interface{}, len(n.Data))
		for k, v := range n.Data {
			s.Data[k] = v
		}
	}
	return s
}

func applyToNode(n *scene.Node, s *proto.EntityState) {
	if s.Pos != nil {
		n.Pos = *s.Pos
	}
	if s.Rot != nil {
		n.Rot = *s.Rot
	}
	if s.Scale != nil {
		n.Scale = *s.Scale
	}
	for _, k := range s.DropAttrs {
		delete(n.Attrs, k)
	}
	for k, v := range s.Attrs {
		n.Attrs[k] = v
	}
	applyData(n, s.Data, s.DropData)
}

func applyData(n *scene.Node, data map[string]interface{}, drop []string) {
	for _, k := range drop {
		delete(n.Data, k)
	}
	if len(data) == 0 {
		return
	}
	if n.Data == nil {
		n.Data = map[string]interface{}{}
	}
	for k, v := range data {
		n.Data[k] = v
	}
}
