package entity

import (
	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/rslog"
)

// failEvent answers a failed request, the sender of a failed notification gets an error message
func (w *World) failEvent(ev *events.Event, err error) {
	if ev.IsRequest() {
		ev.Fail(err)
		return
	}
	rslog.Warnf("%s: %s from %s failed: %v", w, ev.Type, ev.From, err)
	if !w.authoritative || ev.From.IsNil() {
		return
	}
	env, perr := proto.NewEnvelope(w.packer, proto.MT_ERROR, common.UserScope(ev.From), proto.ErrorPayload{
		Name:    ev.Type.Name(),
		Message: err.Error(),
	})
	if perr != nil {
		rslog.Errorf("%s: build error message failed: %v", w, perr)
		return
	}
	w.deliverTo([]common.ID{ev.From}, env)
}

func (w *World) requester(ev *events.Event) (*User, error) {
	u, ok := w.Users.Get(ev.From)
	if !ok {
		return nil, errors.Wrapf(ErrNoSuchUser, "%s", ev.From)
	}
	return u, nil
}

// memberRoom returns the room of id if the sender of ev has joined it
func (w *World) memberRoom(ev *events.Event, id common.ID) (*Room, error) {
	room, ok := w.Rooms.Get(id)
	if !ok {
		return nil, errors.Wrapf(ErrNoSuchRoom, "%s", id)
	}
	if !room.HasUser(ev.From) {
		return nil, errors.Wrapf(ErrNotInRoom, "user %s in %s", ev.From, room)
	}
	return room, nil
}

func (w *World) installAuthorityHandlers() {
	on := w.Events.On

	on(proto.MT_ROOM_CREATE, func(ev *events.Event) {
		var req proto.CreateRoomRequest
		if err := ev.Decode(&req); err != nil {
			w.failEvent(ev, err)
			return
		}
		room, err := w.CreateRoom(0, req.Tickrate, proto.Level{Name: req.Level})
		if err != nil {
			w.failEvent(ev, err)
			return
		}
		ev.Reply(proto.CreateRoomReply{RoomID: room.id})
	})

	on(proto.MT_ROOM_JOIN, func(ev *events.Event) {
		var req proto.RoomRequest
		if err := ev.Decode(&req); err != nil {
			w.failEvent(ev, err)
			return
		}
		user, err := w.requester(ev)
		if err != nil {
			w.failEvent(ev, err)
			return
		}
		room, ok := w.Rooms.Get(req.RoomID)
		if !ok {
			w.failEvent(ev, errors.Wrapf(ErrNoSuchRoom, "%s", req.RoomID))
			return
		}
		if _, err := room.Join(user); err != nil {
			w.failEvent(ev, err)
			return
		}
		ev.Reply(room.JoinPayload())
	})

	on(proto.MT_ROOM_LEAVE, func(ev *events.Event) {
		var req proto.RoomRequest
		if err := ev.Decode(&req); err != nil {
			w.failEvent(ev, err)
			return
		}
		user, err := w.requester(ev)
		if err != nil {
			w.failEvent(ev, err)
			return
		}
		room, ok := w.Rooms.Get(req.RoomID)
		if !ok {
			w.failEvent(ev, errors.Wrapf(ErrNoSuchRoom, "%s", req.RoomID))
			return
		}
		if err := room.Leave(user); err != nil {
			w.failEvent(ev, err)
			return
		}
		ev.Reply(nil)
	})

	on(proto.MT_ROOM_CLOSE, func(ev *events.Event) {
		room, err := w.memberRoom(ev, ev.Scope().ID)
		if err != nil {
			w.failEvent(ev, err)
			return
		}
		room.Close()
		ev.Reply(nil)
	})

	on(proto.MT_ENTITY_CREATE, func(ev *events.Event) {
		room, err := w.memberRoom(ev, ev.Scope().ID)
		if err != nil {
			w.failEvent(ev, err)
			return
		}
		var req proto.CreatePayload
		if err := ev.Decode(&req); err != nil {
			w.failEvent(ev, err)
			return
		}
		created, err := room.Spawn(req.Entities)
		if err != nil {
			w.failEvent(ev, err)
			return
		}
		reply := proto.CreatePayload{Entities: map[string]*proto.NodeData{}}
		for guid, n := range created {
			if e := room.EntityOf(n); e != nil {
				reply.Entities[guid] = &proto.NodeData{Name: n.Name, Networked: true, ID: e.id}
			}
		}
		ev.Reply(reply)
	})

	on(proto.MT_ENTITY_DELETE, func(ev *events.Event) {
		e, ok := w.NetworkEntities.Get(ev.Scope().ID)
		if !ok {
			w.failEvent(ev, errors.Wrapf(ErrNoSuchEntity, "%s", ev.Scope().ID))
			return
		}
		if !e.room.HasUser(ev.From) {
			w.failEvent(ev, errors.Wrapf(ErrNotInRoom, "user %s in %s", ev.From, e.room))
			return
		}
		e.Destroy()
		ev.Reply(nil)
	})

	on(proto.MT_ENTITY_MESSAGE, func(ev *events.Event) {
		e, ok := w.NetworkEntities.Get(ev.Scope().ID)
		if !ok {
			w.failEvent(ev, errors.Wrapf(ErrNoSuchEntity, "%s", ev.Scope().ID))
			return
		}
		if e.events.Handles(proto.MT_ENTITY_MESSAGE) {
			// handled by the entity itself
			return
		}
		if !e.room.HasUser(ev.From) {
			w.failEvent(ev, errors.Wrapf(ErrNotInRoom, "user %s in %s", ev.From, e.room))
			return
		}
		var input proto.EntityState
		if err := ev.Decode(&input); err != nil {
			w.failEvent(ev, err)
			return
		}
		e.ApplyState(&input)
		ev.Reply(nil)
	})

	on(proto.MT_ROOM_MESSAGE, func(ev *events.Event) {
		room, err := w.memberRoom(ev, ev.Scope().ID)
		if err != nil {
			w.failEvent(ev, err)
			return
		}
		var msg proto.RelayPayload
		if err := ev.Decode(&msg); err != nil {
			w.failEvent(ev, err)
			return
		}
		msg.From = ev.From
		if err := w.Broadcast(room, proto.MT_ROOM_MESSAGE, msg, ev.From); err != nil {
			w.failEvent(ev, err)
			return
		}
		ev.Reply(nil)
	})
}

func (w *World) installMirrorHandlers() {
	on := w.Events.On

	mirrored := func(ev *events.Event) *Room {
		room, ok := w.Rooms.Get(ev.Scope().ID)
		if !ok {
			rslog.Warnf("%s: %s for unknown %s dropped", w, ev.Type, ev.Scope())
			return nil
		}
		return room
	}

	on(proto.MT_PLAYER_JOIN, func(ev *events.Event) {
		room := mirrored(ev)
		if room == nil {
			return
		}
		var info proto.PlayerInfo
		if err := ev.Decode(&info); err != nil {
			rslog.Warnf("%s: bad %s: %v", w, ev.Type, err)
			return
		}
		room.mirrorPlayer(info)
	})

	on(proto.MT_PLAYER_LEAVE, func(ev *events.Event) {
		room := mirrored(ev)
		if room == nil {
			return
		}
		var id common.ID
		if err := ev.Decode(&id); err != nil {
			rslog.Warnf("%s: bad %s: %v", w, ev.Type, err)
			return
		}
		if p := room.players[id]; p != nil {
			p.Destroy()
		}
	})

	on(proto.MT_ENTITY_CREATE, func(ev *events.Event) {
		room := mirrored(ev)
		if room == nil {
			return
		}
		var payload proto.CreatePayload
		if err := ev.Decode(&payload); err != nil {
			rslog.Warnf("%s: bad %s: %v", w, ev.Type, err)
			return
		}
		if err := room.applyCreate(&payload); err != nil {
			rslog.Warnf("%s: drop %s: %v", room, ev.Type, err)
		}
	})

	on(proto.MT_ENTITY_DELETE, func(ev *events.Event) {
		room := mirrored(ev)
		if room == nil {
			return
		}
		var id common.ID
		if err := ev.Decode(&id); err != nil {
			rslog.Warnf("%s: bad %s: %v", w, ev.Type, err)
			return
		}
		room.DeleteEntity(id)
	})

	on(proto.MT_STATE_UPDATE, func(ev *events.Event) {
		room := mirrored(ev)
		if room == nil {
			return
		}
		var states []proto.EntityState
		if err := ev.Decode(&states); err != nil {
			rslog.Warnf("%s: bad %s: %v", w, ev.Type, err)
			return
		}
		room.ApplyStates(states)
	})

	on(proto.MT_ROOM_CLOSE, func(ev *events.Event) {
		if room := mirrored(ev); room != nil {
			room.Destroy()
		}
	})
}
