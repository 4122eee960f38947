package entity

import (
	"fmt"

	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/lifecycle"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/rslog"
)

// Player is the membership of a user in a room
type Player struct {
	// Latency is the last measured network latency of the owning user in milliseconds
	Latency float64

	id         common.ID
	user       *User
	room       *Room
	terminated lifecycle.Signal
	events     *events.Emitter
}

func (p *Player) String() string {
	if p == nil {
		return "Player<nil>"
	}
	return fmt.Sprintf("Player<%s|%s@%s>", p.id, p.user.id, p.room.id)
}

// ID returns the player id
func (p *Player) ID() common.ID {
	return p.id
}

// User returns the owning user, never nil
func (p *Player) User() *User {
	return p.user
}

// Room returns the joined room, never nil
func (p *Player) Room() *Room {
	return p.room
}

// Info returns the serializable description of the player
func (p *Player) Info() proto.PlayerInfo {
	return proto.PlayerInfo{
		ID:      p.id,
		User:    p.user.Info(),
		Latency: p.Latency,
	}
}

// Terminated returns the signal fired when the player is destroyed
func (p *Player) Terminated() *lifecycle.Signal {
	return &p.terminated
}

// Events returns the player scoped event stream
func (p *Player) Events() *events.Emitter {
	return p.events
}

// Destroy removes the player from its room, its user and the registries.
//
// The user is destroyed with its last player unless it is local. On the server the other
// members of the room are notified, and a room left by its last player is closed.
func (p *Player) Destroy() {
	if p.terminated.Fired() {
		return
	}
	w, room, user := p.room.world, p.room, p.user
	delete(room.players, p.id)
	if user.players[room.id] == p {
		delete(user.players, room.id)
	}
	p.terminated.Fire()

	if consts.DEBUG_ROOMS {
		rslog.Debugf("%s left %s", p, room)
	}
	w.fire(proto.EV_PLAYER_LEFT, p, room.events)
	p.events.Clear()

	if w.authoritative && !room.closing {
		if err := w.Broadcast(room, proto.MT_PLAYER_LEAVE, p.id, 0); err != nil {
			rslog.Errorf("%s: broadcast leave of %s failed: %v", room, p, err)
		}
		if len(room.players) == 0 {
			room.Close()
		}
	}

	if !user.isLocal && len(user.players) == 0 {
		user.Destroy()
	}
}
