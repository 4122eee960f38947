package entity

import (
	"fmt"
	"sort"

	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/events"
	"github.com/roomsync/roomsync/engine/lifecycle"
	"github.com/roomsync/roomsync/engine/proto"
)

// User is a session. It owns at most one player per room.
//
// A user that is not local is destroyed with its last player. Local users are the session of
// the client itself, or on the server the authenticated owner of a connection, and live until
// they are destroyed explicitly.
type User struct {
	Name string

	id         common.ID
	world      *World
	isLocal    bool
	players    map[common.ID]*Player // by room id
	destroying bool
	terminated lifecycle.Signal
	events     *events.Emitter
}

func newUser(w *World, info proto.UserInfo, isLocal bool) *User {
	return &User{
		Name:    info.Name,
		id:      info.ID,
		world:   w,
		isLocal: isLocal,
		players: map[common.ID]*Player{},
		events:  events.NewEmitter(),
	}
}

func (u *User) String() string {
	if u == nil {
		return "User<nil>"
	}
	return fmt.Sprintf("User<%s|%s>", u.id, u.Name)
}

// ID returns the user id
func (u *User) ID() common.ID {
	return u.id
}

// IsLocal returns if the user is the owner of the session
func (u *User) IsLocal() bool {
	return u.isLocal
}

// Info returns the serializable description of the user
func (u *User) Info() proto.UserInfo {
	return proto.UserInfo{ID: u.id, Name: u.Name}
}

// Terminated returns the signal fired when the user is destroyed
func (u *User) Terminated() *lifecycle.Signal {
	return &u.terminated
}

// Events returns the user scoped event stream
func (u *User) Events() *events.Emitter {
	return u.events
}

// PlayerIn returns the player of the user in room, nil if the user has not joined it
func (u *User) PlayerIn(roomID common.ID) *Player {
	return u.players[roomID]
}

// Players returns the players of the user ordered by room id
func (u *User) Players() []*Player {
	players := make([]*Player, 0, len(u.players))
	for _, p := range u.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].room.id < players[j].room.id
	})
	return players
}

// Rooms returns the rooms joined through the players of the user
func (u *User) Rooms() []*Room {
	players := u.Players()
	rooms := make([]*Room, len(players))
	for i, p := range players {
		rooms[i] = p.room
	}
	return rooms
}

// Destroy destroys the players of the user then the user itself
func (u *User) Destroy() {
	if u.terminated.Fired() || u.destroying {
		return
	}
	u.destroying = true
	for _, p := range u.Players() {
		p.Destroy()
	}
	u.terminated.Fire()
	u.events.Clear()
}
