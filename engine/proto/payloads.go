package proto

import "github.com/roomsync/roomsync/engine/common"

// PingPayload is the payload of MT_PING
type PingPayload struct {
	Nonce        int64   `msgpack:"n" json:"n"`
	Latency      float64 `msgpack:"l" json:"l"`
	BandwidthIn  float64 `msgpack:"i,omitempty" json:"i,omitempty"`
	BandwidthOut float64 `msgpack:"o,omitempty" json:"o,omitempty"`
}

// PongPayload is the payload of MT_PONG
type PongPayload struct {
	Nonce int64 `msgpack:"n" json:"n"`
}

// ErrorPayload is the payload of MT_ERROR
type ErrorPayload struct {
	Name    string `msgpack:"n" json:"n"`
	Message string `msgpack:"m" json:"m"`
}

// AuthRequest is the payload of MT_AUTHENTICATE, which fields are used depends on the authenticator
type AuthRequest struct {
	Token string `msgpack:"t,omitempty" json:"t,omitempty"`
	Name  string `msgpack:"n,omitempty" json:"n,omitempty"`
}

// AuthReply is the reply of MT_AUTHENTICATE
type AuthReply struct {
	UserID common.ID `msgpack:"u" json:"u"`
}

// CreateRoomRequest is the payload of MT_ROOM_CREATE
type CreateRoomRequest struct {
	Tickrate int    `msgpack:"t,omitempty" json:"t,omitempty"`
	Level    string `msgpack:"l,omitempty" json:"l,omitempty"`
}

// CreateRoomReply is the reply of MT_ROOM_CREATE
type CreateRoomReply struct {
	RoomID common.ID `msgpack:"r" json:"r"`
}

// RoomRequest is the payload of MT_ROOM_JOIN, MT_ROOM_LEAVE and MT_ROOM_CLOSE
type RoomRequest struct {
	RoomID common.ID `msgpack:"r" json:"r"`
}

// UserInfo describes the user owning a player
type UserInfo struct {
	ID   common.ID `msgpack:"id" json:"id"`
	Name string    `msgpack:"n,omitempty" json:"n,omitempty"`
}

// PlayerInfo describes a player, it is the payload of MT_PLAYER_JOIN
type PlayerInfo struct {
	ID      common.ID `msgpack:"id" json:"id"`
	User    UserInfo  `msgpack:"u" json:"u"`
	Latency float64   `msgpack:"l,omitempty" json:"l,omitempty"`
}

// NodeData is one node of a flat serialized hierarchy
//
// Parent is the guid of the parent node, empty for nodes attached to the room root.
// ID is the network entity id of networked nodes.
type NodeData struct {
	Parent    string       `msgpack:"p,omitempty" json:"p,omitempty"`
	Name      string       `msgpack:"n,omitempty" json:"n,omitempty"`
	Networked bool         `msgpack:"w,omitempty" json:"w,omitempty"`
	ID        common.ID    `msgpack:"i,omitempty" json:"i,omitempty"`
	State     *EntityState `msgpack:"s,omitempty" json:"s,omitempty"`
}

// Level is the content of a room, either a level name known to the loader or the serialized nodes.
//
// A materialized level carries the whole current content in Nodes, possibly none, and Name is
// informative only. Join payloads are always materialized.
type Level struct {
	Name         string               `msgpack:"n,omitempty" json:"n,omitempty"`
	Nodes        map[string]*NodeData `msgpack:"o,omitempty" json:"o,omitempty"`
	Materialized bool                 `msgpack:"m,omitempty" json:"m,omitempty"`
}

// JoinPayload is the reply of MT_ROOM_JOIN, the joining client builds its room mirror from it
type JoinPayload struct {
	ID       common.ID     `msgpack:"id" json:"id"`
	Tickrate int           `msgpack:"t" json:"t"`
	Players  []PlayerInfo  `msgpack:"p" json:"p"`
	Level    Level         `msgpack:"l" json:"l"`
	State    []EntityState `msgpack:"s,omitempty" json:"s,omitempty"`
}

// CreatePayload is the payload of MT_ENTITY_CREATE, nodes are keyed by guid
type CreatePayload struct {
	Entities map[string]*NodeData `msgpack:"e" json:"e"`
}

// EntityState is one snapshot of a network entity, nil fields are unchanged.
// Attrs and Data only carry the keys set, removed keys are listed in DropAttrs and DropData.
type EntityState struct {
	ID        common.ID              `msgpack:"id" json:"id"`
	Pos       *common.Vector3        `msgpack:"p,omitempty" json:"p,omitempty"`
	Rot       *common.Quaternion     `msgpack:"r,omitempty" json:"r,omitempty"`
	Scale     *common.Vector3        `msgpack:"s,omitempty" json:"s,omitempty"`
	Attrs     map[string]float64     `msgpack:"a,omitempty" json:"a,omitempty"`
	Data      map[string]interface{} `msgpack:"d,omitempty" json:"d,omitempty"`
	DropAttrs []string               `msgpack:"da,omitempty" json:"da,omitempty"`
	DropData  []string               `msgpack:"dd,omitempty" json:"dd,omitempty"`
}

// IsEmpty returns if the snapshot carries no field
func (s *EntityState) IsEmpty() bool {
	return s.Pos == nil && s.Rot == nil && s.Scale == nil &&
		len(s.Attrs) == 0 && len(s.Data) == 0 && len(s.DropAttrs) == 0 && len(s.DropData) == 0
}

// RelayPayload is the payload of application messages relayed by the server
type RelayPayload struct {
	From common.ID              `msgpack:"f,omitempty" json:"f,omitempty"`
	Body map[string]interface{} `msgpack:"b,omitempty" json:"b,omitempty"`
}

// FanoutReply is the aggregated reply of a user message delivered to every shard
type FanoutReply struct {
	Replies [][]byte `msgpack:"r" json:"r"`
}
