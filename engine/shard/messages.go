package shard

import (
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/idpool"
	"github.com/roomsync/roomsync/engine/proto"
)

// Messages posted by the root to a shard

// Init hands the shared id pool to the shard, it is the first message of every shard
type Init struct {
	Pool *idpool.Pool
}

// ConnectUser makes an authenticated user known to the shard, acked by UserConnected
type ConnectUser struct {
	User proto.UserInfo
}

// DisconnectUser destroys the user and all its players
type DisconnectUser struct {
	UserID common.ID
}

// ClientMessage is an envelope sent by a user. Replies of fan-out messages are acked with
// FanoutAck instead of being sent to the user.
type ClientMessage struct {
	UserID common.ID
	Env    *proto.Envelope
	Fanout bool
}

// UserLatency is the last latency measured by the heartbeat of a user
type UserLatency struct {
	UserID  common.ID
	Latency float64
}

// Messages posted by a shard to the root

// UserConnected acks ConnectUser
type UserConnected struct {
	Shard  int
	UserID common.ID
}

// RoomCreated claims the ownership of a room
type RoomCreated struct {
	Shard  int
	RoomID common.ID
}

// RoomDestroyed releases the ownership of a room
type RoomDestroyed struct {
	Shard  int
	RoomID common.ID
}

// EntityCreated claims the ownership of a network entity
type EntityCreated struct {
	Shard    int
	EntityID common.ID
	RoomID   common.ID
}

// EntityDestroyed releases the ownership of a network entity
type EntityDestroyed struct {
	Shard    int
	EntityID common.ID
}

// PlayerJoined records which room, and so which shard, a player belongs to
type PlayerJoined struct {
	Shard    int
	PlayerID common.ID
	UserID   common.ID
	RoomID   common.ID
}

// PlayerLeft forgets a player
type PlayerLeft struct {
	Shard    int
	PlayerID common.ID
}

// SendToUsers writes an envelope to the connections of users
type SendToUsers struct {
	UserIDs []common.ID
	Env     *proto.Envelope
}

// FanoutAck is the answer of one shard to a fan-out message
type FanoutAck struct {
	Shard     int
	UserID    common.ID
	RequestID uint64
	Data      []byte
	Error     string
}

// Fault reports a panic recovered by the shard loop
type Fault struct {
	Shard int
	Err   error
}
