package proto

import "fmt"

// MsgType is the closed set of message kinds routed between clients, the root and shards
type MsgType uint16

const (
	// MT_INVALID is the invalid message type
	MT_INVALID MsgType = iota
	// MT_PING is the heartbeat sent by clients
	MT_PING
	// MT_PONG answers MT_PING on the same scope
	MT_PONG
	// MT_AUTHENTICATE is the first message of a connection
	MT_AUTHENTICATE
	// MT_ERROR reports a failed uncorrelated message
	MT_ERROR

	// MT_ROOM_CREATE creates a room on the room creation shard
	MT_ROOM_CREATE
	// MT_ROOM_JOIN joins the user to a room, the reply carries the join payload
	MT_ROOM_JOIN
	// MT_ROOM_LEAVE removes the user's player from a room
	MT_ROOM_LEAVE
	// MT_ROOM_CLOSE closes a room and everything in it
	MT_ROOM_CLOSE

	// MT_PLAYER_JOIN notifies a room that a player joined
	MT_PLAYER_JOIN
	// MT_PLAYER_LEAVE notifies a room that a player left
	MT_PLAYER_LEAVE

	// MT_ENTITY_CREATE carries a batch of new network entities
	MT_ENTITY_CREATE
	// MT_ENTITY_DELETE carries the id of a removed network entity
	MT_ENTITY_DELETE
	// MT_STATE_UPDATE carries the snapshots of one room tick
	MT_STATE_UPDATE

	// MT_USER_MESSAGE is an application message scoped to a user
	MT_USER_MESSAGE
	// MT_ROOM_MESSAGE is an application message relayed to every member of a room
	MT_ROOM_MESSAGE
	// MT_ENTITY_MESSAGE is an application message delivered to a network entity
	MT_ENTITY_MESSAGE

	// MT_MAX is the end of message types
	MT_MAX
)

var msgTypeNames = [MT_MAX]string{
	MT_INVALID:        "",
	MT_PING:           "_ping",
	MT_PONG:           "_pong",
	MT_AUTHENTICATE:   "_auth",
	MT_ERROR:          "_error",
	MT_ROOM_CREATE:    "room:create",
	MT_ROOM_JOIN:      "room:join",
	MT_ROOM_LEAVE:     "room:leave",
	MT_ROOM_CLOSE:     "room:close",
	MT_PLAYER_JOIN:    "player:join",
	MT_PLAYER_LEAVE:   "player:leave",
	MT_ENTITY_CREATE:  "entity:create",
	MT_ENTITY_DELETE:  "entity:delete",
	MT_STATE_UPDATE:   "state:update",
	MT_USER_MESSAGE:   "user:message",
	MT_ROOM_MESSAGE:   "room:message",
	MT_ENTITY_MESSAGE: "entity:message",
}

var msgTypesByName = map[string]MsgType{}

func init() {
	for mt := MT_INVALID + 1; mt < MT_MAX; mt++ {
		msgTypesByName[msgTypeNames[mt]] = mt
	}
}

// Name returns the wire name of the message type
func (mt MsgType) Name() string {
	if mt < MT_MAX {
		return msgTypeNames[mt]
	}
	return ""
}

func (mt MsgType) String() string {
	if name := mt.Name(); name != "" {
		return name
	}
	if name, ok := localEventNames[mt]; ok {
		return name
	}
	return fmt.Sprintf("MsgType<%d>", uint16(mt))
}

// ParseMsgType resolves a wire name, ok is false for unknown names
func ParseMsgType(name string) (mt MsgType, ok bool) {
	mt, ok = msgTypesByName[name]
	return
}

// Local event types are fired on event streams by the process itself and never sent on the wire
const (
	// EV_PLAYER_JOINED fires with the *Player that joined a room
	EV_PLAYER_JOINED MsgType = iota + 1000
	// EV_PLAYER_LEFT fires with the *Player that left a room
	EV_PLAYER_LEFT
	// EV_ROOM_CREATED fires with the *Room that was created or mirrored
	EV_ROOM_CREATED
	// EV_ROOM_DESTROYED fires with the *Room that was destroyed
	EV_ROOM_DESTROYED
	// EV_ENTITY_CREATED fires with the *NetworkEntity that was registered
	EV_ENTITY_CREATED
	// EV_ENTITY_DESTROYED fires with the *NetworkEntity that was destroyed
	EV_ENTITY_DESTROYED
	// EV_FAULT fires with the error recovered from a failing handler or loop
	EV_FAULT
)

var localEventNames = map[MsgType]string{
	EV_PLAYER_JOINED:    "player joined",
	EV_PLAYER_LEFT:      "player left",
	EV_ROOM_CREATED:     "room created",
	EV_ROOM_DESTROYED:   "room destroyed",
	EV_ENTITY_CREATED:   "entity created",
	EV_ENTITY_DESTROYED: "entity destroyed",
	EV_FAULT:            "fault",
}

// IsLocal returns if the type is a local event type
func (mt MsgType) IsLocal() bool {
	_, ok := localEventNames[mt]
	return ok
}
