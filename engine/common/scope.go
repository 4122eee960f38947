package common

import "fmt"

// ScopeType is the closed set of namespaces a routed message can target
type ScopeType uint8

const (
	// ScopeNone is the zero scope type, invalid on the wire
	ScopeNone ScopeType = iota
	// ScopeUser targets a user
	ScopeUser
	// ScopeRoom targets a room
	ScopeRoom
	// ScopePlayer targets a player
	ScopePlayer
	// ScopeNetworkEntity targets a network entity
	ScopeNetworkEntity
)

// IsValid returns if the scope type is one of the routable types
func (st ScopeType) IsValid() bool {
	return st >= ScopeUser && st <= ScopeNetworkEntity
}

func (st ScopeType) String() string {
	switch st {
	case ScopeUser:
		return "user"
	case ScopeRoom:
		return "room"
	case ScopePlayer:
		return "player"
	case ScopeNetworkEntity:
		return "networkEntity"
	}
	return fmt.Sprintf("ScopeType<%d>", uint8(st))
}

// Scope is the {type, id} pair identifying which object a message targets
type Scope struct {
	Type ScopeType `msgpack:"t" json:"t"`
	ID   ID        `msgpack:"i,omitempty" json:"i,omitempty"`
}

// UserScope returns the scope of a user
func UserScope(id ID) Scope {
	return Scope{Type: ScopeUser, ID: id}
}

// RoomScope returns the scope of a room
func RoomScope(id ID) Scope {
	return Scope{Type: ScopeRoom, ID: id}
}

// PlayerScope returns the scope of a player
func PlayerScope(id ID) Scope {
	return Scope{Type: ScopePlayer, ID: id}
}

// NetworkEntityScope returns the scope of a network entity
func NetworkEntityScope(id ID) Scope {
	return Scope{Type: ScopeNetworkEntity, ID: id}
}

func (s Scope) String() string {
	return fmt.Sprintf("%s<%s>", s.Type, s.ID)
}
