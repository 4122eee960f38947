package common

import (
	"strconv"

	"github.com/google/uuid"
)

// ID is the identifier of users, players, rooms and network entities
//
// IDs are issued by the shared id pool, so they never collide across shards. Zero is the nil ID.
type ID uint64

// IsNil returns if ID is nil
func (id ID) IsNil() bool {
	return id == 0
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses the decimal form of an ID
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return ID(v), err
}

// ConnID identifies a client connection on the root
type ConnID string

// GenConnID generates a new connection ID
func GenConnID() ConnID {
	return ConnID(uuid.NewString())
}

// IsNil returns if ConnID is nil
func (id ConnID) IsNil() bool {
	return id == ""
}
