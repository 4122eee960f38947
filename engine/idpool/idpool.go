// Package idpool issues collision-free ids shared by every shard of a process group.
//
// A Pool holds two counters, one for network entities and one for everything else
// (users, players, rooms). Allocation is a single atomic add, so shards can mint ids
// independently without locks and without coordinating through the root.
package idpool

import (
	"sync/atomic"

	"github.com/roomsync/roomsync/engine/common"
)

// Pool is the shared counter pair
type Pool struct {
	networkEntities uint64
	others          uint64
}

// New creates a new id pool, the first issued id of each counter is 1
func New() *Pool {
	return &Pool{}
}

// NextNetworkEntityID mints an id for a network entity
func (p *Pool) NextNetworkEntityID() common.ID {
	return common.ID(atomic.AddUint64(&p.networkEntities, 1))
}

// NextID mints an id for a user, player or room
func (p *Pool) NextID() common.ID {
	return common.ID(atomic.AddUint64(&p.others, 1))
}

// Issued returns how many ids of each kind were minted
func (p *Pool) Issued() (networkEntities uint64, others uint64) {
	return atomic.LoadUint64(&p.networkEntities), atomic.LoadUint64(&p.others)
}
