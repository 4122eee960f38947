// Package registry keeps the id -> object maps of users, players, rooms and network entities.
//
// An entry lives exactly as long as its object: the registry subscribes to the object's
// termination signal on insertion and drops the entry when it fires, so callers never remove
// entries themselves and a destroyed object is never served.
package registry

import (
	"sort"

	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/lifecycle"
	"github.com/roomsync/roomsync/engine/rslog"
)

// Object is the constraint of registered objects
type Object interface {
	comparable
	ID() common.ID
	Terminated() *lifecycle.Signal
}

// Registry maps ids of one namespace to live objects
type Registry[T Object] struct {
	name    string
	entries map[common.ID]T
}

// New creates a registry, name is used in logs only
func New[T Object](name string) *Registry[T] {
	return &Registry[T]{
		name:    name,
		entries: map[common.ID]T{},
	}
}

func (r *Registry[T]) String() string {
	return "Registry<" + r.name + ">"
}

// Add registers the object, adding an id that is already present is a no-op
func (r *Registry[T]) Add(obj T) {
	id := obj.ID()
	if id.IsNil() {
		rslog.Panicf("%s.Add: object %v has no id", r, obj)
	}
	if _, ok := r.entries[id]; ok {
		return
	}
	if obj.Terminated().Fired() {
		rslog.Warnf("%s.Add: %v is already terminated", r, obj)
		return
	}

	obj.Terminated().OnFire(func() {
		if cur, ok := r.entries[id]; ok && cur == obj {
			delete(r.entries, id)
		}
	})
	r.entries[id] = obj
}

// Get returns the object of id, ok is false if not found
func (r *Registry[T]) Get(id common.ID) (obj T, ok bool) {
	obj, ok = r.entries[id]
	return
}

// Has checks if id is registered
func (r *Registry[T]) Has(id common.ID) bool {
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of registered objects
func (r *Registry[T]) Len() int {
	return len(r.entries)
}

// IDs returns the sorted registered ids
func (r *Registry[T]) IDs() []common.ID {
	ids := make([]common.ID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}

// ForEach iterates a snapshot of the registry in id order, objects terminated during the
// iteration are skipped
func (r *Registry[T]) ForEach(f func(obj T)) {
	for _, id := range r.IDs() {
		if obj, ok := r.entries[id]; ok {
			f(obj)
		}
	}
}
