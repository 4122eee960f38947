package registry

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/lifecycle"
)

type testObject struct {
	id         common.ID
	terminated lifecycle.Signal
}

func (o *testObject) ID() common.ID                  { return o.id }
func (o *testObject) Terminated() *lifecycle.Signal { return &o.terminated }

func TestAddIsIdempotent(t *testing.T) {
	r := New[*testObject]("test")
	a := &testObject{id: 1}
	other := &testObject{id: 1}
	r.Add(a)
	r.Add(a)
	r.Add(other)
	assert.Equal(t, 1, r.Len())
	got, ok := r.Get(1)
	assert.T(t, ok)
	assert.Equal(t, a, got)

	// the ignored duplicate does not own the entry
	other.Terminated().Fire()
	assert.T(t, r.Has(1))
}

func TestHasBetweenAddAndTermination(t *testing.T) {
	r := New[*testObject]("test")
	objs := []*testObject{{id: 1}, {id: 2}, {id: 3}}

	for _, o := range objs {
		assert.Equal(t, false, r.Has(o.id))
		r.Add(o)
		assert.Equal(t, true, r.Has(o.id))
	}

	objs[1].Terminated().Fire()
	assert.Equal(t, true, r.Has(1))
	assert.Equal(t, false, r.Has(2))
	assert.Equal(t, true, r.Has(3))
	_, ok := r.Get(2)
	assert.Equal(t, false, ok)

	// re-adding a terminated object is refused
	r.Add(objs[1])
	assert.Equal(t, false, r.Has(2))

	// the id can be reused by a new live object
	r.Add(&testObject{id: 2})
	assert.Equal(t, true, r.Has(2))
	assert.Equal(t, []common.ID{1, 2, 3}, r.IDs())
}

func TestForEachSkipsTerminated(t *testing.T) {
	r := New[*testObject]("test")
	a, b := &testObject{id: 1}, &testObject{id: 2}
	r.Add(a)
	r.Add(b)

	var visited []common.ID
	r.ForEach(func(o *testObject) {
		visited = append(visited, o.id)
		if o == a {
			b.Terminated().Fire()
		}
	})
	assert.Equal(t, []common.ID{1}, visited)
	assert.Equal(t, 1, r.Len())
}

func TestAddNilIDPanics(t *testing.T) {
	r := New[*testObject]("test")
	defer func() {
		assert.T(t, recover() != nil)
	}()
	r.Add(&testObject{})
}
