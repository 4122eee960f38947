package common

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestIDSet(t *testing.T) {
	s := IDSet{}
	s.Add(3)
	s.Add(1)
	s.Add(2)
	s.Add(1)
	assert.Equal(t, 3, len(s))
	assert.Equal(t, []ID{1, 2, 3}, s.ToList())
	s.Del(2)
	assert.Equal(t, false, s.Contains(2))
	assert.Equal(t, true, s.Contains(3))

	visited := 0
	s.ForEach(func(id ID) bool {
		visited += 1
		return false
	})
	assert.Equal(t, 1, visited)
}

func TestScope(t *testing.T) {
	assert.Equal(t, "room<7>", RoomScope(7).String())
	assert.Equal(t, false, ScopeNone.IsValid())
	assert.Equal(t, true, ScopeNetworkEntity.IsValid())
	assert.Equal(t, false, ScopeType(9).IsValid())
	assert.T(t, ID(0).IsNil())
	assert.T(t, GenConnID() != GenConnID())
}

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	assert.Equal(t, nil, err)
	assert.Equal(t, ID(42), id)
	assert.Equal(t, "42", id.String())

	_, err = ParseID("room")
	assert.T(t, err != nil)
}
