package lifecycle

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestSignalFiresOnce(t *testing.T) {
	var s Signal
	var order []int
	s.OnFire(func() { order = append(order, 1) })
	sub := s.OnFire(func() { order = append(order, 2) })
	s.OnFire(func() { order = append(order, 3) })
	sub.Cancel()

	assert.Equal(t, false, s.Fired())
	assert.Equal(t, true, s.Fire())
	assert.Equal(t, false, s.Fire())
	assert.Equal(t, true, s.Fired())
	assert.Equal(t, []int{1, 3}, order)
}

func TestLateListenerRunsImmediately(t *testing.T) {
	var s Signal
	s.Fire()
	called := false
	s.OnFire(func() { called = true })
	assert.T(t, called)
}

func TestListenerAddedWhileFiring(t *testing.T) {
	var s Signal
	calls := 0
	s.OnFire(func() {
		calls += 1
		s.OnFire(func() { calls += 10 })
	})
	s.Fire()
	assert.Equal(t, 11, calls)
}

func TestPanickingListenerDoesNotStopOthers(t *testing.T) {
	var s Signal
	called := false
	s.OnFire(func() { panic("boom") })
	s.OnFire(func() { called = true })
	s.Fire()
	assert.T(t, called)
}
