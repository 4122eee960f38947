package post

import (
	"sync"
	"testing"

	"github.com/bmizerany/assert"
)

func TestPost(t *testing.T) {
	var a int
	Post(func() {
		a = 1
	})
	Tick()
	if a != 1 {
		t.Errorf("t should be 1")
	}
}

func TestQueueFromGoroutines(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Post(func() {})
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, q.Len())

	var order []int
	q.Post(func() {
		order = append(order, 1)
		q.Post(func() { order = append(order, 2) })
	})
	assert.Equal(t, 12, q.Tick())
	assert.Equal(t, []int{1, 2}, order)
	assert.Equal(t, 0, q.Len())
}
