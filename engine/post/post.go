// Package post queues callbacks from any goroutine to run on the goroutine that owns the queue.
package post

import (
	"sync"

	"github.com/roomsync/roomsync/engine/rsutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

// Queue is a queue of posted callbacks drained by its owner
type Queue struct {
	lock      sync.Mutex
	callbacks []PostCallback
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{}
}

// Post queues a callback, it may be called from any goroutine
func (q *Queue) Post(f PostCallback) {
	q.lock.Lock()
	q.callbacks = append(q.callbacks, f)
	q.lock.Unlock()
}

// Len returns the number of queued callbacks
func (q *Queue) Len() int {
	q.lock.Lock()
	n := len(q.callbacks)
	q.lock.Unlock()
	return n
}

// Tick runs the posted callbacks until the queue is empty, callbacks posted meanwhile included.
// Returns how many callbacks were run.
func (q *Queue) Tick() int {
	n := 0
	for {
		q.lock.Lock()
		if len(q.callbacks) == 0 {
			q.lock.Unlock()
			return n
		}
		// switch callbacks in locked section
		callbacks := q.callbacks
		q.callbacks = make([]PostCallback, 0, len(callbacks))
		q.lock.Unlock()

		for _, f := range callbacks {
			rsutils.RunPanicless(f)
		}
		n += len(callbacks)
	}
}

var defaultQueue = NewQueue()

// Post a callback to the default queue, drained by the main routine
func Post(f PostCallback) {
	defaultQueue.Post(f)
}

// Tick runs all callbacks posted to the default queue
func Tick() {
	defaultQueue.Tick()
}
