// Package interp smooths discrete state snapshots into continuous values on the client.
//
// A Buffer renders one field. Snapshots are pushed as they arrive and Tick advances the
// rendered value once per frame, always one tick behind the newest snapshot. The playback
// speed adapts to the number of buffered snapshots so the buffer drains instead of
// accumulating lag.
package interp

import (
	"github.com/roomsync/roomsync/engine/consts"
)

// Value is implemented by types the buffer can blend
type Value[T any] interface {
	Lerp(to T, t float64) T
}

// Scalar is a blendable float
type Scalar float64

// Lerp interpolates linearly from s to o
func (s Scalar) Lerp(o Scalar, t float64) Scalar {
	return s + (o-s)*Scalar(t)
}

// Config configures buffers
type Config struct {
	// Capacity is the max number of pending snapshots, pushing past it evicts the oldest
	Capacity int
}

// DefaultConfig returns the default buffer config
func DefaultConfig() Config {
	return Config{Capacity: consts.INTERP_BUFFER_CAPACITY}
}

const (
	speedSmoothing   = 0.1
	speedStepPerItem = 0.01
	maxSpeedupItems  = 10
)

// Buffer blends a queue of snapshots of one field
type Buffer[T Value[T]] struct {
	current      T
	from         T
	pending      []T
	capacity     int
	tickDuration float64
	blendTime    float64
	speed        float64
	evicted      int
	setter       func(T)
}

// NewBuffer creates a buffer rendering initial, tickrate is the snapshot rate in Hz
func NewBuffer[T Value[T]](initial T, tickrate float64, cfg Config) *Buffer[T] {
	if cfg.Capacity <= 0 {
		cfg.Capacity = consts.INTERP_BUFFER_CAPACITY
	}
	if tickrate <= 0 {
		tickrate = consts.DEFAULT_ROOM_TICKRATE
	}
	return &Buffer[T]{
		current:      initial,
		from:         initial,
		pending:      make([]T, 0, cfg.Capacity),
		capacity:     cfg.Capacity,
		tickDuration: 1 / tickrate,
		speed:        1,
	}
}

// SetSetter sets the function called with every new rendered value
func (b *Buffer[T]) SetSetter(setter func(T)) {
	b.setter = setter
}

// Bind makes the buffer assign every new rendered value to *field
func (b *Buffer[T]) Bind(field *T) {
	b.setter = func(v T) {
		*field = v
	}
}

// Push appends a snapshot, the oldest pending snapshot is evicted when the buffer is full
func (b *Buffer[T]) Push(v T) {
	if len(b.pending) >= b.capacity {
		copy(b.pending, b.pending[1:])
		b.pending = b.pending[:len(b.pending)-1]
		b.evicted += 1
	}
	b.pending = append(b.pending, v)
}

// Tick advances the rendered value by dt seconds
func (b *Buffer[T]) Tick(dt float64) {
	n := len(b.pending)
	if n == 0 {
		return
	}

	targetSpeed := 1 + float64(clamp(n-2, 0, maxSpeedupItems))*speedStepPerItem
	b.speed += (targetSpeed - b.speed) * speedSmoothing
	b.blendTime += dt * b.speed

	if b.blendTime >= b.tickDuration {
		b.blendTime -= b.tickDuration
		b.current = b.pending[0]
		b.from = b.current
		b.pending[0] = *new(T)
		b.pending = b.pending[1:]
		b.apply()
	}

	if len(b.pending) > 0 {
		t := b.blendTime / b.tickDuration
		if t > 1 {
			t = 1
		}
		b.current = b.from.Lerp(b.pending[0], t)
		b.apply()
	}
}

func (b *Buffer[T]) apply() {
	if b.setter != nil {
		b.setter(b.current)
	}
}

// Value returns the rendered value
func (b *Buffer[T]) Value() T {
	return b.current
}

// Len returns the number of pending snapshots
func (b *Buffer[T]) Len() int {
	return len(b.pending)
}

// Pending returns a copy of the pending snapshots, oldest first
func (b *Buffer[T]) Pending() []T {
	return append([]T(nil), b.pending...)
}

// Speed returns the current playback speed
func (b *Buffer[T]) Speed() float64 {
	return b.speed
}

// Evicted returns how many snapshots were dropped by overflow
func (b *Buffer[T]) Evicted() int {
	return b.evicted
}

// Snap discards pending snapshots and renders v immediately
func (b *Buffer[T]) Snap(v T) {
	b.pending = b.pending[:0]
	b.current = v
	b.from = v
	b.blendTime = 0
	b.apply()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
