package rsutils

import (
	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/rslog"
)

// RunPanicless calls a function panic-freely
func RunPanicless(f func()) (paniced bool) {
	defer func() {
		err := recover()
		if err != nil {
			rslog.TraceError("%p panic: %s", f, err)
			paniced = true
		}
	}()

	f()
	return
}

// RepeatUntilPanicless runs the function repeatly until there is no panic
func RepeatUntilPanicless(f func()) {
	for !RunPanicless(f) {
	}
}

// CatchPanic calls a function and converts a panic into an error
func CatchPanic(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			rslog.TraceError("%p panic: %v", f, r)
			if e, ok := r.(error); ok {
				err = errors.Wrap(e, "panic")
			} else {
				err = errors.Errorf("panic: %v", r)
			}
		}
	}()

	f()
	return
}
