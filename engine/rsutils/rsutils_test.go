package rsutils

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

func TestRunPanicless(t *testing.T) {
	assert.Equal(t, true, RunPanicless(func() { panic(1) }))
	assert.Equal(t, false, RunPanicless(func() {}))

	n := 0
	RepeatUntilPanicless(func() {
		n += 1
		if n < 3 {
			panic("again")
		}
	})
	assert.Equal(t, 3, n)
}

func TestCatchPanic(t *testing.T) {
	assert.Equal(t, nil, CatchPanic(func() {}))

	sentinel := errors.New("sentinel")
	err := CatchPanic(func() { panic(sentinel) })
	assert.Equal(t, sentinel, errors.Cause(err))

	err = CatchPanic(func() { panic("text") })
	assert.Equal(t, "panic: text", err.Error())
}
