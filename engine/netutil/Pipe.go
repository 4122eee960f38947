package netutil

import (
	"net"
	"sync"

	"github.com/pkg/errors"
)

// ErrPipeClosed is returned by operations on a closed pipe
var ErrPipeClosed = errors.New("pipe closed")

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

type pipeState struct {
	closeOnce sync.Once
	closed    chan struct{}
}

// PipeConn is one end of an in-memory message pipe
type PipeConn struct {
	name  string
	in    chan []byte
	out   chan []byte
	state *pipeState
}

// NewPipe creates a connected pair of in-memory Conns, messages are copied on write
func NewPipe(bufferSize int) (*PipeConn, *PipeConn) {
	a2b := make(chan []byte, bufferSize)
	b2a := make(chan []byte, bufferSize)
	state := &pipeState{closed: make(chan struct{})}
	return &PipeConn{name: "pipe-a", in: b2a, out: a2b, state: state},
		&PipeConn{name: "pipe-b", in: a2b, out: b2a, state: state}
}

// ReadMessage blocks until a message arrives or the pipe is closed
func (pc *PipeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-pc.in:
		return data, nil
	case <-pc.state.closed:
		// drain what was written before closing
		select {
		case data := <-pc.in:
			return data, nil
		default:
			return nil, ErrPipeClosed
		}
	}
}

// WriteMessage sends a copy of data to the other end
func (pc *PipeConn) WriteMessage(data []byte) error {
	cp := append([]byte(nil), data...)
	select {
	case <-pc.state.closed:
		return ErrPipeClosed
	default:
	}
	select {
	case pc.out <- cp:
		return nil
	case <-pc.state.closed:
		return ErrPipeClosed
	}
}

// Flush does nothing
func (pc *PipeConn) Flush() error {
	return nil
}

// Close closes both ends
func (pc *PipeConn) Close() error {
	pc.state.closeOnce.Do(func() {
		close(pc.state.closed)
	})
	return nil
}

// RemoteAddr returns a fake address
func (pc *PipeConn) RemoteAddr() net.Addr {
	return pipeAddr(pc.name)
}
