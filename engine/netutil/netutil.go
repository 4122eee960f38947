package netutil

import (
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/rslog"
)

const (
	_RESTART_SERVER_INTERVAL = 3 * time.Second
)

// IsConnectionError check if the error is a connection error (close)
func IsConnectionError(_err interface{}) bool {
	err, ok := _err.(error)
	if !ok {
		return false
	}

	err = errors.Cause(err)
	if err == io.EOF || err == io.ErrUnexpectedEOF || err == ErrPipeClosed {
		return true
	}
	if _, ok := err.(*websocket.CloseError); ok {
		return true
	}

	neterr, ok := err.(net.Error)
	if !ok {
		return false
	}
	if neterr.Timeout() {
		return false
	}

	return true
}

// ServeForever runs the serve function forever, restarting it when it fails or panics
func ServeForever(name string, serve func() error) {
	for {
		err := serveOnce(serve)
		rslog.Errorf("%s failed with error: %v, will restart after %s", name, err, _RESTART_SERVER_INTERVAL)
		time.Sleep(_RESTART_SERVER_INTERVAL)
	}
}

func serveOnce(serve func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			rslog.TraceError("ServeForever: paniced with error %v", r)
			err = errors.Errorf("panic: %v", r)
		}
	}()

	return serve()
}
