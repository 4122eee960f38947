package dispatcher

import (
	"fmt"
	"time"

	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/netutil"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/router"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
)

// ClientProxy is a client connection managed by the root
type ClientProxy struct {
	connID      common.ConnID
	conn        netutil.Conn
	router      *router.Router
	userID      common.ID
	authing     bool
	connectedAt time.Time
	sendQueue   chan []byte
	// closed is set by the root loop, the queue is closed with it
	closed  bool
	closing xnsyncutil.AtomicBool
}

func newClientProxy(d *Dispatcher, conn netutil.Conn) *ClientProxy {
	cp := &ClientProxy{
		connID:      common.GenConnID(),
		conn:        conn,
		connectedAt: time.Now(),
		sendQueue:   make(chan []byte, consts.CLIENT_PROXY_SEND_QUEUE_SIZE),
	}
	cp.router = router.New(cp.String(), d.packer, cp.sendEnvelope(d.packer), d.root)
	cp.router.SetUnhandled(d.routeEvent(cp))
	return cp
}

func (cp *ClientProxy) String() string {
	return fmt.Sprintf("ClientProxy<%s@%s>", cp.connID, cp.conn.RemoteAddr())
}

// ConnID returns the id of the connection
func (cp *ClientProxy) ConnID() common.ConnID {
	return cp.connID
}

// UserID returns the authenticated user, nil before authentication completes
func (cp *ClientProxy) UserID() common.ID {
	if cp.authing {
		return 0
	}
	return cp.userID
}

func (cp *ClientProxy) sendEnvelope(packer netutil.MsgPacker) router.SendFunc {
	return func(env *proto.Envelope) error {
		data, err := env.Encode(packer)
		if err != nil {
			return err
		}
		cp.send(data)
		return nil
	}
}

// send queues data, it must be called from the root loop
func (cp *ClientProxy) send(data []byte) {
	if cp.closed {
		return
	}
	select {
	case cp.sendQueue <- data:
	default:
		rslog.Warnf("%s: send queue is full, disconnecting", cp)
		cp.Close()
	}
}

// Close closes the connection, the root cleans up when the reader quits
func (cp *ClientProxy) Close() {
	if cp.closing.Load() {
		return
	}
	cp.closing.Store(true)
	cp.conn.Close()
}

func (cp *ClientProxy) lastHeartbeat() time.Time {
	hb := cp.router.Stats().LastHeartbeat
	if hb.Before(cp.connectedAt) {
		return cp.connectedAt
	}
	return hb
}

func (cp *ClientProxy) writeRoutine() {
	defer cp.conn.Close()
	for data := range cp.sendQueue {
		if err := cp.conn.WriteMessage(data); err != nil {
			if !netutil.IsConnectionError(err) {
				rslog.Errorf("%s: write failed: %v", cp, err)
			}
			cp.drain()
			return
		}
		if len(cp.sendQueue) == 0 {
			if err := cp.conn.Flush(); err != nil {
				cp.drain()
				return
			}
		}
	}
}

// drain consumes the queue until the root closes it, so the root never blocks on a dead writer
func (cp *ClientProxy) drain() {
	cp.conn.Close()
	for range cp.sendQueue {
	}
}

func (cp *ClientProxy) readRoutine(d *Dispatcher) {
	defer func() {
		d.queue.Push(&proxyClosed{cp})
	}()
	for {
		data, err := cp.conn.ReadMessage()
		if err != nil {
			if netutil.IsConnectionError(err) {
				rslog.Debugf("%s disconnected", cp)
			} else {
				rslog.Warnf("%s: read failed: %v", cp, err)
			}
			return
		}
		d.queue.Push(&proxyMessage{cp, data})
	}
}
