package netutil

import (
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/roomsync/roomsync/engine/rsutils"
	"github.com/xtaci/kcp-go"
)

const (
	_KCP_DATA_SHARDS   = 10
	_KCP_PARITY_SHARDS = 3
)

func setupKCPSession(conn *kcp.UDPSession) {
	conn.SetReadBuffer(consts.KCP_READ_BUFFER_SIZE)
	conn.SetWriteBuffer(consts.KCP_WRITE_BUFFER_SIZE)
	// turbo mode, see https://github.com/skywind3000/kcp/blob/master/README.en.md#protocol-configuration
	conn.SetStreamMode(consts.KCP_SET_STREAM_MODE)
	conn.SetWriteDelay(consts.KCP_SET_WRITE_DELAY)
	conn.SetNoDelay(consts.KCP_NO_DELAY, consts.KCP_INTERNAL_UPDATE_TIMER_INTERVAL, consts.KCP_ENABLE_FAST_RESEND, consts.KCP_DISABLE_CONGESTION_CONTROL)
	conn.SetACKNoDelay(consts.KCP_SET_ACK_NO_DELAY)
}

// ServeKCP accepts KCP sessions on addr and serves each with handler in its own goroutine
func ServeKCP(addr string, handler func(conn Conn)) error {
	kcpListener, err := kcp.ListenWithOptions(addr, nil, _KCP_DATA_SHARDS, _KCP_PARITY_SHARDS)
	if err != nil {
		return err
	}

	rslog.Infof("Listening on KCP: %s ...", addr)

	rsutils.RepeatUntilPanicless(func() {
		for {
			conn, err := kcpListener.AcceptKCP()
			if err != nil {
				rslog.Panic(err)
			}
			rslog.Infof("KCP connection from %s", conn.RemoteAddr())
			setupKCPSession(conn)
			go handler(NewStreamConn(conn))
		}
	})
	return nil
}

// DialKCP connects to a KCP server
func DialKCP(addr string) (Conn, error) {
	conn, err := kcp.DialWithOptions(addr, nil, _KCP_DATA_SHARDS, _KCP_PARITY_SHARDS)
	if err != nil {
		return nil, err
	}
	setupKCPSession(conn)
	return NewStreamConn(conn), nil
}
