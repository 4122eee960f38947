package netutil

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/consts"
	"github.com/xiaonanln/netconnutil"
)

// Conn is a message framed client connection
//
// ReadMessage is called by one reader goroutine and WriteMessage by one writer goroutine.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Flush() error
	Close() error
	RemoteAddr() net.Addr
}

// Connection is a flushable stream connection
type Connection interface {
	netconnutil.FlushableConn
}

// NetConn makes a net.Conn flushable
type NetConn struct {
	net.Conn
}

// Flush does nothing, writes are not buffered
func (n NetConn) Flush() error {
	return nil
}

const _SIZE_FIELD_SIZE = 4

var errPacketTooLarge = errors.New("packet too large")

// StreamConn frames messages over a stream connection with a 4-byte little endian size prefix
type StreamConn struct {
	conn       Connection
	readHeader [_SIZE_FIELD_SIZE]byte
	writeLock  sync.Mutex
}

// NewStreamConn wraps a raw stream connection with buffering and message framing
func NewStreamConn(rawConn net.Conn) *StreamConn {
	rawConn = netconnutil.NewNoTempErrorConn(rawConn)
	var conn Connection = NetConn{rawConn}
	conn = netconnutil.NewBufferedConn(conn, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE)
	return &StreamConn{conn: conn}
}

// ReadMessage reads one framed message
func (sc *StreamConn) ReadMessage() ([]byte, error) {
	if _, err := io.ReadFull(sc.conn, sc.readHeader[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(sc.readHeader[:])
	if size > consts.MAX_PACKET_SIZE {
		return nil, errors.Wrapf(errPacketTooLarge, "%d bytes", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(sc.conn, data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteMessage writes one framed message, call Flush to send buffered data
func (sc *StreamConn) WriteMessage(data []byte) error {
	if len(data) > consts.MAX_PACKET_SIZE {
		return errors.Wrapf(errPacketTooLarge, "%d bytes", len(data))
	}
	var header [_SIZE_FIELD_SIZE]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(data)))

	sc.writeLock.Lock()
	defer sc.writeLock.Unlock()
	if _, err := sc.conn.Write(header[:]); err != nil {
		return err
	}
	_, err := sc.conn.Write(data)
	return err
}

// Flush flushes buffered writes
func (sc *StreamConn) Flush() error {
	sc.writeLock.Lock()
	defer sc.writeLock.Unlock()
	return sc.conn.Flush()
}

// Close closes the connection
func (sc *StreamConn) Close() error {
	return sc.conn.Close()
}

// RemoteAddr returns the remote address
func (sc *StreamConn) RemoteAddr() net.Addr {
	return sc.conn.RemoteAddr()
}
