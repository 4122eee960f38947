package netutil

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roomsync/roomsync/engine/rslog"
)

const (
	_WEBSOCKET_WRITE_WAIT  = 10 * time.Second
	_WEBSOCKET_BUFFER_SIZE = 16384
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  _WEBSOCKET_BUFFER_SIZE,
	WriteBufferSize: _WEBSOCKET_BUFFER_SIZE,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConn is a Conn over a websocket, every message is one binary frame
type WebSocketConn struct {
	ws *websocket.Conn
}

// NewWebSocketConn wraps a websocket connection
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

// ReadMessage reads one frame
func (wc *WebSocketConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := wc.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.BinaryMessage || mt == websocket.TextMessage {
			return data, nil
		}
	}
}

// WriteMessage writes one binary frame
func (wc *WebSocketConn) WriteMessage(data []byte) error {
	wc.ws.SetWriteDeadline(time.Now().Add(_WEBSOCKET_WRITE_WAIT))
	return wc.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Flush does nothing, frames are written immediately
func (wc *WebSocketConn) Flush() error {
	return nil
}

// Close sends a close frame and closes the connection
func (wc *WebSocketConn) Close() error {
	_ = wc.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return wc.ws.Close()
}

// RemoteAddr returns the remote address
func (wc *WebSocketConn) RemoteAddr() net.Addr {
	return wc.ws.RemoteAddr()
}

// WebSocketHandler upgrades http requests to websockets and serves them with handler
func WebSocketHandler(handler func(conn Conn)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			rslog.Warnf("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
			return
		}
		rslog.Debugf("WebSocket Connection: %s", ws.RemoteAddr())
		handler(NewWebSocketConn(ws))
	})
}

// DialWebSocket connects to a websocket url like ws://host:port/ws
func DialWebSocket(url string) (Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketConn(ws), nil
}
