package ws

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket wraps a gorilla connection with deadlines. Data frames may only be
// written from one goroutine; control frames are safe from any goroutine.
type WebSocket struct {
	conn         *websocket.Conn
	readLimit    int64
	writeTimeout time.Duration
	pongWait     time.Duration
}

func NewWebSocket(conn *websocket.Conn, readLimit int64, writeTimeout, pongWait time.Duration) *WebSocket {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WebSocket{
		conn:         conn,
		readLimit:    readLimit,
		writeTimeout: writeTimeout,
		pongWait:     pongWait,
	}
}

func (w *WebSocket) WriteMessage(data []byte) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocket) WritePing() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeTimeout))
}

func (w *WebSocket) WriteClose(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	return w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.writeTimeout))
}

// PingPeriod is how often keepalive pings go out, zero when keepalive is off.
func (w *WebSocket) PingPeriod() time.Duration {
	return w.pongWait * 9 / 10
}

// ReadLoop hands every non-empty frame to onMsg until the peer goes away.
// A normal or going-away close returns nil.
func (w *WebSocket) ReadLoop(onMsg func([]byte)) error {
	if w.readLimit > 0 {
		w.conn.SetReadLimit(w.readLimit)
	}
	if w.pongWait > 0 {
		_ = w.conn.SetReadDeadline(time.Now().Add(w.pongWait))
		w.conn.SetPongHandler(func(string) error {
			return w.conn.SetReadDeadline(time.Now().Add(w.pongWait))
		})
	}
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		}
		if len(data) > 0 {
			onMsg(data)
		}
	}
}

func (w *WebSocket) Close() error {
	return w.conn.Close()
}
