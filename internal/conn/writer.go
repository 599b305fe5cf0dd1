package conn

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writer serializes all writes to one websocket connection: outbound JSON
// frames, heartbeat pings and the closing handshake. gorilla/websocket
// allows only one concurrent writer, so everything funnels through the
// mutex here.
type writer struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func newWriter(conn *websocket.Conn, writeTimeout time.Duration) *writer {
	return &writer{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// writeJSON marshals and sends one frame under the write deadline.
func (w *writer) writeJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return &TransportError{Err: err}
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

// ping sends a heartbeat control frame.
func (w *writer) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	deadline := time.Now().Add(w.writeTimeout)
	if err := w.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

// close sends a close frame to initiate a clean websocket shutdown, then
// closes the underlying connection.
func (w *writer) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	deadline := time.Now().Add(w.writeTimeout)
	w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	w.conn.Close()
}
