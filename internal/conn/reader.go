package conn

import (
	"time"

	"github.com/gorilla/websocket"
)

// reader owns the blocking read side of one websocket connection. It
// forwards raw frames to msgChan and reports the first fatal error on
// errChan, then exits. A new reader is created for every connection
// attempt.
type reader struct {
	conn    *websocket.Conn
	msgChan chan<- []byte
	errChan chan<- error
	// readWait bounds the silence the connection tolerates; every inbound
	// frame or pong extends the deadline.
	readWait time.Duration
}

func newReader(conn *websocket.Conn, msgChan chan<- []byte, errChan chan<- error, readWait time.Duration) *reader {
	return &reader{
		conn:     conn,
		msgChan:  msgChan,
		errChan:  errChan,
		readWait: readWait,
	}
}

// run reads until the connection dies. The heartbeat contract lives here:
// the pong handler extends the read deadline, so a missed pong surfaces as
// a read timeout and the connection is declared dead.
func (r *reader) run(done <-chan struct{}) {
	r.conn.SetReadDeadline(time.Now().Add(r.readWait))
	r.conn.SetPongHandler(func(string) error {
		return r.conn.SetReadDeadline(time.Now().Add(r.readWait))
	})

	for {
		_, message, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case r.errChan <- err:
			case <-done:
			}
			return
		}
		r.conn.SetReadDeadline(time.Now().Add(r.readWait))

		select {
		case r.msgChan <- message:
		case <-done:
			return
		}
	}
}
