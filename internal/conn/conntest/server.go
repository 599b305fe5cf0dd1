// Package conntest provides a mock exchange websocket server for tests.
package conntest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejoacosta74/paradex-api/pkg/paradex"
)

// Server is a mock exchange websocket endpoint. It speaks just enough of
// the JSON-RPC framing to exercise the connection manager: it acks auth and
// subscribe requests, records everything it receives, and can push data
// frames or drop connections on demand.
type Server struct {
	HTTP *httptest.Server
	URL  string

	// RejectAuth makes the server answer auth requests with an error ack.
	RejectAuth bool

	// SwallowPings makes the server ignore pings instead of answering
	// with pongs, simulating a peer that stopped responding.
	SwallowPings bool

	mu          sync.Mutex
	writeMu     sync.Mutex // gorilla allows one concurrent writer per conn
	conns       []*websocket.Conn
	received    []paradex.Request
	connCount   int
	connSignal  chan struct{}
	upgrader    websocket.Upgrader
	authedConns map[*websocket.Conn]bool
}

// NewServer starts a mock server. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		connSignal:  make(chan struct{}, 16),
		authedConns: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.HTTP = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = "ws" + s.HTTP.URL[4:]
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	swallow := s.SwallowPings
	s.mu.Unlock()
	conn.SetPingHandler(func(appData string) error {
		if swallow {
			return nil
		}
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.connCount++
	s.mu.Unlock()

	select {
	case s.connSignal <- struct{}{}:
	default:
	}

	go s.read(conn)
}

func (s *Server) read(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req paradex.Request
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}

		s.mu.Lock()
		s.received = append(s.received, req)
		reject := s.RejectAuth
		s.mu.Unlock()

		resp := paradex.Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{}`)}
		if req.Method == paradex.MethodAuth {
			if reject {
				resp.Result = nil
				resp.Error = &paradex.ResponseError{Code: -32600, Message: "invalid bearer token"}
			} else {
				s.mu.Lock()
				s.authedConns[conn] = true
				s.mu.Unlock()
			}
		}
		s.writeMu.Lock()
		err = conn.WriteJSON(resp)
		s.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// Push sends a data frame for a channel to every open connection.
func (s *Server) Push(channel string, data json.RawMessage) {
	frame := paradex.Response{
		JSONRPC: "2.0",
		Method:  paradex.MethodSubscription,
		Params:  &paradex.DataParams{Channel: channel, Data: data},
	}
	s.mu.Lock()
	conns := make([]*websocket.Conn, len(s.conns))
	copy(conns, s.conns)
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, conn := range conns {
		conn.WriteJSON(frame)
	}
}

// DropConnections closes every open connection without a close handshake,
// simulating a network failure.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

// WaitForConnection blocks until a new connection is established.
func (s *Server) WaitForConnection() <-chan struct{} {
	return s.connSignal
}

// ConnCount returns the number of connections accepted so far.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connCount
}

// Received returns a copy of all decoded requests in arrival order.
func (s *Server) Received() []paradex.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]paradex.Request, len(s.received))
	copy(out, s.received)
	return out
}

// ReceivedByMethod filters received requests by method.
func (s *Server) ReceivedByMethod(method string) []paradex.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []paradex.Request
	for _, req := range s.received {
		if req.Method == method {
			out = append(out, req)
		}
	}
	return out
}

// Authed reports whether any connection has completed authentication.
func (s *Server) Authed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ok := range s.authedConns {
		if ok {
			return true
		}
	}
	return false
}

// Close shuts the server down and drops all connections.
func (s *Server) Close() {
	s.DropConnections()
	s.HTTP.Close()
}
