// Package ws is the push-socket server: clients connect over WebSocket and
// receive every frame emitted on any channel.
package ws

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stepherg/sonosgw/internal/metrics"
)

// Socket is one connected client as seen by connection listeners.
type Socket interface {
	ID() string
	RemoteAddr() string
	// OnDisconnect registers fn to run once when the socket closes.
	OnDisconnect(fn func())
}

// Frame is the wire format of an emitted message.
type Frame struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// Keepalive: a socket silent past pongWait is closed; pings go out every pingPeriod.
const (
	pongWait   = 75 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// Server upgrades HTTP requests to WebSocket connections.
type Server struct {
	Upgrader    websocket.Upgrader
	SendBufSize int

	logger *zap.Logger

	mu        sync.RWMutex
	conns     map[string]*Conn
	listeners []func(Socket)
}

func NewServer(logger *zap.Logger) *Server {
	return &Server{
		Upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		SendBufSize: 64,
		logger:      logger,
		conns:       make(map[string]*Conn),
	}
}

// OnConnection registers fn to run for each new socket before it starts
// receiving frames.
func (s *Server) OnConnection(fn func(Socket)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Emit sends body on channel to every connected socket. A socket whose send
// buffer is full misses the frame.
func (s *Server) Emit(channel, body string) {
	frame, err := json.Marshal(Frame{Event: channel, Data: body})
	if err != nil {
		s.logger.Error("marshal frame", zap.Error(err))
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conns {
		select {
		case c.send <- frame:
		default:
			s.logger.Warn("dropping frame for slow socket", zap.String("id", c.id), zap.String("event", channel))
		}
	}
}

// Count returns the number of open sockets.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wc, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	bufSize := s.SendBufSize
	if bufSize <= 0 {
		bufSize = 64
	}
	c := &Conn{
		id:         uuid.NewString(),
		remoteAddr: r.RemoteAddr,
		conn:       wc,
		send:       make(chan []byte, bufSize),
		server:     s,
	}

	s.mu.Lock()
	s.conns[c.id] = c
	listeners := append([]func(Socket){}, s.listeners...)
	s.mu.Unlock()
	metrics.SocketClients.Inc()

	for _, fn := range listeners {
		fn(c)
	}
	go c.run()
}

func (s *Server) remove(c *Conn) {
	s.mu.Lock()
	_, ok := s.conns[c.id]
	delete(s.conns, c.id)
	s.mu.Unlock()
	if ok {
		metrics.SocketClients.Dec()
	}
}

// Conn is a connected socket.
type Conn struct {
	id         string
	remoteAddr string
	conn       *websocket.Conn
	send       chan []byte
	server     *Server

	mu           sync.Mutex
	onDisconnect []func()
}

func (c *Conn) ID() string         { return c.id }
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

func (c *Conn) OnDisconnect(fn func()) {
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, fn)
	c.mu.Unlock()
}

func (c *Conn) run() {
	done := make(chan struct{})
	go c.writePump(done)

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// Inbound frames carry nothing for us; reading drives ping/pong and close detection.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	c.server.remove(c)
	_ = c.conn.Close()

	c.mu.Lock()
	fns := c.onDisconnect
	c.onDisconnect = nil
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Conn) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(messageType, data)
	if err == nil {
		return nil
	}
	var nerr net.Error
	switch {
	case errors.As(err, &nerr) && nerr.Timeout(), errors.Is(err, os.ErrDeadlineExceeded):
		c.server.logger.Warn("write deadline exceeded", zap.String("id", c.id), zap.Error(err))
	default:
		c.server.logger.Debug("write error", zap.String("id", c.id), zap.Error(err))
	}
	return err
}
