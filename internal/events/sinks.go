package events

import (
	"sync"

	"github.com/stepherg/sonosgw/internal/ws"
)

// Sink is a connected push-socket client.
type Sink struct {
	Socket ws.Socket
	Addr   string
}

// SinkStore tracks connected sockets by id. Entries are added on connect and
// removed by the same socket's disconnect.
type SinkStore struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

func NewSinkStore() *SinkStore {
	return &SinkStore{sinks: make(map[string]Sink)}
}

func (s *SinkStore) Add(id string, sink Sink) {
	s.mu.Lock()
	s.sinks[id] = sink
	s.mu.Unlock()
}

func (s *SinkStore) Remove(id string) {
	s.mu.Lock()
	delete(s.sinks, id)
	s.mu.Unlock()
}

func (s *SinkStore) Get(id string) (Sink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sink, ok := s.sinks[id]
	return sink, ok
}

func (s *SinkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sinks)
}
