package discovery

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ZoneSpec declares one zone of the in-memory backend. The first member is
// the coordinator.
type ZoneSpec struct {
	Members []MemberSpec `yaml:"members"`
}

type MemberSpec struct {
	UUID        string `yaml:"uuid"`
	RoomName    string `yaml:"roomName"`
	PlayerState `yaml:",inline"`
}

type zonesFile struct {
	Zones []ZoneSpec `yaml:"zones"`
}

// LoadZonesFile reads a YAML document of the form
//
//	zones:
//	  - members:
//	      - uuid: RINCON_000E58A0001
//	        roomName: Kitchen
//	        volume: 20
//
// Unknown fields are rejected.
func LoadZonesFile(path string) ([]ZoneSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var f zonesFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode zones yaml: %w", err)
	}
	return f.Zones, nil
}

// Memory is a Service whose topology is declared up front. Player commands
// change in-memory state and emit the matching notification.
type Memory struct {
	mu        sync.RWMutex
	zones     [][]*memPlayer
	listeners map[EventKind][]Listener
}

type memPlayer struct {
	m     *Memory
	uuid  string
	room  string
	state PlayerState
}

var _ Service = (*Memory)(nil)

func NewMemory(specs []ZoneSpec) (*Memory, error) {
	m := &Memory{listeners: make(map[EventKind][]Listener)}
	zones, err := m.build(specs)
	if err != nil {
		return nil, err
	}
	m.zones = zones
	return m, nil
}

func (m *Memory) build(specs []ZoneSpec) ([][]*memPlayer, error) {
	seen := make(map[string]struct{})
	zones := make([][]*memPlayer, 0, len(specs))
	for i, zs := range specs {
		if len(zs.Members) == 0 {
			return nil, fmt.Errorf("zone %d has no members", i)
		}
		members := make([]*memPlayer, 0, len(zs.Members))
		for _, ms := range zs.Members {
			if ms.UUID == "" || ms.RoomName == "" {
				return nil, fmt.Errorf("zone %d: member needs uuid and roomName", i)
			}
			if _, dup := seen[ms.UUID]; dup {
				return nil, fmt.Errorf("duplicate player uuid %s", ms.UUID)
			}
			seen[ms.UUID] = struct{}{}
			st := ms.PlayerState
			if st.PlaybackState == "" {
				st.PlaybackState = StateStopped
			}
			members = append(members, &memPlayer{m: m, uuid: ms.UUID, room: ms.RoomName, state: st})
		}
		zones = append(zones, members)
	}
	return zones, nil
}

// SetZones replaces the topology and emits topology-change.
func (m *Memory) SetZones(specs []ZoneSpec) error {
	zones, err := m.build(specs)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.zones = zones
	m.mu.Unlock()
	m.emit(TopologyChange, TopologyChangeEvent(m.Zones()))
	return nil
}

func (m *Memory) Player(name string) (Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, zone := range m.zones {
		for _, p := range zone {
			if p.uuid == name || strings.EqualFold(p.room, name) {
				return p, true
			}
		}
	}
	return nil, false
}

func (m *Memory) AnyPlayer() (Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.zones) == 0 {
		return nil, ErrNoPlayers
	}
	return m.zones[0][0], nil
}

func (m *Memory) Zones() []Zone {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Zone, 0, len(m.zones))
	for _, zone := range m.zones {
		z := Zone{UUID: zone[0].uuid, Coordinator: zone[0].member()}
		for _, p := range zone {
			z.Members = append(z.Members, p.member())
		}
		out = append(out, z)
	}
	return out
}

func (m *Memory) On(kind EventKind, fn Listener) {
	m.mu.Lock()
	m.listeners[kind] = append(m.listeners[kind], fn)
	m.mu.Unlock()
}

// emit calls listeners outside the lock so they may query the backend.
func (m *Memory) emit(kind EventKind, payload any) {
	m.mu.RLock()
	fns := append([]Listener(nil), m.listeners[kind]...)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(payload)
	}
}

// member must be called with m.mu held.
func (p *memPlayer) member() Member {
	return Member{UUID: p.uuid, RoomName: p.room, State: p.state}
}

func (p *memPlayer) UUID() string     { return p.uuid }
func (p *memPlayer) RoomName() string { return p.room }

func (p *memPlayer) State() PlayerState {
	p.m.mu.RLock()
	defer p.m.mu.RUnlock()
	return p.state
}

func (p *memPlayer) Play(ctx context.Context) error  { return p.transport(ctx, StatePlaying, 0) }
func (p *memPlayer) Pause(ctx context.Context) error { return p.transport(ctx, StatePaused, 0) }
func (p *memPlayer) Next(ctx context.Context) error  { return p.transport(ctx, "", 1) }
func (p *memPlayer) Previous(ctx context.Context) error {
	return p.transport(ctx, "", -1)
}

func (p *memPlayer) transport(ctx context.Context, playback string, step int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.m.mu.Lock()
	prev := p.state
	if playback != "" {
		p.state.PlaybackState = playback
	}
	p.state.TrackNo += step
	if p.state.TrackNo < 1 && step != 0 {
		p.state.TrackNo = 1
	}
	cur := p.state
	p.m.mu.Unlock()

	if cur != prev {
		p.m.emit(TransportState, TransportStateEvent{UUID: p.uuid, RoomName: p.room, State: cur})
	}
	return nil
}

func (p *memPlayer) SetVolume(ctx context.Context, level int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	level = clamp(level, 0, 100)
	p.m.mu.Lock()
	prev := p.state.Volume
	p.state.Volume = level
	p.m.mu.Unlock()

	if prev != level {
		p.m.emit(VolumeChange, VolumeChangeEvent{UUID: p.uuid, RoomName: p.room, PreviousVolume: prev, NewVolume: level})
	}
	return nil
}

func (p *memPlayer) SetMute(ctx context.Context, muted bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.m.mu.Lock()
	prev := p.state.Mute
	p.state.Mute = muted
	p.m.mu.Unlock()

	if prev != muted {
		p.m.emit(MuteChange, MuteChangeEvent{UUID: p.uuid, RoomName: p.room, PreviousMute: prev, NewMute: muted})
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
