// Package mqttbridge implements discovery.Service against an external
// discovery agent that publishes topology and player events over MQTT.
//
// Topics, for prefix P:
//
//	P/zones                      retained JSON array of discovery.Zone
//	P/events/<kind>              JSON payload of one notification
//	P/players/<uuid>/command     commands published by the gateway
package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/stepherg/sonosgw/internal/discovery"
)

// Command is the body published to P/players/<uuid>/command.
type Command struct {
	Command string `json:"command"`
	Value   any    `json:"value,omitempty"`
}

type Bridge struct {
	client Client
	prefix string
	logger *zap.Logger

	mu        sync.RWMutex
	zones     []discovery.Zone
	listeners map[discovery.EventKind][]discovery.Listener
}

var _ discovery.Service = (*Bridge)(nil)

func New(client Client, prefix string, logger *zap.Logger) *Bridge {
	return &Bridge{
		client:    client,
		prefix:    strings.TrimRight(prefix, "/"),
		logger:    logger,
		listeners: make(map[discovery.EventKind][]discovery.Listener),
	}
}

// Start subscribes to the agent's topology and event topics.
func (b *Bridge) Start() error {
	if err := b.client.Subscribe(b.prefix+"/zones", b.handleZones); err != nil {
		return fmt.Errorf("subscribe zones: %w", err)
	}
	if err := b.client.Subscribe(b.prefix+"/events/+", b.handleEvent); err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	return nil
}

func (b *Bridge) handleZones(_ string, payload []byte) {
	var zones []discovery.Zone
	if err := json.Unmarshal(payload, &zones); err != nil {
		b.logger.Warn("discarding malformed zones message", zap.Error(err))
		return
	}
	b.mu.Lock()
	b.zones = zones
	b.mu.Unlock()
	b.logger.Debug("topology updated", zap.Int("zones", len(zones)))
	b.emit(discovery.TopologyChange, discovery.TopologyChangeEvent(zones))
}

func (b *Bridge) handleEvent(topic string, payload []byte) {
	kind := discovery.EventKind(topic[strings.LastIndex(topic, "/")+1:])
	if !known(kind) {
		b.logger.Debug("ignoring unknown event kind", zap.String("topic", topic))
		return
	}
	if !json.Valid(payload) {
		b.logger.Warn("discarding malformed event", zap.String("kind", string(kind)))
		return
	}
	raw := make(json.RawMessage, len(payload))
	copy(raw, payload)
	b.track(kind, raw)
	b.emit(kind, raw)
}

// track folds player state carried by an event into the cached topology.
func (b *Bridge) track(kind discovery.EventKind, raw json.RawMessage) {
	var apply func(*discovery.PlayerState)
	var uuid string
	switch kind {
	case discovery.VolumeChange:
		var ev discovery.VolumeChangeEvent
		if json.Unmarshal(raw, &ev) != nil {
			return
		}
		uuid, apply = ev.UUID, func(s *discovery.PlayerState) { s.Volume = ev.NewVolume }
	case discovery.MuteChange:
		var ev discovery.MuteChangeEvent
		if json.Unmarshal(raw, &ev) != nil {
			return
		}
		uuid, apply = ev.UUID, func(s *discovery.PlayerState) { s.Mute = ev.NewMute }
	case discovery.TransportState:
		var ev discovery.TransportStateEvent
		if json.Unmarshal(raw, &ev) != nil {
			return
		}
		uuid, apply = ev.UUID, func(s *discovery.PlayerState) { *s = ev.State }
	default:
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.zones {
		z := &b.zones[i]
		if z.Coordinator.UUID == uuid {
			apply(&z.Coordinator.State)
		}
		for j := range z.Members {
			if z.Members[j].UUID == uuid {
				apply(&z.Members[j].State)
			}
		}
	}
}

func known(kind discovery.EventKind) bool {
	for _, k := range discovery.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (b *Bridge) emit(kind discovery.EventKind, payload any) {
	b.mu.RLock()
	fns := append([]discovery.Listener(nil), b.listeners[kind]...)
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(payload)
	}
}

func (b *Bridge) On(kind discovery.EventKind, fn discovery.Listener) {
	b.mu.Lock()
	b.listeners[kind] = append(b.listeners[kind], fn)
	b.mu.Unlock()
}

func (b *Bridge) Zones() []discovery.Zone {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]discovery.Zone(nil), b.zones...)
}

func (b *Bridge) Player(name string) (discovery.Player, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, z := range b.zones {
		for _, m := range z.Members {
			if m.UUID == name || strings.EqualFold(m.RoomName, name) {
				return &player{b: b, uuid: m.UUID, room: m.RoomName}, true
			}
		}
	}
	return nil, false
}

func (b *Bridge) AnyPlayer() (discovery.Player, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.zones) == 0 {
		return nil, discovery.ErrNoPlayers
	}
	c := b.zones[0].Coordinator
	return &player{b: b, uuid: c.UUID, room: c.RoomName}, nil
}

func (b *Bridge) send(ctx context.Context, uuid string, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	topic := fmt.Sprintf("%s/players/%s/command", b.prefix, uuid)
	if err := b.client.Publish(topic, body); err != nil {
		return fmt.Errorf("publish %s: %w", cmd.Command, err)
	}
	return nil
}

type player struct {
	b    *Bridge
	uuid string
	room string
}

func (p *player) UUID() string     { return p.uuid }
func (p *player) RoomName() string { return p.room }

func (p *player) State() discovery.PlayerState {
	p.b.mu.RLock()
	defer p.b.mu.RUnlock()
	for _, z := range p.b.zones {
		for _, m := range z.Members {
			if m.UUID == p.uuid {
				return m.State
			}
		}
	}
	return discovery.PlayerState{}
}

func (p *player) Play(ctx context.Context) error {
	return p.b.send(ctx, p.uuid, Command{Command: "play"})
}

func (p *player) Pause(ctx context.Context) error {
	return p.b.send(ctx, p.uuid, Command{Command: "pause"})
}

func (p *player) Next(ctx context.Context) error {
	return p.b.send(ctx, p.uuid, Command{Command: "next"})
}

func (p *player) Previous(ctx context.Context) error {
	return p.b.send(ctx, p.uuid, Command{Command: "previous"})
}

func (p *player) SetVolume(ctx context.Context, level int) error {
	return p.b.send(ctx, p.uuid, Command{Command: "volume", Value: level})
}

func (p *player) SetMute(ctx context.Context, muted bool) error {
	return p.b.send(ctx, p.uuid, Command{Command: "mute", Value: muted})
}
