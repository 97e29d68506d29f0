// Package discovery defines the contract the gateway consumes from a
// home-audio discovery backend: zone/player lookup, player commands and
// state-change notifications.
package discovery

import (
	"context"
	"errors"
)

// EventKind names one of the notifications a Service emits.
type EventKind string

const (
	TransportState EventKind = "transport-state"
	TopologyChange EventKind = "topology-change"
	VolumeChange   EventKind = "volume-change"
	MuteChange     EventKind = "mute-change"
)

// Kinds lists every EventKind in subscription order.
var Kinds = []EventKind{TransportState, TopologyChange, VolumeChange, MuteChange}

// ErrNoPlayers is returned by AnyPlayer when nothing has been discovered.
var ErrNoPlayers = errors.New("no players discovered")

// Listener receives the payload of a notification.
type Listener func(payload any)

// Service is the discovery backend.
type Service interface {
	// Player resolves a room name (case-insensitive) or player UUID.
	Player(name string) (Player, bool)
	// AnyPlayer returns a zone coordinator, for device-agnostic actions.
	AnyPlayer() (Player, error)
	// Zones returns the current topology. Empty means nothing discovered yet.
	Zones() []Zone
	// On registers fn for notifications of kind.
	On(kind EventKind, fn Listener)
}

// Player is a handle to one discovered device. Handles are only held for the
// duration of a request or notification.
type Player interface {
	UUID() string
	RoomName() string
	State() PlayerState

	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SetVolume(ctx context.Context, level int) error
	SetMute(ctx context.Context, muted bool) error
}

// Playback states reported in PlayerState.PlaybackState.
const (
	StatePlaying = "PLAYING"
	StatePaused  = "PAUSED_PLAYBACK"
	StateStopped = "STOPPED"
)

type PlayerState struct {
	PlaybackState string `json:"playbackState" yaml:"playbackState"`
	Volume        int    `json:"volume" yaml:"volume"`
	Mute          bool   `json:"mute" yaml:"mute"`
	TrackNo       int    `json:"trackNo" yaml:"trackNo"`
}

type Member struct {
	UUID     string      `json:"uuid"`
	RoomName string      `json:"roomName"`
	State    PlayerState `json:"state"`
}

type Zone struct {
	UUID        string   `json:"uuid"`
	Coordinator Member   `json:"coordinator"`
	Members     []Member `json:"members"`
}

// Notification payloads.

type TransportStateEvent struct {
	UUID     string      `json:"uuid"`
	RoomName string      `json:"roomName"`
	State    PlayerState `json:"state"`
}

type TopologyChangeEvent []Zone

type VolumeChangeEvent struct {
	UUID           string `json:"uuid"`
	RoomName       string `json:"roomName"`
	PreviousVolume int    `json:"previousVolume"`
	NewVolume      int    `json:"newVolume"`
}

type MuteChangeEvent struct {
	UUID         string `json:"uuid"`
	RoomName     string `json:"roomName"`
	PreviousMute bool   `json:"previousMute"`
	NewMute      bool   `json:"newMute"`
}
