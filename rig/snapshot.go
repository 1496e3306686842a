package rig

import (
	"time"

	"github.com/rcludwick/multirig/config"
)

const debugRingSize = 500

// EventKind mirrors hamlib.EventKind plus the two listener-side kinds
// (server_rx/server_tx) that the Rigctl Listener records in its own ring
// of DebugEvents, so this package doesn't import the listener package.
type EventKind string

const (
	EventTX       EventKind = "tx"
	EventRX       EventKind = "rx"
	EventServerRX EventKind = "server_rx"
	EventServerTX EventKind = "server_tx"
)

// DebugEvent is one entry in a rig's debug ring.
type DebugEvent struct {
	Timestamp time.Time `json:"ts"`
	Kind      EventKind `json:"kind"`
	Semantic  string    `json:"semantic"`
	Payload   string    `json:"payload"`
}

// debugRing is a fixed-capacity ring buffer of the last N DebugEvents.
// The Client is its sole writer; snapshots hand out a copy so readers
// never race the writer.
type debugRing struct {
	events []DebugEvent
	next   int
	full   bool
}

func newDebugRing() *debugRing {
	return &debugRing{events: make([]DebugEvent, debugRingSize)}
}

func (r *debugRing) add(e DebugEvent) {
	r.events[r.next] = e
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
}

func (r *debugRing) snapshot() []DebugEvent {
	if !r.full {
		out := make([]DebugEvent, r.next)
		copy(out, r.events[:r.next])
		return out
	}
	out := make([]DebugEvent, len(r.events))
	copy(out, r.events[r.next:])
	copy(out[len(r.events)-r.next:], r.events[:r.next])
	return out
}

// Snapshot is an immutable per-tick view of a rig's observable state,
// the core's source of truth for subscribers.
type Snapshot struct {
	Index         int
	Name          string
	Connected     bool
	Enabled       bool
	FollowMain    bool
	ModelID       string
	HamlibVersion string

	FrequencyHz  int
	FrequencyAHz int
	FrequencyBHz int
	VFO          string
	Mode         string
	PassbandHz   int
	PTT          bool

	Caps  Capabilities
	Modes []string

	BandPresets    []config.BandPreset
	AllowOutOfBand bool

	ConnectionError string
	LastOpError     string

	DebugEvents []DebugEvent
}
