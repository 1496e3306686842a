// Package status implements the Status Broadcaster: it aggregates every
// rig's snapshot from the Registry and pushes coalesced updates to
// subscribers, dropping intermediate updates for slow readers. The
// pool/fan-out shape follows a one-channel-per-subscriber, non-blocking
// broadcast pattern: each publish is a non-blocking send with a drop
// policy for the unresponsive.
package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/rcludwick/multirig/registry"
	"github.com/rcludwick/multirig/rig"
)

const (
	scanInterval   = 50 * time.Millisecond
	coalesceWindow = 100 * time.Millisecond
)

// Update is the full state pushed to every subscriber on each emission.
type Update struct {
	Rigs                []rig.Snapshot
	SyncEnabled         bool
	SyncSourceIndex     int
	RigctlToMainEnabled bool
	AllRigsEnabled      bool
}

// Broadcaster reads every rig's snapshot from the Registry on each scan
// and fans out coalesced Updates to subscribers.
type Broadcaster struct {
	reg *registry.Registry

	mu   sync.Mutex
	subs map[chan Update]struct{}

	stop    chan struct{}
	stopped chan struct{}
}

// New constructs a Broadcaster over reg. Call Start to begin emitting.
func New(reg *registry.Registry) *Broadcaster {
	return &Broadcaster{
		reg:     reg,
		subs:    make(map[chan Update]struct{}),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start runs the coalescing task until Stop is called.
func (b *Broadcaster) Start() { go b.run() }

// Stop terminates the coalescing task.
func (b *Broadcaster) Stop() {
	close(b.stop)
	<-b.stopped
}

// Subscribe registers a new capacity-1, drop-intermediate subscriber
// channel. The returned function unsubscribes and must be called to
// release the channel.
func (b *Broadcaster) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
}

func (b *Broadcaster) run() {
	defer close(b.stopped)

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	var lastKey string
	var nextPublish time.Time

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			key := snapshotKey(b.reg.Snapshots())
			if key != lastKey {
				lastKey = key
				if nextPublish.IsZero() {
					nextPublish = time.Now().Add(coalesceWindow)
				}
			}
			if !nextPublish.IsZero() && !time.Now().Before(nextPublish) {
				b.publish()
				nextPublish = time.Time{}
			}
		}
	}
}

func (b *Broadcaster) publish() {
	upd := Update{
		Rigs:                b.reg.Snapshots(),
		SyncEnabled:         b.reg.SyncEnabled(),
		SyncSourceIndex:     b.reg.SyncSourceIndex(),
		RigctlToMainEnabled: b.reg.RigctlToMainEnabled(),
		AllRigsEnabled:      b.reg.AllRigsEnabled(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- upd:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- upd:
			default:
			}
		}
	}
}

// snapshotKey builds a cheap, order-stable comparison key over the
// fields a subscriber actually cares about. It deliberately ignores
// exact debug event timestamps beyond their count so a quiet rig with no
// state change never re-triggers a publish.
func snapshotKey(snaps []rig.Snapshot) string {
	s := ""
	for _, r := range snaps {
		s += fmt.Sprintf("|%d:%t:%t:%t:%d:%d:%d:%s:%s:%d:%t:%s:%s:%d",
			r.Index, r.Connected, r.Enabled, r.FollowMain,
			r.FrequencyHz, r.FrequencyAHz, r.FrequencyBHz,
			r.VFO, r.Mode, r.PassbandHz, r.PTT,
			r.ConnectionError, r.LastOpError, len(r.DebugEvents))
	}
	return s
}
