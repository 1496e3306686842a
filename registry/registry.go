// Package registry implements the Rig Registry: the single owner of the
// set of live rig.Clients, atomic reconfiguration, and the runtime
// toggles collaborators use to control sync and fan-out without a full
// reconfigure.
package registry

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcludwick/multirig/config"
	"github.com/rcludwick/multirig/rig"
)

// quiescenceWindow is how long Apply lets old Clients keep running after
// their replacements have started polling, so in-flight operations on
// the old generation can report an error rather than silently vanish.
const quiescenceWindow = 250 * time.Millisecond

// Registry owns the set of Clients for the lifetime of one AppConfig and
// transitions atomically to a new one on Apply.
type Registry struct {
	mu      sync.RWMutex
	clients []*rig.Client
	cfg     config.AppConfig
	gen     uint64

	syncEnabled         bool
	rigctlToMainEnabled bool
	allRigsEnabled      bool
	syncSourceIndex     int
}

// New builds a Registry from an initial configuration and starts each
// Client's poll loop.
func New(cfg config.AppConfig) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{}
	r.applyLocked(cfg)
	return r, nil
}

func (r *Registry) applyLocked(cfg config.AppConfig) {
	clients := make([]*rig.Client, len(cfg.Rigs))
	for i, rc := range cfg.Rigs {
		c := rig.NewClient(i, rc)
		c.Start()
		clients[i] = c
	}
	r.clients = clients
	r.cfg = cfg
	r.gen++
	r.syncEnabled = cfg.SyncEnabled
	r.rigctlToMainEnabled = cfg.RigctlToMainEnabled
	r.allRigsEnabled = cfg.AllRigsEnabled
	r.syncSourceIndex = cfg.SyncSourceIndex
}

// Apply atomically transitions to a new configuration: it builds new
// Clients and starts their poll loops, then closes the old Clients after
// quiescenceWindow has elapsed. The generation counter is bumped
// immediately so the Sync Engine's follower change-detection cache is
// discarded on the very next tick, before the old Clients are closed.
func (r *Registry) Apply(cfg config.AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	old := r.clients
	r.applyLocked(cfg)
	r.mu.Unlock()

	go func() {
		time.Sleep(quiescenceWindow)
		var g errgroup.Group
		for _, c := range old {
			c := c
			g.Go(func() error {
				c.Stop()
				return nil
			})
		}
		g.Wait()
	}()
	return nil
}

// ListenerAddr returns the configured rigctl listener host/port.
func (r *Registry) ListenerAddr() (string, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.RigctlListenHost, r.cfg.RigctlListenPort
}

// Generation returns the current reconfigure generation, incremented
// once per successful Apply.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}

// Clients returns a stable snapshot of the current client list alongside
// the generation it belongs to.
func (r *Registry) Clients() ([]*rig.Client, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*rig.Client, len(r.clients))
	copy(out, r.clients)
	return out, r.gen
}

// Client resolves index against the current generation. An out-of-range
// index fails cleanly by returning ok=false rather than panicking. The
// generation an index was obtained under is not checked: an in-range
// index from a replaced generation resolves to the current Client at
// that position.
func (r *Registry) Client(index int) (c *rig.Client, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.clients) {
		return nil, false
	}
	return r.clients[index], true
}

// Main returns the current main rig (sync_source_index) and its index.
func (r *Registry) Main() (c *rig.Client, index int, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.syncSourceIndex < 0 || r.syncSourceIndex >= len(r.clients) {
		return nil, 0, false
	}
	return r.clients[r.syncSourceIndex], r.syncSourceIndex, true
}

// EnabledClients returns every Client that is both individually enabled
// and not short-circuited by the all_rigs_enabled master gate.
func (r *Registry) EnabledClients() []*rig.Client {
	r.mu.RLock()
	allEnabled := r.allRigsEnabled
	clients := make([]*rig.Client, len(r.clients))
	copy(clients, r.clients)
	r.mu.RUnlock()

	if !allEnabled {
		return nil
	}
	out := make([]*rig.Client, 0, len(clients))
	for _, c := range clients {
		if c.Enabled() {
			out = append(out, c)
		}
	}
	return out
}

// SyncEnabled reports the global main→followers mirroring gate.
func (r *Registry) SyncEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.syncEnabled
}

// SetSyncEnabled toggles the global main→followers mirroring gate
// without rebuilding any Client or discarding the Sync Engine's
// follower change-detection cache.
func (r *Registry) SetSyncEnabled(on bool) {
	r.mu.Lock()
	r.syncEnabled = on
	r.mu.Unlock()
}

// RigctlToMainEnabled reports the global Listener→main-rig forwarding
// gate.
func (r *Registry) RigctlToMainEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rigctlToMainEnabled
}

func (r *Registry) SetRigctlToMainEnabled(on bool) {
	r.mu.Lock()
	r.rigctlToMainEnabled = on
	r.mu.Unlock()
}

// AllRigsEnabled reports the master gate that short-circuits every
// client regardless of its individual enabled flag.
func (r *Registry) AllRigsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allRigsEnabled
}

func (r *Registry) SetAllRigsEnabled(on bool) {
	r.mu.Lock()
	r.allRigsEnabled = on
	r.mu.Unlock()
}

// SetSyncSource changes which rig is the main rig. index must name an
// existing client.
func (r *Registry) SetSyncSource(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.clients) {
		return fmt.Errorf("sync source index %d out of range [0,%d)", index, len(r.clients))
	}
	r.syncSourceIndex = index
	return nil
}

func (r *Registry) SyncSourceIndex() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.syncSourceIndex
}

// SetRigEnabled enables or disables one rig's participation in polling
// and commands.
func (r *Registry) SetRigEnabled(index int, on bool) error {
	c, ok := r.Client(index)
	if !ok {
		return fmt.Errorf("rig index %d out of range", index)
	}
	c.Enable(on)
	return nil
}

// SetRigFollowMain toggles whether a rig accepts sync writes from the
// main rig.
func (r *Registry) SetRigFollowMain(index int, on bool) error {
	c, ok := r.Client(index)
	if !ok {
		return fmt.Errorf("rig index %d out of range", index)
	}
	c.SetFollowMain(on)
	return nil
}

// Snapshots returns the current RigSnapshot for every client, the shape
// the Status Broadcaster publishes.
func (r *Registry) Snapshots() []rig.Snapshot {
	clients, _ := r.Clients()
	out := make([]rig.Snapshot, len(clients))
	for i, c := range clients {
		out[i] = c.GetStatus()
	}
	return out
}

// Close stops every current Client. Intended for full daemon shutdown.
func (r *Registry) Close() {
	clients, _ := r.Clients()
	for _, c := range clients {
		c.Stop()
	}
}
