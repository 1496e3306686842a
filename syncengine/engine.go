// Package syncengine implements the Sync Engine: a single task that
// observes the Registry's main-rig snapshot and mirrors frequency and
// mode changes to every enabled, follow_main rig.
package syncengine

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcludwick/multirig/registry"
	"github.com/rcludwick/multirig/rig"
)

// tickInterval is how often the engine checks the main rig for a
// frequency or mode change. It is deliberately independent of any rig's
// own poll_interval_ms so a follower mirrors within two of the source's
// poll intervals regardless of configuration.
const tickInterval = 100 * time.Millisecond

type followerState struct {
	freq int
	mode string
}

// Engine drives the main→followers frequency/mode mirroring. It holds
// no strong reference to any Client: followers are always
// resolved fresh from the Registry by index, so a reconfigure can
// replace the underlying Clients without the Engine ever dereferencing
// a stale pointer.
type Engine struct {
	reg *registry.Registry

	stop    chan struct{}
	stopped chan struct{}

	mu             sync.Mutex
	gen            uint64
	cache          map[int]followerState
	lastSourceFreq int
	lastSourceMode string
}

// New constructs an Engine over reg. Call Start to begin observing.
func New(reg *registry.Registry) *Engine {
	return &Engine{
		reg:     reg,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		cache:   make(map[int]followerState),
	}
}

// Start runs the engine's single observer task until Stop is called.
func (e *Engine) Start() { go e.run() }

// Stop terminates the observer task.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.stopped
}

func (e *Engine) run() {
	defer close(e.stopped)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	if !e.reg.SyncEnabled() {
		return
	}

	main, mainIdx, ok := e.reg.Main()
	if !ok {
		return
	}
	mainSnap := main.GetStatus()

	clients, gen := e.reg.Clients()

	e.mu.Lock()
	if gen != e.gen {
		e.gen = gen
		e.cache = make(map[int]followerState)
		e.lastSourceFreq = 0
		e.lastSourceMode = ""
	}
	changed := mainSnap.FrequencyHz != e.lastSourceFreq || mainSnap.Mode != e.lastSourceMode
	e.lastSourceFreq = mainSnap.FrequencyHz
	e.lastSourceMode = mainSnap.Mode
	e.mu.Unlock()

	if !changed {
		return
	}

	var g errgroup.Group
	for _, c := range clients {
		if c.Index() == mainIdx || !c.Enabled() || !c.FollowsMain() {
			continue
		}
		c := c
		g.Go(func() error {
			e.syncFollower(c, mainSnap)
			return nil
		})
	}
	g.Wait()
}

// syncFollower issues set_frequency/set_mode on c when the main rig's
// value differs from the value last successfully written (or already
// observed) on c. A band rejection from c is not fatal: it is recorded
// on c's own snapshot via the normal error-propagation path and the
// engine simply moves on.
func (e *Engine) syncFollower(c *rig.Client, mainSnap rig.Snapshot) {
	idx := c.Index()
	observed := c.GetStatus()

	e.mu.Lock()
	st := e.cache[idx]
	e.mu.Unlock()

	if st.freq != mainSnap.FrequencyHz && observed.FrequencyHz != mainSnap.FrequencyHz {
		if err := c.SetFrequency(mainSnap.FrequencyHz); err == nil {
			st.freq = mainSnap.FrequencyHz
		}
	} else {
		st.freq = mainSnap.FrequencyHz
	}

	if mainSnap.Mode != "" {
		if st.mode != mainSnap.Mode && observed.Mode != mainSnap.Mode {
			if err := c.SetMode(mainSnap.Mode, mainSnap.PassbandHz); err == nil {
				st.mode = mainSnap.Mode
			}
		} else {
			st.mode = mainSnap.Mode
		}
	}

	e.mu.Lock()
	e.cache[idx] = st
	e.mu.Unlock()
}
