// Package rig implements the stateful façade over one hamlib.Connection:
// a poll loop, a capabilities cache, a snapshot read under a read lock and
// the client-side band policy check.
package rig

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/rcludwick/multirig/config"
	"github.com/rcludwick/multirig/hamlib"
	"github.com/rcludwick/multirig/internal/debug"
)

// Client is the public stateful façade for one rig.
type Client struct {
	index int

	mu  sync.RWMutex
	cfg config.RigConfig

	conn *hamlib.Connection
	ring *debugRing

	enabled    bool
	followMain bool

	connected       bool
	connectionError string

	lastOpError    string
	lastOpErrorCmd hamlib.Command

	caps          Capabilities
	capsFetched   bool
	hamlibVersion *version.Version

	freqHz, freqAHz, freqBHz int
	vfo                      string
	mode                     string
	passbandHz               int
	ptt                      bool

	ioStreak int

	stop    chan struct{}
	stopped chan struct{}
}

// NewClient constructs a Client for one rig. Call Start to begin polling.
func NewClient(index int, cfg config.RigConfig) *Client {
	c := &Client{
		index:      index,
		cfg:        cfg,
		enabled:    cfg.Enabled,
		followMain: cfg.FollowMain,
		ring:       newDebugRing(),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	c.conn = hamlib.NewConnection(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), c.recordEvent)
	return c
}

// Start begins the poll loop in its own goroutine.
func (c *Client) Start() {
	go c.pollLoop()
}

// Stop signals the poll loop to exit and closes the underlying
// Connection. It blocks until the poll loop has returned.
func (c *Client) Stop() {
	close(c.stop)
	<-c.stopped
	c.conn.Close()
}

func (c *Client) recordEvent(kind hamlib.EventKind, semantic, payload string) {
	var k EventKind
	switch kind {
	case hamlib.EventTX:
		k = EventTX
	case hamlib.EventRX:
		k = EventRX
	default:
		k = EventKind(kind)
	}
	c.mu.Lock()
	c.ring.add(DebugEvent{Timestamp: time.Now(), Kind: k, Semantic: semantic, Payload: payload})
	c.mu.Unlock()
}

func (c *Client) config() config.RigConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Enable enables or disables this Client's participation in polling.
// Set operations called directly on the Client still reach the wire; the
// poll loop, the Sync Engine and Registry.EnabledClients consult this
// flag.
func (c *Client) Enable(on bool) {
	c.mu.Lock()
	c.enabled = on
	c.mu.Unlock()
}

// SetFollowMain toggles whether the Sync Engine treats this rig as a
// follower.
func (c *Client) SetFollowMain(on bool) {
	c.mu.Lock()
	c.followMain = on
	c.mu.Unlock()
}

// Enabled reports whether this rig currently participates in polling and
// commands.
func (c *Client) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// FollowsMain reports whether this rig currently accepts sync writes.
func (c *Client) FollowsMain() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.followMain
}

// Index returns this Client's fixed position in the Registry's rig list.
func (c *Client) Index() int { return c.index }

// do submits cmd and records the outcome (success clears any prior
// last_op_error for the same command; an io error also drives the
// consecutive-failure disconnect counter).
func (c *Client) do(cmd hamlib.Command, args []string, deadline time.Duration) (*hamlib.Response, *hamlib.Error) {
	resp, err := c.conn.Submit(cmd, args, deadline)
	c.mu.Lock()
	if err != nil {
		c.lastOpError = err.Message
		c.lastOpErrorCmd = cmd
		if err.Kind == hamlib.KindIO {
			c.ioStreak++
			if c.ioStreak >= 3 {
				c.connected = false
				c.connectionError = err.Message
				c.capsFetched = false
			}
		}
	} else {
		c.ioStreak = 0
		if c.lastOpErrorCmd == cmd {
			c.lastOpError = ""
		}
	}
	c.mu.Unlock()
	return resp, err
}

// recordBandError records a band-policy rejection without ever touching
// the wire: a band error emits no network traffic.
func (c *Client) recordBandError(cmd hamlib.Command, err *hamlib.Error) {
	c.mu.Lock()
	c.lastOpError = err.Message
	c.lastOpErrorCmd = cmd
	c.mu.Unlock()
}

// SetFrequency validates against the band policy, then issues \set_freq.
func (c *Client) SetFrequency(hz int) *hamlib.Error {
	if err := checkBand(c.config(), hz); err != nil {
		c.recordBandError(hamlib.CmdSetFreq, err)
		return err
	}
	_, err := c.do(hamlib.CmdSetFreq, []string{strconv.Itoa(hz)}, hamlib.DefaultDeadline)
	if err == nil {
		c.mu.Lock()
		c.freqHz = hz
		c.mu.Unlock()
	}
	return err
}

// SetMode issues \set_mode. A zero passband requests the backend default.
func (c *Client) SetMode(mode string, passband int) *hamlib.Error {
	_, err := c.do(hamlib.CmdSetMode, []string{mode, strconv.Itoa(passband)}, hamlib.DefaultDeadline)
	if err == nil {
		c.mu.Lock()
		c.mode = mode
		c.passbandHz = passband
		c.mu.Unlock()
	}
	return err
}

// SetVFO issues \set_vfo with vfo one of "VFOA", "VFOB", "currVFO".
func (c *Client) SetVFO(vfo string) *hamlib.Error {
	_, err := c.do(hamlib.CmdSetVFO, []string{vfo}, hamlib.DefaultDeadline)
	if err == nil {
		c.mu.Lock()
		c.vfo = vfo
		c.mu.Unlock()
	}
	return err
}

// SetPTT issues \set_ptt.
func (c *Client) SetPTT(on bool) *hamlib.Error {
	v := "0"
	if on {
		v = "1"
	}
	_, err := c.do(hamlib.CmdSetPTT, []string{v}, hamlib.DefaultDeadline)
	if err == nil {
		c.mu.Lock()
		c.ptt = on
		c.mu.Unlock()
	}
	return err
}

// SyncFrom copies frequency and mode atomically read from source's
// current snapshot through the normal set operations. Mode and
// frequency are issued independently; partial success is permitted.
func (c *Client) SyncFrom(source *Client) (freqErr, modeErr *hamlib.Error) {
	snap := source.GetStatus()
	freqErr = c.SetFrequency(snap.FrequencyHz)
	modeErr = c.SetMode(snap.Mode, snap.PassbandHz)
	return freqErr, modeErr
}

// RefreshCaps forces a re-read of \dump_caps, updating the cached
// capabilities and mode list on success. On failure the previously
// cached capabilities are left untouched.
func (c *Client) RefreshCaps() *hamlib.Error {
	resp, err := c.do(hamlib.CmdDumpCaps, nil, hamlib.DumpDeadline)
	if err != nil {
		return err
	}
	caps := parseDumpCaps(resp.Lines)
	c.mu.Lock()
	c.caps = caps
	c.capsFetched = true
	c.connected = true
	c.connectionError = ""
	c.mu.Unlock()
	c.refreshVersion()
	return nil
}

// refreshVersion issues \get_info once per connect, immediately after a
// successful dump_caps. A parse failure or an I/O error is not returned
// (a failed get_info is still recorded as last_op_error by do): version
// reporting is advisory and never blocks the poll loop.
func (c *Client) refreshVersion() {
	resp, err := c.do(hamlib.CmdGetInfo, nil, hamlib.DefaultDeadline)
	if err != nil || resp == nil || len(resp.Lines) == 0 {
		return
	}
	v, ok := parseHamlibVersion(resp.Lines[0])
	if !ok {
		return
	}
	c.mu.Lock()
	c.hamlibVersion = v
	c.mu.Unlock()
	if v.LessThan(minVerifiedHamlibVersion) {
		debug.Printf("rig %s: backend reports hamlib %s, older than the %s the ERP fallback was verified against", c.cfg.Name, v, minVerifiedHamlibVersion)
	}
}

// GetLevel, SetConf and GetConf pass their token/value through to the
// wire opaquely: Hamlib's level names and config tokens vary per driver,
// so the Client neither validates nor interprets them, it only forwards
// the RPRT outcome to the caller.
func (c *Client) GetLevel(name string) (*hamlib.Response, *hamlib.Error) {
	return c.do(hamlib.CmdGetLevel, []string{name}, hamlib.DefaultDeadline)
}

func (c *Client) SetConf(token, value string) *hamlib.Error {
	_, err := c.do(hamlib.CmdSetConf, []string{token, value}, hamlib.DefaultDeadline)
	return err
}

func (c *Client) GetConf(token string) (*hamlib.Response, *hamlib.Error) {
	return c.do(hamlib.CmdGetConf, []string{token}, hamlib.DefaultDeadline)
}

// GetStatus is a non-blocking read of the last published Snapshot.
func (c *Client) GetStatus() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Index:           c.index,
		Name:            c.cfg.Name,
		Connected:       c.connected,
		Enabled:         c.enabled,
		FollowMain:      c.followMain,
		ModelID:         c.cfg.ModelID,
		HamlibVersion:   versionString(c.hamlibVersion),
		FrequencyHz:     c.freqHz,
		FrequencyAHz:    c.freqAHz,
		FrequencyBHz:    c.freqBHz,
		VFO:             c.vfo,
		Mode:            c.mode,
		PassbandHz:      c.passbandHz,
		PTT:             c.ptt,
		Caps:            c.caps,
		Modes:           append([]string(nil), c.caps.Modes...),
		BandPresets:     append([]config.BandPreset(nil), c.cfg.BandPresets...),
		AllowOutOfBand:  c.cfg.AllowOutOfBand,
		ConnectionError: c.connectionError,
		LastOpError:     c.lastOpError,
		DebugEvents:     c.ring.snapshot(),
	}
}

// versionString renders a possibly-nil *version.Version for Snapshot,
// where an unknown version is simply the empty string rather than a nil
// pointer.
func versionString(v *version.Version) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// valueString extracts a named Key: Value record, falling back to the
// first raw line when the peer replied in default-protocol form.
func valueString(resp *hamlib.Response, key string) (string, bool) {
	if v, ok := resp.Values[key]; ok {
		return v, true
	}
	if len(resp.Lines) > 0 {
		return strings.TrimSpace(resp.Lines[0]), true
	}
	return "", false
}

func valueInt(resp *hamlib.Response, key string) (int, bool) {
	s, ok := valueString(resp, key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}
