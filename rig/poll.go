package rig

import (
	"strconv"
	"time"

	"github.com/rcludwick/multirig/hamlib"
)

// pollLoop runs for the lifetime of the Client, driving one poll
// iteration every poll_interval_ms while the rig is enabled.
func (c *Client) pollLoop() {
	defer close(c.stopped)

	interval := time.Duration(c.config().PollIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if c.Enabled() {
				c.pollOnce()
			}
		}
	}
}

// pollOnce runs one best-effort poll iteration in a fixed order. Every
// step records its own failure on last_op_error without aborting the
// remaining steps; three consecutive io failures (tracked across all
// steps via Client.do) mark the Client disconnected and surrender the
// Connection for its own internal reconnect cycle.
func (c *Client) pollOnce() {
	c.mu.RLock()
	needCaps := !c.capsFetched
	c.mu.RUnlock()

	if needCaps {
		if err := c.RefreshCaps(); err != nil {
			return
		}
	}

	c.pollPowerstat()
	c.pollFreq()
	c.pollMode()
	activeVFO := c.pollVFO()
	c.pollPTT()
	c.pollDualVFO(activeVFO)
}

func (c *Client) pollPowerstat() {
	resp, err := c.do(hamlib.CmdGetPowerstat, nil, hamlib.DefaultDeadline)
	if err != nil || resp == nil {
		return
	}
	// Power status has no dedicated snapshot field; a successful read
	// only clears any stale last_op_error for this command.
}

func (c *Client) pollFreq() {
	resp, err := c.do(hamlib.CmdGetFreq, nil, hamlib.DefaultDeadline)
	if err != nil || resp == nil {
		return
	}
	if hz, ok := valueInt(resp, "Frequency"); ok {
		c.mu.Lock()
		c.freqHz = hz
		c.mu.Unlock()
	}
}

func (c *Client) pollMode() {
	resp, err := c.do(hamlib.CmdGetMode, nil, hamlib.DefaultDeadline)
	if err != nil || resp == nil {
		return
	}
	mode, _ := valueString(resp, "Mode")
	pb := 0
	if v, ok := resp.Values["Passband"]; ok {
		if f, ferr := strconv.ParseFloat(v, 64); ferr == nil {
			pb = int(f)
		}
	} else if len(resp.Lines) > 1 {
		if f, ferr := strconv.ParseFloat(resp.Lines[1], 64); ferr == nil {
			pb = int(f)
		}
	}
	c.mu.Lock()
	c.mode = mode
	c.passbandHz = pb
	c.mu.Unlock()
}

func (c *Client) pollVFO() string {
	resp, err := c.do(hamlib.CmdGetVFO, nil, hamlib.DefaultDeadline)
	if err != nil || resp == nil {
		c.mu.RLock()
		v := c.vfo
		c.mu.RUnlock()
		return v
	}
	vfo, _ := valueString(resp, "VFO")
	c.mu.Lock()
	c.vfo = vfo
	c.mu.Unlock()
	return vfo
}

func (c *Client) pollPTT() {
	c.mu.RLock()
	supported := c.caps.PTTGet
	c.mu.RUnlock()
	if !supported {
		return
	}
	resp, err := c.do(hamlib.CmdGetPTT, nil, hamlib.DefaultDeadline)
	if err != nil || resp == nil {
		return
	}
	if v, ok := valueInt(resp, "PTT"); ok {
		c.mu.Lock()
		c.ptt = v != 0
		c.mu.Unlock()
	}
}

// pollDualVFO probes VFOA and VFOB's frequency independently when the
// rig supports setting and getting VFO, restoring the originally active
// VFO before returning regardless of intermediate failures.
func (c *Client) pollDualVFO(activeVFO string) {
	c.mu.RLock()
	dualVFO := c.caps.VFOSet && c.caps.VFOGet
	c.mu.RUnlock()
	if !dualVFO {
		return
	}

	defer func() {
		if activeVFO != "" {
			c.do(hamlib.CmdSetVFO, []string{activeVFO}, hamlib.DefaultDeadline)
		}
	}()

	probe := func(vfo string) (int, bool) {
		if _, err := c.do(hamlib.CmdSetVFO, []string{vfo}, hamlib.DefaultDeadline); err != nil {
			return 0, false
		}
		resp, err := c.do(hamlib.CmdGetFreq, nil, hamlib.DefaultDeadline)
		if err != nil || resp == nil {
			return 0, false
		}
		hz, ok := valueInt(resp, "Frequency")
		return hz, ok
	}

	if hz, ok := probe("VFOA"); ok {
		c.mu.Lock()
		c.freqAHz = hz
		c.mu.Unlock()
	}
	if hz, ok := probe("VFOB"); ok {
		c.mu.Lock()
		c.freqBHz = hz
		c.mu.Unlock()
	}
}
