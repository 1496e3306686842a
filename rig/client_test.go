package rig

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/rcludwick/multirig/config"
)

// fakeRig accepts connections and answers every request via handler,
// letting Client tests drive a Client against scripted wire behavior
// without a real Hamlib backend.
func fakeRig(t *testing.T, handler func(line string) string) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					line = strings.TrimRight(line, "\r\n")
					if _, err := conn.Write([]byte(handler(line))); err != nil {
						return
					}
				}
			}()
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func testConfig(host string, port int) config.RigConfig {
	return config.RigConfig{
		Name:           "rig0",
		Host:           host,
		Port:           port,
		Enabled:        true,
		PollIntervalMs: 100,
		BandPresets: []config.BandPreset{
			{Label: "20m", LowerHz: 14000000, CenterHz: 14200000, UpperHz: 14350000, Enabled: true},
		},
	}
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %s: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port %s: %v", portStr, err)
	}
	return host, port
}

func TestClientSetFrequencyInBand(t *testing.T) {
	addr, stop := fakeRig(t, func(line string) string {
		switch {
		case line == `\set_freq 14200000`:
			return "RPRT 0\n"
		}
		return "RPRT -11\n"
	})
	defer stop()

	host, port := splitHostPort(t, addr)
	c := NewClient(0, testConfig(host, port))
	defer c.conn.Close()

	if err := c.SetFrequency(14200000); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	if got := c.GetStatus().FrequencyHz; got != 14200000 {
		t.Errorf("snapshot frequency = %d, want 14200000", got)
	}
}

func TestClientSetFrequencyOutOfBandRejectedWithoutWireTraffic(t *testing.T) {
	saw := false
	addr, stop := fakeRig(t, func(line string) string {
		saw = true
		return "RPRT 0\n"
	})
	defer stop()

	host, port := splitHostPort(t, addr)
	c := NewClient(0, testConfig(host, port))
	defer c.conn.Close()

	err := c.SetFrequency(7074000)
	if err == nil || err.Kind.String() != "band" {
		t.Fatalf("expected band error, got %v", err)
	}
	if saw {
		t.Error("band rejection must never reach the wire")
	}
	if got := c.GetStatus().LastOpError; got == "" {
		t.Error("band rejection should be recorded as last_op_error")
	}
}

func TestClientRefreshCaps(t *testing.T) {
	addr, stop := fakeRig(t, func(line string) string {
		if line == `\dump_caps` {
			return "Can set Frequency: Y\nCan get Frequency: Y\nMode list: USB LSB\nRPRT 0\n"
		}
		return "RPRT -11\n"
	})
	defer stop()

	host, port := splitHostPort(t, addr)
	c := NewClient(0, testConfig(host, port))
	defer c.conn.Close()

	if err := c.RefreshCaps(); err != nil {
		t.Fatalf("RefreshCaps: %v", err)
	}
	snap := c.GetStatus()
	if !snap.Connected {
		t.Error("a successful dump_caps should mark the client connected")
	}
	if snap.Caps.Empty() {
		t.Error("caps should not be empty after a successful dump_caps")
	}
}

func TestClientSyncFrom(t *testing.T) {
	var setFreq, setMode bool
	addrA, stopA := fakeRig(t, func(line string) string {
		switch line {
		case `\set_freq 14200000`:
			setFreq = true
			return "RPRT 0\n"
		case `\set_mode USB 0`:
			setMode = true
			return "RPRT 0\n"
		}
		return "RPRT -11\n"
	})
	defer stopA()

	hostA, portA := splitHostPort(t, addrA)
	source := NewClient(0, testConfig(hostA, portA))
	defer source.conn.Close()
	source.mu.Lock()
	source.freqHz = 14200000
	source.mode = "USB"
	source.mu.Unlock()

	follower := NewClient(1, testConfig(hostA, portA))
	defer follower.conn.Close()

	freqErr, modeErr := follower.SyncFrom(source)
	if freqErr != nil || modeErr != nil {
		t.Fatalf("SyncFrom errors: freq=%v mode=%v", freqErr, modeErr)
	}
	if !setFreq || !setMode {
		t.Error("SyncFrom should issue both set_freq and set_mode on the follower")
	}
}
