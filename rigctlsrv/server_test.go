package rigctlsrv

import (
	"bufio"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rcludwick/multirig/config"
)

// freePort finds an available loopback port by binding then immediately
// releasing it, so the Listener under test can be started against a
// known, reachable address.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, p, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()
	port, _ := strconv.Atoi(p)
	return port
}

func TestListenerStartStopAndUnknownCommand(t *testing.T) {
	port := freePort(t)
	l, _ := newTestListener(t, config.AppConfig{
		Rigs:             []config.RigConfig{{Name: "main", Host: "127.0.0.1", Port: 1, PollIntervalMs: 1000}},
		RigctlListenHost: "127.0.0.1",
		RigctlListenPort: port,
	})

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(3 * time.Second))
	if _, err := conn.Write([]byte("+wut\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "RPRT -11\n" {
		t.Errorf("unknown command reply = %q, want %q", line, "RPRT -11\n")
	}

	events := l.DebugEvents()
	if len(events) < 2 {
		t.Errorf("DebugEvents() = %d events, want at least an rx/tx pair", len(events))
	}
}

func TestListenerGetFreqOverTheWire(t *testing.T) {
	rigHost, rigPort, stopRig := fakeRig(t, func(line string) string {
		if line == `\dump_caps` {
			return "Can set Frequency: Y\nCan get Frequency: Y\nRPRT 0\n"
		}
		if line == `\set_freq 14200000` {
			return "RPRT 0\n"
		}
		return "RPRT -11\n"
	})
	defer stopRig()

	port := freePort(t)
	l, reg := newTestListener(t, config.AppConfig{
		Rigs:                []config.RigConfig{{Name: "main", Host: rigHost, Port: rigPort, Enabled: true, PollIntervalMs: 1000, AllowOutOfBand: true}},
		RigctlToMainEnabled: true,
		AllRigsEnabled:      true,
		RigctlListenHost:    "127.0.0.1",
		RigctlListenPort:    port,
	})
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	main, _, ok := reg.Main()
	if !ok {
		t.Fatal("expected a main rig")
	}
	if err := main.RefreshCaps(); err != nil {
		t.Fatalf("RefreshCaps: %v", err)
	}
	if err := main.SetFrequency(14200000); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(3 * time.Second))

	if _, err := conn.Write([]byte("\\get_freq\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "Frequency: 14200000\n" {
		t.Errorf("get_freq reply = %q, want %q", line, "Frequency: 14200000\n")
	}
}
