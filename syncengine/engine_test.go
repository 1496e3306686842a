package syncengine

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rcludwick/multirig/config"
	"github.com/rcludwick/multirig/registry"
)

// fakeRig accepts connections and answers every request via handler.
func fakeRig(t *testing.T, handler func(line string) string) (host string, port int, stop func()) {
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
	h, p, _ := net.SplitHostPort(ln.Addr().String())
	portNum, _ := strconv.Atoi(p)
	return h, portNum, func() { ln.Close() }
}

func TestEngineTickMirrorsMainToFollower(t *testing.T) {
	mainHost, mainPort, stopMain := fakeRig(t, func(line string) string {
		return "RPRT 0\n"
	})
	defer stopMain()

	var mu sync.Mutex
	var sawFollowerFreq bool
	followerHost, followerPort, stopFollower := fakeRig(t, func(line string) string {
		if line == `+\set_freq 14200000` {
			mu.Lock()
			sawFollowerFreq = true
			mu.Unlock()
		}
		return "RPRT 0\n"
	})
	defer stopFollower()

	cfg := config.AppConfig{
		Rigs: []config.RigConfig{
			{Name: "main", Host: mainHost, Port: mainPort, Enabled: true, PollIntervalMs: 1000, AllowOutOfBand: true},
			{Name: "follower", Host: followerHost, Port: followerPort, Enabled: true, FollowMain: true, PollIntervalMs: 1000, AllowOutOfBand: true},
		},
		SyncEnabled:    true,
		AllRigsEnabled: true,
	}
	reg, err := registry.New(cfg)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	defer reg.Close()

	main, _, ok := reg.Main()
	if !ok {
		t.Fatal("expected a main rig")
	}
	if err := main.SetFrequency(14200000); err != nil {
		t.Fatalf("SetFrequency on main: %v", err)
	}

	e := New(reg)
	e.tick()

	mu.Lock()
	defer mu.Unlock()
	if !sawFollowerFreq {
		t.Error("engine tick should mirror the main rig's new frequency to the follower")
	}
}

func TestEngineTickSkipsWhenSyncDisabled(t *testing.T) {
	mainHost, mainPort, stopMain := fakeRig(t, func(line string) string { return "RPRT 0\n" })
	defer stopMain()

	var sawFollowerFreq bool
	followerHost, followerPort, stopFollower := fakeRig(t, func(line string) string {
		sawFollowerFreq = true
		return "RPRT 0\n"
	})
	defer stopFollower()

	cfg := config.AppConfig{
		Rigs: []config.RigConfig{
			{Name: "main", Host: mainHost, Port: mainPort, Enabled: true, PollIntervalMs: 1000, AllowOutOfBand: true},
			{Name: "follower", Host: followerHost, Port: followerPort, Enabled: true, FollowMain: true, PollIntervalMs: 1000, AllowOutOfBand: true},
		},
		SyncEnabled:    false,
		AllRigsEnabled: true,
	}
	reg, err := registry.New(cfg)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	defer reg.Close()

	main, _, _ := reg.Main()
	main.SetFrequency(14200000)

	e := New(reg)
	e.tick()

	if sawFollowerFreq {
		t.Error("sync_enabled=false should suppress all follower writes")
	}
}

func TestEngineBandRejectionOnFollowerIsNotFatal(t *testing.T) {
	mainHost, mainPort, stopMain := fakeRig(t, func(line string) string { return "RPRT 0\n" })
	defer stopMain()

	followerHost, followerPort, stopFollower := fakeRig(t, func(line string) string { return "RPRT 0\n" })
	defer stopFollower()

	cfg := config.AppConfig{
		Rigs: []config.RigConfig{
			{Name: "main", Host: mainHost, Port: mainPort, Enabled: true, PollIntervalMs: 1000, AllowOutOfBand: true},
			{
				Name: "follower", Host: followerHost, Port: followerPort, Enabled: true, FollowMain: true, PollIntervalMs: 1000,
				BandPresets: []config.BandPreset{{Label: "20m", LowerHz: 14000000, CenterHz: 14200000, UpperHz: 14350000, Enabled: true}},
			},
		},
		SyncEnabled:    true,
		AllRigsEnabled: true,
	}
	reg, err := registry.New(cfg)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	defer reg.Close()

	main, _, _ := reg.Main()
	if err := main.SetFrequency(7074000); err != nil {
		t.Fatalf("SetFrequency on main: %v", err)
	}

	e := New(reg)
	e.tick()

	follower, _ := reg.Client(1)
	if got := follower.GetStatus().LastOpError; got == "" {
		t.Error("the follower's band rejection should be recorded on its own snapshot")
	}
}

func TestEngineReconfigureDiscardsCache(t *testing.T) {
	cfg := config.AppConfig{
		Rigs: []config.RigConfig{
			{Name: "main", Host: "127.0.0.1", Port: 1, Enabled: true, PollIntervalMs: 1000, AllowOutOfBand: true},
		},
		SyncEnabled:    true,
		AllRigsEnabled: true,
	}
	reg, err := registry.New(cfg)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	defer reg.Close()

	e := New(reg)
	e.mu.Lock()
	e.cache[0] = followerState{freq: 14200000, mode: "USB"}
	e.mu.Unlock()

	if err := reg.Apply(cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	e.tick()

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.cache[0]; exists {
		t.Error("a reconfigure should discard the follower change-detection cache on the next tick")
	}
}
