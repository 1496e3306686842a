package status

import (
	"testing"
	"time"

	"github.com/rcludwick/multirig/config"
	"github.com/rcludwick/multirig/registry"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	cfg := config.AppConfig{
		Rigs: []config.RigConfig{
			{Name: "main", Host: "127.0.0.1", Port: 1, Enabled: true, PollIntervalMs: 1000},
		},
		SyncEnabled:      true,
		RigctlListenHost: "127.0.0.1",
		RigctlListenPort: 4534,
		AllRigsEnabled:   true,
	}
	reg, err := registry.New(cfg)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	t.Cleanup(reg.Close)
	return reg
}

func TestBroadcasterPublishesAfterCoalesceWindow(t *testing.T) {
	reg := newTestRegistry(t)
	b := New(reg)
	b.Start()
	defer b.Stop()

	ch, unsub := b.Subscribe()
	defer unsub()

	select {
	case upd := <-ch:
		if len(upd.Rigs) != 1 {
			t.Errorf("Update.Rigs len = %d, want 1", len(upd.Rigs))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the initial coalesced update")
	}
}

func TestBroadcasterDropsIntermediateUpdatesForSlowSubscriber(t *testing.T) {
	reg := newTestRegistry(t)
	b := New(reg)

	ch, unsub := b.Subscribe()
	defer unsub()

	// Publish twice in a row without draining the channel in between: a
	// capacity-1, drop-intermediate subscriber should still hold exactly
	// one (the latest) update rather than blocking the broadcaster.
	b.publish()
	b.publish()

	select {
	case <-ch:
	default:
		t.Fatal("expected a buffered update after two publishes")
	}
	select {
	case <-ch:
		t.Error("a capacity-1 drop-intermediate channel should not hold a second update")
	default:
	}
}

func TestBroadcasterUnsubscribeStopsFurtherDelivery(t *testing.T) {
	reg := newTestRegistry(t)
	b := New(reg)

	ch, unsub := b.Subscribe()
	unsub()
	b.publish()

	select {
	case <-ch:
		t.Error("an unsubscribed channel should never receive further updates")
	default:
	}
}
