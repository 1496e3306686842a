// Command multirigd runs the MultiRig coordination daemon: it loads an
// AppConfig, wires up the Registry, Rigctl Listener, Status Broadcaster
// and Sync Engine, watches the config file for changes, and blocks until
// terminated.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"

	"github.com/rcludwick/multirig/config"
	"github.com/rcludwick/multirig/internal/buildinfo"
	"github.com/rcludwick/multirig/internal/debug"
	"github.com/rcludwick/multirig/internal/directories"
	"github.com/rcludwick/multirig/registry"
	"github.com/rcludwick/multirig/rigctlsrv"
	"github.com/rcludwick/multirig/status"
	"github.com/rcludwick/multirig/syncengine"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "Path to the AppConfig JSON file (default: $XDG_CONFIG_HOME/multirig/config.json)")
		version    = pflag.BoolP("version", "v", false, "Print version and exit")
	)
	pflag.Parse()

	if *version {
		fmt.Println(buildinfo.VersionString())
		return
	}

	if *configPath == "" {
		*configPath = filepath.Join(directories.ConfigDir(), "config.json")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("multirigd: %v", err)
	}

	reg, err := registry.New(cfg)
	if err != nil {
		log.Fatalf("multirigd: registry: %v", err)
	}

	broadcaster := status.New(reg)
	broadcaster.Start()

	engine := syncengine.New(reg)
	engine.Start()

	lm := newListenerManager(reg)
	if err := lm.start(); err != nil {
		log.Fatalf("multirigd: listener: %v", err)
	}

	debug.Printf("multirigd %s listening on rigctl port, watching %s", buildinfo.VersionStringShort(), *configPath)
	watchConfig(*configPath, reg, lm)

	select {}
}

// listenerManager restarts the Rigctl Listener only when
// rigctl_listen_host/port actually changes across a reconfigure, rather
// than rebinding the socket on every config reload.
type listenerManager struct {
	reg  *registry.Registry
	ln   *rigctlsrv.Listener
	host string
	port int
}

func newListenerManager(reg *registry.Registry) *listenerManager {
	return &listenerManager{reg: reg}
}

func (lm *listenerManager) start() error {
	lm.host, lm.port = lm.reg.ListenerAddr()
	lm.ln = rigctlsrv.New(lm.reg)
	return lm.ln.Start()
}

// restartIfChanged compares the Registry's current listen address to the
// one the running Listener was bound with and swaps it out if needed.
func (lm *listenerManager) restartIfChanged() {
	host, port := lm.reg.ListenerAddr()
	if host == lm.host && port == lm.port {
		return
	}
	log.Printf("multirigd: rigctl listen address changed (%s:%d -> %s:%d), restarting listener", lm.host, lm.port, host, port)
	lm.ln.Stop()
	if err := lm.start(); err != nil {
		log.Printf("multirigd: failed to restart listener on %s:%d: %v", host, port, err)
	}
}

// loadConfig reads and overlays an AppConfig from disk. A missing file is
// not an error: a fresh installation starts from config.Default().
func loadConfig(path string) (config.AppConfig, error) {
	cfg := config.Default()

	if b, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	cfg, err := config.ApplyEnv(cfg)
	if err != nil {
		return cfg, fmt.Errorf("apply environment overlay: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate %s: %w", path, err)
	}
	return cfg, nil
}

// watchConfig starts an fsnotify watch on the config file's directory and
// calls Registry.Apply on every write, the concrete mechanism behind a
// collaborator applying an updated configuration at runtime.
func watchConfig(path string, reg *registry.Registry, lm *listenerManager) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("multirigd: config watch disabled: %v", err)
		return
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Printf("multirigd: config watch disabled: %v", err)
		return
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := loadConfig(path)
				if err != nil {
					log.Printf("multirigd: reload %s: %v", path, err)
					continue
				}
				if err := reg.Apply(cfg); err != nil {
					log.Printf("multirigd: apply %s: %v", path, err)
					continue
				}
				lm.restartIfChanged()
				log.Printf("multirigd: applied updated configuration from %s", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("multirigd: config watch error: %v", err)
			}
		}
	}()
}
