// Package directories resolves the XDG base directories used by the
// multirigd daemon: a config directory for the on-disk AppConfig file, and
// a state directory for debug dumps.
package directories

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/rcludwick/multirig/internal/buildinfo"
)

var (
	lock       = &sync.Mutex{}
	configPath string
	statePath  string
)

func ConfigDir() string {
	return getDir(&configPath, xdg.ConfigHome, "ConfigDir")
}

func StateDir() string {
	return getDir(&statePath, xdg.StateHome, "StateDir")
}

func getDir(dir *string, basePath string, methodName string) string {
	lock.Lock()
	defer lock.Unlock()
	if *dir == "" {
		initDir(dir, basePath, methodName)
	}
	return *dir
}

func initDir(dir *string, basePath string, methodName string) {
	*dir = filepath.Join(basePath, strings.ToLower(buildinfo.AppName))
	if _, err := os.Stat(*dir); os.IsNotExist(err) {
		if err := os.MkdirAll(*dir, os.ModeDir|0o755); err != nil {
			log.Fatalf("unable to create or open %s %s: %v", methodName, *dir, err)
		}
	}
}

func PrintDirectories() {
	fmt.Printf("Config directory:\t%s\n", ConfigDir())
	fmt.Printf("State directory: \t%s\n", StateDir())
}
