// Package services implements a process-wide name→object registry for
// nexxT's fixed collaborator names.
package services

import (
	"sync"

	"github.com/nexxt-run/nexxt/nxerrors"
)

// Fixed service names recognized by the runtime. The core neither
// creates nor depends on any specific implementation; it only publishes
// these names so registered collaborators can find each other.
const (
	Logging          = "Logging"
	PlaybackControl  = "PlaybackControl"
	RecordingControl = "RecordingControl"
	Configuration    = "Configuration"
	Profiling        = "Profiling"
	MainWindow       = "MainWindow"
)

var (
	mu       sync.RWMutex
	registry = map[string]interface{}{}
)

// Register publishes obj under name, replacing any previous registrant.
func Register(name string, obj interface{}) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = obj
}

// Unregister removes whatever is registered under name, if anything.
func Unregister(name string) {
	mu.Lock()
	defer mu.Unlock()
	delete(registry, name)
}

// Get looks up name, returning ErrCollectionNotFound (reused here as the
// generic "named thing not found" sentinel) if nothing is registered.
func Get(name string) (interface{}, error) {
	mu.RLock()
	defer mu.RUnlock()
	obj, ok := registry[name]
	if !ok {
		return nil, nxerrors.Wrapf(nxerrors.ErrCollectionNotFound, "no service registered under %q", name)
	}
	return obj, nil
}

// Reset clears the registry. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = map[string]interface{}{}
}
