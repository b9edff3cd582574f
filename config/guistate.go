package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nexxt-run/nexxt/nxerrors"
)

// guiStateSidecarPath returns the path of the optional YAML sidecar that
// carries GUI-only state (window geometry, view state) alongside a
// config file, keeping the primary JSON document diff-friendly when
// only the GUI layout changes.
func guiStateSidecarPath(cfgPath string) string {
	return cfgPath + ".guistate"
}

// LoadGUIStateSidecar reads the sidecar file for cfgPath, if present.
// Returns a nil map and no error when the sidecar does not exist.
func LoadGUIStateSidecar(cfgPath string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(guiStateSidecarPath(cfgPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nxerrors.Wrapf(err, "reading gui state sidecar for %s", cfgPath)
	}
	var state map[string]interface{}
	if err := yaml.Unmarshal(raw, &state); err != nil {
		return nil, nxerrors.Wrapf(err, "parsing gui state sidecar for %s", cfgPath)
	}
	return state, nil
}

// SaveGUIStateSidecar writes state to cfgPath's sidecar file. Passing a
// nil or empty map removes the sidecar rather than writing an empty
// file.
func SaveGUIStateSidecar(cfgPath string, state map[string]interface{}) error {
	path := guiStateSidecarPath(cfgPath)
	if len(state) == 0 {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return nxerrors.Wrapf(err, "removing gui state sidecar for %s", cfgPath)
		}
		return nil
	}
	raw, err := yaml.Marshal(state)
	if err != nil {
		return nxerrors.Wrapf(err, "marshaling gui state sidecar for %s", cfgPath)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nxerrors.Wrapf(err, "writing gui state sidecar for %s", cfgPath)
	}
	return nil
}
