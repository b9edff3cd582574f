// Package config implements two layers of configuration: ambient
// runtime settings (viper + TOML, layered as system then user then
// environment) and the JSON graph configuration document that
// describes an application's filters and connections.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/nexxt-run/nexxt/nxerrors"
)

// Ambient holds process-wide runtime settings unrelated to any one
// filter graph: default verbosity, plugin search paths, and similar
// knobs a user sets once per machine rather than per configuration
// file.
type Ambient struct {
	Verbosity           string   `mapstructure:"verbosity"`
	PluginSearchPaths   []string `mapstructure:"plugin_search_paths"`
	DisableUnloadHeuristic bool  `mapstructure:"disable_unload_heuristic"`
	SaveMemory          bool     `mapstructure:"save_memory"`
}

var (
	ambientCached *Ambient
	ambientViper  *viper.Viper
)

// LoadAmbient reads /etc/nexxt/nexxt.toml, then ~/.nexxt/nexxt.toml,
// then NEXXT_-prefixed environment variables, each layer overriding the
// previous.
func LoadAmbient() (*Ambient, error) {
	if ambientCached != nil {
		return ambientCached, nil
	}

	v := initAmbientViper()
	var a Ambient
	if err := v.Unmarshal(&a); err != nil {
		return nil, nxerrors.Wrapf(err, "unmarshaling ambient config")
	}
	ambientCached = &a
	return ambientCached, nil
}

// ResetAmbient clears the cached ambient configuration. Used by tests.
func ResetAmbient() {
	ambientCached = nil
	ambientViper = nil
}

func initAmbientViper() *viper.Viper {
	if ambientViper != nil {
		return ambientViper
	}

	v := viper.New()
	v.SetEnvPrefix("NEXXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setAmbientDefaults(v)
	mergeAmbientFiles(v)

	ambientViper = v
	return v
}

func setAmbientDefaults(v *viper.Viper) {
	v.SetDefault("verbosity", "INFO")
	v.SetDefault("disable_unload_heuristic", false)
	v.SetDefault("save_memory", false)
}

// mergeAmbientFiles merges /etc/nexxt/nexxt.toml (system, lowest
// precedence) and ~/.nexxt/nexxt.toml (user) into v, in that order, so
// later merges win.
func mergeAmbientFiles(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	nexxtDir := filepath.Join(home, ".nexxt")
	_ = os.MkdirAll(nexxtDir, 0o755)

	paths := []string{
		"/etc/nexxt/nexxt.toml",
		filepath.Join(nexxtDir, "nexxt.toml"),
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		tmp := viper.New()
		tmp.SetConfigFile(path)
		tmp.SetConfigType("toml")
		if err := tmp.ReadInConfig(); err != nil {
			continue
		}
		settings := tmp.AllSettings()
		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_ = v.MergeConfigMap(map[string]interface{}{k: settings[k]})
		}
	}
}

// SaveAmbientDefault writes a starter ~/.nexxt/nexxt.toml if none
// exists, so a first run has something to edit.
func SaveAmbientDefault(a Ambient) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nxerrors.Wrapf(err, "resolving home directory")
	}
	dir := filepath.Join(home, ".nexxt")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nxerrors.Wrapf(err, "creating %s", dir)
	}
	path := filepath.Join(dir, "nexxt.toml")
	f, err := os.Create(path)
	if err != nil {
		return nxerrors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(a)
}
