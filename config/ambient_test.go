package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAmbientDefaults(t *testing.T) {
	ResetAmbient()
	defer ResetAmbient()

	a, err := LoadAmbient()
	require.NoError(t, err)
	require.Equal(t, "INFO", a.Verbosity)
	require.False(t, a.SaveMemory)
}

func TestLoadAmbientEnvOverride(t *testing.T) {
	ResetAmbient()
	defer ResetAmbient()

	t.Setenv("NEXXT_VERBOSITY", "DEBUG")
	a, err := LoadAmbient()
	require.NoError(t, err)
	require.Equal(t, "DEBUG", a.Verbosity)
}

func TestLoadAmbientCaches(t *testing.T) {
	ResetAmbient()
	defer ResetAmbient()

	first, err := LoadAmbient()
	require.NoError(t, err)
	second, err := LoadAmbient()
	require.NoError(t, err)
	require.Same(t, first, second)
}
