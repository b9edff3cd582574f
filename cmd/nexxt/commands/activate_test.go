package commands

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexxt-run/nexxt/graph"
)

func TestSelectApplicationByName(t *testing.T) {
	apps := map[string]*graph.SubConfiguration{
		"demo": graph.NewApplication("demo"),
	}
	sub, err := selectApplication(apps, "demo")
	require.NoError(t, err)
	require.Equal(t, "demo", sub.Name)
}

func TestSelectApplicationUnknownNameFails(t *testing.T) {
	apps := map[string]*graph.SubConfiguration{
		"demo": graph.NewApplication("demo"),
	}
	_, err := selectApplication(apps, "missing")
	require.Error(t, err)
}

func TestSelectApplicationDefaultsToFirstWhenNameEmpty(t *testing.T) {
	apps := map[string]*graph.SubConfiguration{
		"only": graph.NewApplication("only"),
	}
	sub, err := selectApplication(apps, "")
	require.NoError(t, err)
	require.Equal(t, "only", sub.Name)
}

func TestSelectApplicationFailsWhenNoneDeclared(t *testing.T) {
	_, err := selectApplication(map[string]*graph.SubConfiguration{}, "")
	require.Error(t, err)
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "a", firstNonEmpty("", "a", "b"))
	require.Equal(t, "", firstNonEmpty("", ""))
}
