package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeLogger struct{ name string }

func TestRegisterAndGet(t *testing.T) {
	defer Reset()

	Register(Logging, &fakeLogger{name: "main"})
	got, err := Get(Logging)
	require.NoError(t, err)
	require.Equal(t, &fakeLogger{name: "main"}, got)
}

func TestGetUnregisteredFails(t *testing.T) {
	defer Reset()
	_, err := Get(MainWindow)
	require.Error(t, err)
}

func TestUnregisterRemovesService(t *testing.T) {
	defer Reset()
	Register(Profiling, "x")
	Unregister(Profiling)
	_, err := Get(Profiling)
	require.Error(t, err)
}
