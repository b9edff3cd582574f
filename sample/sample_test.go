package sample

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentIsIndependentCopy(t *testing.T) {
	s := New([]byte("hello"), "text/plain", 42)

	c1 := s.Content()
	c1[0] = 'X'

	c2 := s.Content()
	require.Equal(t, []byte("hello"), c2)
}

func TestCopyIsIndependent(t *testing.T) {
	s := New([]byte("hello"), "text/plain", 42)
	s2 := s.Copy()

	require.Equal(t, s.Content(), s2.Content())
	require.Equal(t, s.Datatype(), s2.Datatype())
	require.Equal(t, s.Timestamp(), s2.Timestamp())

	// mutating the original's backing slice via Content() never reaches s2
	c := s.Content()
	c[0] = 'Z'
	require.Equal(t, []byte("hello"), s2.Content())
}

func TestRetainRelease(t *testing.T) {
	s := New([]byte("x"), "t", 1)
	s.Retain()
	s.Release()
	require.NotPanics(t, func() { s.Release() })
}

func TestCurrentTimeMonotonic(t *testing.T) {
	var prev int64
	for i := 0; i < 1000; i++ {
		now := CurrentTime()
		require.Greater(t, now, prev)
		prev = now
	}
}

func TestClockResolutionNonNegative(t *testing.T) {
	CurrentTime()
	CurrentTime()
	require.GreaterOrEqual(t, ClockResolution(), int64(0))
}

func TestPoolGetReturnsRequestedSize(t *testing.T) {
	p := NewPool()
	s := p.Get("frame/rgb", 16, 100)
	require.Len(t, s.Content(), 16)
	require.Equal(t, "frame/rgb", s.Datatype())
	require.Equal(t, int64(100), s.Timestamp())
}

func TestPoolPutAndReuse(t *testing.T) {
	p := NewPool()
	s1 := p.Get("frame/rgb", 16, 1)
	p.Put(s1)

	s2 := p.Get("frame/rgb", 16, 2)
	require.Len(t, s2.Content(), 16)
	require.Equal(t, int64(2), s2.Timestamp())
}
