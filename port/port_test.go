package port

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexxt-run/nexxt/nxerrors"
	"github.com/nexxt-run/nexxt/sample"
)

type fakeOwner struct {
	name    string
	state   string
	onThrd  bool
}

func (f *fakeOwner) FullyQualifiedName() string { return f.name }
func (f *fakeOwner) OnThread() bool             { return f.onThrd }
func (f *fakeOwner) State() string              { return f.state }

func TestInputPortDefaultQueueSizeOne(t *testing.T) {
	owner := &fakeOwner{name: "f", state: "ACTIVE", onThrd: true}
	ip := NewInputPort(owner, "in0", false)

	ip.Enqueue(sample.New([]byte("a"), "t", 1))
	ip.Enqueue(sample.New([]byte("b"), "t", 2))

	require.Equal(t, 1, ip.QueueLen())
	got := ip.GetData(0, nil)
	require.Equal(t, []byte("b"), got.Content())
}

func TestInputPortGetDataBySamples(t *testing.T) {
	owner := &fakeOwner{name: "f", state: "CONSTRUCTED", onThrd: true}
	ip := NewInputPort(owner, "in0", false)
	require.NoError(t, ip.SetQueueSize(3, 0))

	ip.Enqueue(sample.New([]byte("a"), "t", 1))
	ip.Enqueue(sample.New([]byte("b"), "t", 2))
	ip.Enqueue(sample.New([]byte("c"), "t", 3))

	require.Equal(t, []byte("c"), ip.GetData(0, nil).Content())
	require.Equal(t, []byte("b"), ip.GetData(1, nil).Content())
	require.Equal(t, []byte("a"), ip.GetData(2, nil).Content())
	require.Nil(t, ip.GetData(3, nil))
}

func TestInputPortSetQueueSizeRejectedInActive(t *testing.T) {
	owner := &fakeOwner{name: "f", state: "ACTIVE", onThrd: true}
	ip := NewInputPort(owner, "in0", false)
	err := ip.SetQueueSize(5, 0)
	require.Error(t, err)
}

func TestInputPortSetQueueSizeForcesOneWhenBothNonPositive(t *testing.T) {
	owner := &fakeOwner{name: "f", state: "CONSTRUCTED", onThrd: true}
	ip := NewInputPort(owner, "in0", false)
	require.NoError(t, ip.SetQueueSize(0, 0))
	require.Equal(t, 1, ip.QueueSizeSamples())
}

func TestInputPortGetDataBySeconds(t *testing.T) {
	owner := &fakeOwner{name: "f", state: "CONSTRUCTED", onThrd: true}
	ip := NewInputPort(owner, "in0", false)
	require.NoError(t, ip.SetQueueSize(10, 0))

	ip.Enqueue(sample.New([]byte("a"), "t", 0))
	ip.Enqueue(sample.New([]byte("b"), "t", 1_000_000)) // 1s later in microseconds
	ip.Enqueue(sample.New([]byte("c"), "t", 2_000_000)) // 2s later

	delay := 1.5
	got := ip.GetData(0, &delay)
	require.NotNil(t, got)
	require.Equal(t, []byte("a"), got.Content())
}

func TestOutputPortWrongThread(t *testing.T) {
	owner := &fakeOwner{name: "f", state: "ACTIVE", onThrd: false}
	op := NewOutputPort(owner, "out0", false)
	err := op.Transmit(sample.New([]byte("x"), "t", 1))
	require.Error(t, err)
	require.True(t, nxerrors.Is(err, nxerrors.ErrWrongThread))
}

type recordingTransport struct{ got []*sample.Sample }

func (r *recordingTransport) Transmit(s *sample.Sample) error {
	r.got = append(r.got, s)
	return nil
}

func TestOutputPortTransmitsToWiredTransport(t *testing.T) {
	owner := &fakeOwner{name: "f", state: "ACTIVE", onThrd: true}
	op := NewOutputPort(owner, "out0", false)
	tr := &recordingTransport{}
	op.SetTransport(tr)

	s := sample.New([]byte("x"), "t", 1)
	require.NoError(t, op.Transmit(s))
	require.Len(t, tr.got, 1)
}

func TestOutputPortTransmitNoopWithoutTransport(t *testing.T) {
	owner := &fakeOwner{name: "f", state: "ACTIVE", onThrd: true}
	op := NewOutputPort(owner, "out0", false)
	require.NoError(t, op.Transmit(sample.New([]byte("x"), "t", 1)))
}
