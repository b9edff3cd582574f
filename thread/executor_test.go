package thread

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexxt-run/nexxt/port"
	"github.com/nexxt-run/nexxt/sample"
)

type recordingDeliverer struct {
	mu  sync.Mutex
	got []*sample.Sample
}

func (r *recordingDeliverer) DeliverPortData(p *port.InputPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, p.GetData(0, nil))
}

func (r *recordingDeliverer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type stubOwner struct{}

func (stubOwner) FullyQualifiedName() string { return "stub" }
func (stubOwner) OnThread() bool             { return true }
func (stubOwner) State() string              { return "ACTIVE" }

func TestExecutorDeliversInOrder(t *testing.T) {
	e := NewExecutor()
	go e.Run()
	defer func() { e.Clear() }()

	d := &recordingDeliverer{}
	ip := port.NewInputPort(stubOwner{}, "in0", false)
	require.NoError(t, ip.SetQueueSize(0, 0))

	ip.Enqueue(sample.New([]byte("a"), "t", 1))
	e.Post(d, ip, nil)

	require.Eventually(t, func() bool { return d.count() == 1 }, time.Second, time.Millisecond)
}

func TestExecutorFinalizeBoundsDrain(t *testing.T) {
	e := NewExecutor()
	d := &recordingDeliverer{}
	ip := port.NewInputPort(stubOwner{}, "in0", false)

	for i := 0; i < MaxLoopsFinalize+5; i++ {
		e.Post(d, ip, nil)
	}
	e.Finalize()
	require.LessOrEqual(t, d.count(), MaxLoopsFinalize)
}

func TestExecutorClearDiscardsFurtherPosts(t *testing.T) {
	e := NewExecutor()
	e.Clear()

	d := &recordingDeliverer{}
	ip := port.NewInputPort(stubOwner{}, "in0", false)
	e.Post(d, ip, nil)

	require.Equal(t, 0, e.QueueLen())
}
