package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexxt-run/nexxt/nxerrors"
	"github.com/nexxt-run/nexxt/port"
)

type recordingFilter struct {
	Base

	calls []string
	errOn string

	dynIn  bool
	dynOut bool

	lastPort *port.InputPort
}

func (f *recordingFilter) OnInit(*Environment) error {
	f.calls = append(f.calls, "init")
	return f.maybeErr("init")
}

func (f *recordingFilter) OnOpen(*Environment) error {
	f.calls = append(f.calls, "open")
	return f.maybeErr("open")
}

func (f *recordingFilter) OnStart(*Environment) error {
	f.calls = append(f.calls, "start")
	return f.maybeErr("start")
}

func (f *recordingFilter) OnStop(*Environment) error {
	f.calls = append(f.calls, "stop")
	return f.maybeErr("stop")
}

func (f *recordingFilter) OnClose(*Environment) error {
	f.calls = append(f.calls, "close")
	return f.maybeErr("close")
}

func (f *recordingFilter) OnDeinit(*Environment) error {
	f.calls = append(f.calls, "deinit")
	return f.maybeErr("deinit")
}

func (f *recordingFilter) OnPortDataChanged(_ *Environment, p *port.InputPort) error {
	f.calls = append(f.calls, "portDataChanged")
	f.lastPort = p
	return f.maybeErr("portDataChanged")
}

func (f *recordingFilter) SupportsDynamicInputPorts() bool  { return f.dynIn }
func (f *recordingFilter) SupportsDynamicOutputPorts() bool { return f.dynOut }

func (f *recordingFilter) maybeErr(op string) error {
	if f.errOn == op {
		return nxerrors.New("boom")
	}
	return nil
}

func advance(t *testing.T, e *Environment, ops ...string) {
	t.Helper()
	for _, op := range ops {
		require.NoError(t, e.Transition(op))
	}
}

func TestNewStartsConstructed(t *testing.T) {
	e := New("f1", &recordingFilter{})
	require.Equal(t, string(Constructed), e.State())
}

func TestTransitionFullLifecycle(t *testing.T) {
	rf := &recordingFilter{}
	e := New("f1", rf)

	require.NoError(t, e.Transition("init"))
	require.Equal(t, string(Initialized), e.State())

	require.NoError(t, e.Transition("open"))
	require.Equal(t, string(Opened), e.State())

	require.NoError(t, e.Transition("start"))
	require.Equal(t, string(Active), e.State())

	require.NoError(t, e.Transition("stop"))
	require.Equal(t, string(Opened), e.State())

	require.NoError(t, e.Transition("close"))
	require.Equal(t, string(Initialized), e.State())

	require.NoError(t, e.Transition("deinit"))
	require.Equal(t, string(Constructed), e.State())

	require.Equal(t, []string{"init", "open", "start", "stop", "close", "deinit"}, rf.calls)
}

func TestTransitionIllegalFromState(t *testing.T) {
	e := New("f1", &recordingFilter{})
	err := e.Transition("start")
	require.Error(t, err)
	require.True(t, nxerrors.Is(err, nxerrors.ErrFilterStateMachine))
	require.Equal(t, string(Constructed), e.State())
}

func TestTransitionRevertsStateOnCallbackError(t *testing.T) {
	rf := &recordingFilter{errOn: "init"}
	e := New("f1", rf)

	err := e.Transition("init")
	require.NoError(t, err) // log-and-continue, not propagated
	require.Equal(t, string(Constructed), e.State())
}

func TestTransitionContinuesAfterRevert(t *testing.T) {
	rf := &recordingFilter{errOn: "init"}
	e := New("f1", rf)

	require.NoError(t, e.Transition("init"))
	require.Equal(t, string(Constructed), e.State())

	rf.errOn = ""
	require.NoError(t, e.Transition("init"))
	require.Equal(t, string(Initialized), e.State())
}

func TestDestructFromConstructed(t *testing.T) {
	e := New("f1", &recordingFilter{})
	require.NoError(t, e.Destruct())
	require.Equal(t, string(Destructed), e.State())
}

func TestDestructIllegalFromOtherStates(t *testing.T) {
	e := New("f1", &recordingFilter{})
	advance(t, e, "init")
	err := e.Destruct()
	require.Error(t, err)
	require.True(t, nxerrors.Is(err, nxerrors.ErrFilterStateMachine))
}

func TestDeliverPortDataActiveDelivers(t *testing.T) {
	rf := &recordingFilter{}
	e := New("f1", rf)
	advance(t, e, "init", "open", "start")
	require.Equal(t, string(Active), e.State())

	p, err := e.AddInputPort("in0", false)
	require.NoError(t, err)

	e.DeliverPortData(p)
	require.Equal(t, []string{"init", "open", "start", "portDataChanged"}, rf.calls)
	require.Same(t, p, rf.lastPort)
}

func TestDeliverPortDataOpenedDropsSilently(t *testing.T) {
	rf := &recordingFilter{}
	e := New("f1", rf)
	advance(t, e, "init", "open")
	require.Equal(t, string(Opened), e.State())

	p, err := e.AddInputPort("in0", false)
	require.NoError(t, err)

	e.DeliverPortData(p)
	require.Equal(t, []string{"init", "open"}, rf.calls) // no portDataChanged call
}

func TestDeliverPortDataOtherStateDiscardsWithoutCallback(t *testing.T) {
	rf := &recordingFilter{}
	e := New("f1", rf)
	require.Equal(t, string(Constructed), e.State())

	p, err := e.AddInputPort("in0", false)
	require.NoError(t, err)

	e.DeliverPortData(p)
	require.Empty(t, rf.calls)
}

func TestAddInputPortStaticAllowedWhileConstructing(t *testing.T) {
	e := New("f1", &recordingFilter{})
	p, err := e.AddInputPort("in0", false)
	require.NoError(t, err)
	require.Equal(t, "in0", p.Name())

	got, ok := e.InputPort("in0")
	require.True(t, ok)
	require.Same(t, p, got)
}

func TestAddInputPortDuplicateRejected(t *testing.T) {
	e := New("f1", &recordingFilter{})
	_, err := e.AddInputPort("in0", false)
	require.NoError(t, err)

	_, err = e.AddInputPort("in0", false)
	require.Error(t, err)
	require.True(t, nxerrors.Is(err, nxerrors.ErrPortExists))
}

func TestAddInputPortDynamicRejectedWhenUnsupported(t *testing.T) {
	e := New("f1", &recordingFilter{dynIn: false})
	_, err := e.AddInputPort("in0", true)
	require.Error(t, err)
	require.True(t, nxerrors.Is(err, nxerrors.ErrDynamicPortUnsupported))
}

func TestAddInputPortDynamicAllowedWhenSupported(t *testing.T) {
	e := New("f1", &recordingFilter{dynIn: true})
	p, err := e.AddInputPort("in0", true)
	require.NoError(t, err)
	require.True(t, p.Dynamic())
}

func TestAddInputPortDynamicRejectedOnceActive(t *testing.T) {
	rf := &recordingFilter{dynIn: true}
	e := New("f1", rf)
	advance(t, e, "init", "open", "start")

	_, err := e.AddInputPort("in1", true)
	require.Error(t, err)
	require.True(t, nxerrors.Is(err, nxerrors.ErrDynamicPortState))
}

func TestAddOutputPortDynamicRejectedWhenUnsupported(t *testing.T) {
	e := New("f1", &recordingFilter{dynOut: false})
	_, err := e.AddOutputPort("out0", true)
	require.Error(t, err)
	require.True(t, nxerrors.Is(err, nxerrors.ErrDynamicPortUnsupported))
}

func TestAddOutputPortDuplicateRejected(t *testing.T) {
	e := New("f1", &recordingFilter{})
	_, err := e.AddOutputPort("out0", false)
	require.NoError(t, err)

	_, err = e.AddOutputPort("out0", false)
	require.Error(t, err)
	require.True(t, nxerrors.Is(err, nxerrors.ErrPortExists))
}

func TestOnThreadDefaultsTrueWithoutExecutorWiring(t *testing.T) {
	e := New("f1", &recordingFilter{})
	require.True(t, e.OnThread())
}

func TestSetOnThreadFunc(t *testing.T) {
	e := New("f1", &recordingFilter{})
	e.SetOnThreadFunc(func() bool { return false })
	require.False(t, e.OnThread())
}

func TestThreadNameDefaultAndOverride(t *testing.T) {
	e := New("f1", &recordingFilter{})
	require.Equal(t, "main", e.ThreadName())

	e.SetThreadName("worker1")
	require.Equal(t, "worker1", e.ThreadName())
}

func TestInputPortsSnapshot(t *testing.T) {
	e := New("f1", &recordingFilter{})
	_, err := e.AddInputPort("a", false)
	require.NoError(t, err)
	_, err = e.AddInputPort("b", false)
	require.NoError(t, err)

	ports := e.InputPorts()
	require.Len(t, ports, 2)

	delete(ports, "a")
	_, stillThere := e.InputPort("a")
	require.True(t, stillThere, "mutating the snapshot must not affect the environment")
}
