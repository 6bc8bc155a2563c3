package sv

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualtestset/vpac/pkg/phasor"
	"github.com/virtualtestset/vpac/pkg/sink"
	"github.com/virtualtestset/vpac/pkg/workerpool"
)

func TestInstanceStartEmitsFramesThenStopsCleanly(t *testing.T) {
	bus := sink.NewBus()
	rxSink := sink.NewMemorySink(net.HardwareAddr{0, 0, 0, 0, 0, 9}, bus)
	defer rxSink.Close()

	cfg := testConfig()
	cfg.SmpRate = 4800
	state := balancedState()
	pool := workerpool.New(workerpool.Config{NumWorkers: 2, QueueCapacity: 4})
	defer pool.Shutdown()

	openFn := func(iface string) (sink.Sink, error) {
		return sink.NewMemorySink(net.HardwareAddr{2, 0, 0, 0, 0, 1}, bus), nil
	}

	in := NewInstance(cfg, state, pool, openFn, "lo", nil, nil)
	require.NoError(t, in.Start())
	assert.Equal(t, StatusRunning, in.Runtime().Status())

	frame, err := rxSink.Read(2 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, frame, "expected at least one SV frame within the timeout")

	require.NoError(t, in.Stop(2*time.Second))
	assert.Equal(t, StatusStopped, in.Runtime().Status())
}

func TestInstanceStartTwiceIsRejectedBusy(t *testing.T) {
	bus := sink.NewBus()
	cfg := testConfig()
	state := balancedState()
	pool := workerpool.New(workerpool.Config{NumWorkers: 1, QueueCapacity: 4})
	defer pool.Shutdown()

	openFn := func(iface string) (sink.Sink, error) {
		return sink.NewMemorySink(net.HardwareAddr{2, 0, 0, 0, 0, 1}, bus), nil
	}

	in := NewInstance(cfg, state, pool, openFn, "lo", nil, nil)
	require.NoError(t, in.Start())
	defer in.Stop(time.Second)

	err := in.Start()
	require.Error(t, err)
}

func TestUpdateStateIsVisibleToSubsequentLoad(t *testing.T) {
	cfg := testConfig()
	state := balancedState()
	in := NewInstance(cfg, state, nil, nil, "", nil, nil)

	next := &PhasorState{FreqHz: 50, Components: map[phasor.Channel]phasor.Component{}}
	in.UpdateState(next)
	assert.Equal(t, 50.0, in.State().FreqHz)
}
