package session

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualtestset/vpac/pkg/config"
	"github.com/virtualtestset/vpac/pkg/publisher"
	"github.com/virtualtestset/vpac/pkg/reporting"
	"github.com/virtualtestset/vpac/pkg/sink"
	"github.com/virtualtestset/vpac/pkg/sv"
	"github.com/virtualtestset/vpac/pkg/tripsignal"
)

func testSessionConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Framework.WarmupSec = 0.01
	cfg.Streams = []sv.StreamConfig{{
		StreamID:    "s1",
		SvID:        "TestSV01",
		AppID:       0x4000,
		MACDst:      net.HardwareAddr{0x01, 0x0C, 0xCD, 0x04, 0x00, 0x00},
		ConfRev:     1,
		SmpRate:     4800,
		NASDU:       1,
		NChannels:   8,
		NominalFreq: 60,
	}}
	return cfg
}

func memOpen(bus *sink.Bus) sink.OpenFunc {
	return func(iface string) (sink.Sink, error) {
		return sink.NewMemorySink(net.HardwareAddr{2, 0, 0, 0, 0, 1}, bus), nil
	}
}

func TestRunnerFullLifecycleProducesReport(t *testing.T) {
	cfg := testSessionConfig()
	r := New("lo", memOpen(sink.NewBus()), nil, nil)

	report, err := r.Run(cfg, "unit", func(mgr *publisher.Manager, trip *tripsignal.Signal) ([]reporting.PointResult, error) {
		// The tester sees a live, started stream and a usable trip signal.
		inst, err := mgr.Instance("s1")
		require.NoError(t, err)
		assert.Equal(t, sv.StatusRunning, inst.Runtime().Status())

		trip.Set("51P-1")
		return []reporting.PointResult{{Label: "p1", Tester: "unit", Tripped: true, Passed: true}}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.True(t, report.Success)
	assert.Equal(t, reporting.StatusCompleted, report.Status)
	require.Len(t, report.Points, 1)
	require.Len(t, report.Streams, 1)
	assert.Equal(t, "s1", report.Streams[0].StreamID)

	// The trip raised during RUN lands in the report's trip-event trail.
	require.Len(t, report.TripEvents, 1)
	assert.Equal(t, "51P-1", report.TripEvents[0].RuleName)

	// Teardown audit entries are present and the stream was stopped.
	var sawStop bool
	for _, e := range report.AuditLog {
		if e.Step == "stream_stop" && e.Target == "s1" {
			sawStop = true
			assert.True(t, e.Success)
		}
	}
	assert.True(t, sawStop, "audit log must record the stream stop")
}

func TestRunnerInvalidConfigFailsInParseWithNoPartialState(t *testing.T) {
	cfg := testSessionConfig()
	cfg.Streams = nil // invalid: no streams

	r := New("lo", memOpen(sink.NewBus()), nil, nil)
	report, err := r.Run(cfg, "unit", func(mgr *publisher.Manager, trip *tripsignal.Signal) ([]reporting.PointResult, error) {
		t.Fatal("tester must not run when PARSE fails")
		return nil, nil
	})
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, reporting.StatusFailed, report.Status)
	assert.False(t, report.Success)
	assert.Empty(t, report.AuditLog)
}

func TestRunnerFailedPointMarksReportUnsuccessful(t *testing.T) {
	cfg := testSessionConfig()
	r := New("lo", memOpen(sink.NewBus()), nil, nil)

	report, err := r.Run(cfg, "unit", func(mgr *publisher.Manager, trip *tripsignal.Signal) ([]reporting.PointResult, error) {
		return []reporting.PointResult{{Label: "p1", Tester: "unit", Passed: false}}, nil
	})
	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.NotEmpty(t, report.Message)
}

func TestRunnerTesterErrorIsRecordedButTeardownStillRuns(t *testing.T) {
	cfg := testSessionConfig()
	r := New("lo", memOpen(sink.NewBus()), nil, nil)

	report, err := r.Run(cfg, "unit", func(mgr *publisher.Manager, trip *tripsignal.Signal) ([]reporting.PointResult, error) {
		return nil, fmt.Errorf("stimulus write failed")
	})
	require.NoError(t, err, "a tester error is recorded in the report, not returned")
	assert.False(t, report.Success)
	assert.Contains(t, report.Errors, "stimulus write failed")

	var sawShutdown bool
	for _, e := range report.AuditLog {
		if e.Step == "worker_pool_shutdown" {
			sawShutdown = true
		}
	}
	assert.True(t, sawShutdown)
}

func TestNominalStateIsBalanced(t *testing.T) {
	s := NominalState(50)
	assert.Equal(t, 50.0, s.FreqHz)
	assert.Equal(t, 120.0, s.Components["V-A"].MagnitudePrimary)
	assert.Equal(t, 1.0, s.Components["I-A"].MagnitudePrimary)

	// An out-of-range frequency falls back to 60 Hz.
	assert.Equal(t, 60.0, NominalState(0).FreqHz)
}

func TestRunnerTripEdgeIsObservableBeforeTeardown(t *testing.T) {
	cfg := testSessionConfig()
	r := New("lo", memOpen(sink.NewBus()), nil, nil)

	report, err := r.Run(cfg, "unit", func(mgr *publisher.Manager, trip *tripsignal.Signal) ([]reporting.PointResult, error) {
		trip.Set("87T")
		require.Eventually(t, trip.IsSet, time.Second, time.Millisecond)
		trip.Clear()
		trip.Set("67N")
		return []reporting.PointResult{{Label: "p", Tester: "unit", Passed: true}}, nil
	})
	require.NoError(t, err)
	require.Len(t, report.TripEvents, 2)
	assert.Equal(t, "87T", report.TripEvents[0].RuleName)
	assert.Equal(t, "67N", report.TripEvents[1].RuleName)
}
