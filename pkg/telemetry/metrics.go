package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide Prometheus registry and the named instruments
// every engine records to: SV publish counters, GOOSE receive counters, and
// a trip-flag transition counter.
type Metrics struct {
	Registry *prometheus.Registry

	SVFramesEmitted  *prometheus.CounterVec
	SVDeadlineMisses *prometheus.CounterVec
	SVSinkErrors     *prometheus.CounterVec
	SVSampleCounter  *prometheus.GaugeVec
	GooseFramesRecv  prometheus.Counter
	GooseParseErrors prometheus.Counter
	GooseDuplicates  prometheus.Counter
	TripTransitions  prometheus.Counter
}

// NewMetrics constructs and registers every instrument on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		SVFramesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vpac_sv_frames_emitted_total",
			Help: "SV ASDU frames successfully written to the packet sink.",
		}, []string{"stream_id"}),
		SVDeadlineMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vpac_sv_deadline_misses_total",
			Help: "Publisher ticks that missed their scheduled deadline.",
		}, []string{"stream_id"}),
		SVSinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vpac_sv_sink_errors_total",
			Help: "Non-fatal sink write errors, by kind.",
		}, []string{"stream_id", "kind"}),
		SVSampleCounter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vpac_sv_smp_cnt",
			Help: "Current smpCnt value of each publisher instance.",
		}, []string{"stream_id"}),
		GooseFramesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpac_goose_frames_received_total",
			Help: "GOOSE frames decoded successfully by the subscriber.",
		}),
		GooseParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpac_goose_parse_errors_total",
			Help: "GOOSE frames rejected by the BER decoder.",
		}),
		GooseDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpac_goose_duplicate_frames_total",
			Help: "GOOSE frames dropped as duplicate (gocbRef, stNum, sqNum).",
		}),
		TripTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpac_trip_flag_transitions_total",
			Help: "Observed 0->1 transitions of the process trip flag.",
		}),
	}

	reg.MustRegister(
		m.SVFramesEmitted, m.SVDeadlineMisses, m.SVSinkErrors, m.SVSampleCounter,
		m.GooseFramesRecv, m.GooseParseErrors, m.GooseDuplicates, m.TripTransitions,
	)
	return m
}

// Handler returns the HTTP handler to mount at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
