// Package session drives one end-to-end test session:
// PARSE -> PREPARE -> WARMUP -> RUN -> COOLDOWN -> REPORT, driving a
// protection tester against the publisher manager and GOOSE subscriber.
// TEARDOWN runs as Run returns, once PREPARE has started anything (after
// REPORT on a successful run). The GOOSE subscriber's receive loop runs on
// its own goroutine alongside these steps and has no state of its own.
package session

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/virtualtestset/vpac/pkg/config"
	"github.com/virtualtestset/vpac/pkg/errs"
	"github.com/virtualtestset/vpac/pkg/goose"
	"github.com/virtualtestset/vpac/pkg/phasor"
	"github.com/virtualtestset/vpac/pkg/publisher"
	"github.com/virtualtestset/vpac/pkg/reporting"
	"github.com/virtualtestset/vpac/pkg/sink"
	"github.com/virtualtestset/vpac/pkg/sv"
	"github.com/virtualtestset/vpac/pkg/telemetry"
	"github.com/virtualtestset/vpac/pkg/tripsignal"
	"github.com/virtualtestset/vpac/pkg/triprule"
	"github.com/virtualtestset/vpac/pkg/workerpool"
)

// State is one step of the session lifecycle.
type State int

const (
	StateParse State = iota
	StatePrepare
	StateWarmup
	StateRun
	StateCooldown
	StateTeardown
	StateReport
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateParse:
		return "PARSE"
	case StatePrepare:
		return "PREPARE"
	case StateWarmup:
		return "WARMUP"
	case StateRun:
		return "RUN"
	case StateCooldown:
		return "COOLDOWN"
	case StateTeardown:
		return "TEARDOWN"
	case StateReport:
		return "REPORT"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// TesterFunc hands control to the selected tester (ramping/distance/
// overcurrent/differential/sequence), driving phasor state through mgr and
// polling trip. It returns the per-point results that populate the report.
type TesterFunc func(mgr *publisher.Manager, trip *tripsignal.Signal) ([]reporting.PointResult, error)

// Runner owns the worker pool, publisher manager, and GOOSE subscriber for
// one session and carries it through its full lifecycle.
type Runner struct {
	iface    string
	openSink sink.OpenFunc
	log      *telemetry.Logger
	met      *telemetry.Metrics

	state    State
	auditLog []reporting.AuditEntry

	tripMu    sync.Mutex
	tripEdges []reporting.TripEvent
	tripUnsub func()
	tripDone  chan struct{}

	pool *workerpool.Pool
	mgr  *publisher.Manager
	trip *tripsignal.Signal
	sub  *goose.Subscriber
	eval *triprule.Evaluator

	stopSub chan struct{}
}

// New creates a Runner bound to the interface every stream and the GOOSE
// subscription open their sinks on.
func New(iface string, openSink sink.OpenFunc, log *telemetry.Logger, met *telemetry.Metrics) *Runner {
	if log == nil {
		log = telemetry.Nop()
	}
	return &Runner{
		iface:    iface,
		openSink: openSink,
		log:      log,
		met:      met,
		state:    StateParse,
	}
}

// Run drives cfg through the full session lifecycle, calling tester during
// the RUN step, and returns the assembled report. A PARSE failure leaves
// no state at all; a PREPARE failure tears down whatever PREPARE had
// already started. A RUN or later failure still runs TEARDOWN, collecting
// errors rather than aborting on the first failed stream.
func (r *Runner) Run(cfg *config.Config, scenarioName string, tester TesterFunc) (*reporting.TestReport, error) {
	testID := fmt.Sprintf("test-%d", time.Now().UnixNano())
	startTime := time.Now()

	report := &reporting.TestReport{
		TestID:       testID,
		ScenarioName: scenarioName,
		StartTime:    startTime,
	}

	r.transition(StateParse)
	if err := cfg.Validate(); err != nil {
		return r.failReport(report, errs.New(errs.KindConfigInvalid, "session.Run", err))
	}

	r.transition(StatePrepare)
	if err := r.prepare(cfg); err != nil {
		r.transition(StateTeardown)
		r.teardown(cfg, report)
		return r.failReport(report, err)
	}
	for _, s := range cfg.Streams {
		report.Streams = append(report.Streams, reporting.StreamInfo{StreamID: s.StreamID, SvID: s.SvID, AppID: s.AppID})
	}

	// TEARDOWN always runs once PREPARE has created any state, collecting
	// errors rather than aborting on the first failed stream.
	defer func() {
		r.transition(StateTeardown)
		r.teardown(cfg, report)
	}()

	r.transition(StateWarmup)
	time.Sleep(time.Duration(cfg.Framework.WarmupSec * float64(time.Second)))

	r.transition(StateRun)
	points, err := tester(r.mgr, r.trip)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	}
	report.Points = points

	r.transition(StateCooldown)
	r.cooldown(cfg)

	r.transition(StateReport)
	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime).String()
	report.Status = reporting.StatusCompleted
	report.Success = err == nil && allPassed(points)
	if !report.Success && report.Message == "" {
		report.Message = "one or more test points failed"
	}

	r.transition(StateCompleted)
	return report, nil
}

func allPassed(points []reporting.PointResult) bool {
	for _, p := range points {
		if !p.Passed {
			return false
		}
	}
	return true
}

func (r *Runner) prepare(cfg *config.Config) error {
	r.pool = workerpool.New(workerpool.Config{
		NumWorkers:    cfg.WorkerPool.NumWorkers,
		QueueCapacity: cfg.WorkerPool.QueueCapacity,
		RTPriority:    cfg.WorkerPool.RTPriority,
		CPUSet:        cfg.WorkerPool.CPUSet,
		Log:           r.log,
	})
	r.mgr = publisher.New(r.pool, r.log, r.met)
	r.trip = tripsignal.New()

	// Every 0->1 trip transition is recorded into the report's trip-event
	// audit trail and counted in the metrics, independent of which tester
	// (if any) is watching the flag at that moment.
	edges, unsub := r.trip.Subscribe()
	r.tripUnsub = unsub
	r.tripDone = make(chan struct{})
	go func() {
		defer close(r.tripDone)
		for e := range edges {
			r.tripMu.Lock()
			r.tripEdges = append(r.tripEdges, reporting.TripEvent{RuleName: e.RuleName, Time: e.At})
			r.tripMu.Unlock()
			if r.met != nil {
				r.met.TripTransitions.Inc()
			}
		}
	}()

	// The evaluator's DataSource is the live GOOSE subscriber's
	// data-object map once a subscription exists; with no subscriptions configured it falls
	// back to an in-memory MapSource so rule syntax can still be exercised
	// standalone.
	var src triprule.DataSource
	if len(cfg.GooseSubs) > 0 {
		src = triprule.NewGooseSource(&goosePointsLazy{r: r})
	} else {
		src = triprule.NewMapSource()
	}
	r.eval = triprule.New(src)
	for name, expr := range cfg.TripRules {
		if err := r.eval.AddRule(name, expr); err != nil {
			return err
		}
	}
	// Each enabled GOOSE subscription may carry its own trip rule text,
	// named by its go_cb_ref so a rule-fired report can be traced back to
	// the subscription that triggered it.
	for _, sub := range cfg.GooseSubs {
		if !sub.Enabled || sub.TripRuleText == "" {
			continue
		}
		if err := r.eval.AddRule(sub.GoCBRef, sub.TripRuleText); err != nil {
			return err
		}
	}

	for _, s := range cfg.Streams {
		initial := NominalState(s.NominalFreq)
		if err := r.mgr.Create(s, initial, r.openSink, r.iface); err != nil {
			r.recordAudit("stream_create", s.StreamID, err)
			return err
		}
		r.recordAudit("stream_create", s.StreamID, nil)
		if err := r.mgr.Start(s.StreamID); err != nil {
			r.recordAudit("stream_start", s.StreamID, err)
			return err
		}
		r.recordAudit("stream_start", s.StreamID, nil)
	}

	if len(cfg.GooseSubs) > 0 && r.openSink != nil {
		conn, err := r.openSink(r.iface)
		if err != nil {
			r.recordAudit("goose_sink_open", r.iface, err)
			return err
		}
		if fs, ok := conn.(sink.FilterSetter); ok {
			if err := fs.SetEtherTypeFilter(goose.EtherTypeGOOSE); err != nil {
				r.log.Warn("goose bpf filter install failed, filtering in software only", "error", err)
			}
		}
		r.sub = goose.NewSubscriber(conn, evaluatorAdapter{r}, r.log, r.met)
		r.stopSub = make(chan struct{})
		go r.sub.Run(r.stopSub, 100*time.Millisecond)
		r.recordAudit("goose_subscriber_start", r.iface, nil)
	}

	return nil
}

// goosePointsLazy defers binding to r.sub until first use: the evaluator's
// DataSource is constructed before the subscriber's sink is opened later in
// prepare(), so the indirection can't capture *goose.Subscriber directly.
type goosePointsLazy struct {
	r *Runner
}

func (g *goosePointsLazy) Point(key string) (goose.DataPoint, bool) {
	if g.r.sub == nil {
		return goose.DataPoint{}, false
	}
	return g.r.sub.Point(key)
}

// evaluatorAdapter satisfies goose.Evaluator, raising the trip flag when a
// rule fires.
type evaluatorAdapter struct {
	r *Runner
}

func (a evaluatorAdapter) Evaluate() (string, bool) {
	name, ok := a.r.eval.Evaluate()
	if ok {
		a.r.trip.Set(name)
	}
	return name, ok
}

func (r *Runner) cooldown(cfg *config.Config) {
	for _, s := range cfg.Streams {
		if err := r.mgr.ApplyFaultState(s.StreamID, NominalState(s.NominalFreq)); err != nil {
			r.recordAudit("cooldown_restore", s.StreamID, err)
			continue
		}
		r.recordAudit("cooldown_restore", s.StreamID, nil)
	}
}

func (r *Runner) teardown(cfg *config.Config, report *reporting.TestReport) {
	if r.stopSub != nil {
		close(r.stopSub)
		r.recordAudit("goose_subscriber_stop", r.iface, nil)
	}

	if r.tripUnsub != nil {
		r.tripUnsub()
		<-r.tripDone // collector drains any buffered edges before we snapshot
		r.tripMu.Lock()
		report.TripEvents = append([]reporting.TripEvent(nil), r.tripEdges...)
		r.tripMu.Unlock()
	}

	if r.mgr != nil {
		for _, s := range cfg.Streams {
			if _, err := r.mgr.Instance(s.StreamID); err != nil {
				continue // never created: PREPARE failed before reaching it
			}
			err := r.mgr.Stop(s.StreamID)
			r.recordAudit("stream_stop", s.StreamID, err)
			if err != nil {
				report.Errors = append(report.Errors, err.Error())
			}
		}
	}

	if r.pool != nil {
		r.pool.Shutdown()
		r.recordAudit("worker_pool_shutdown", "", nil)
	}

	report.AuditLog = r.auditLog
}

func (r *Runner) recordAudit(step, target string, err error) {
	entry := reporting.AuditEntry{
		Timestamp: time.Now(),
		Step:      step,
		Target:    target,
		Success:   err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.auditLog = append(r.auditLog, entry)
}

func (r *Runner) transition(s State) {
	r.log.Info("session state transition", "from", r.state.String(), "to", s.String())
	r.state = s
}

func (r *Runner) failReport(report *reporting.TestReport, err error) (*reporting.TestReport, error) {
	r.transition(StateFailed)
	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime).String()
	report.Status = reporting.StatusFailed
	report.Success = false
	report.Message = err.Error()
	report.Errors = append(report.Errors, err.Error())
	report.AuditLog = r.auditLog
	return report, err
}

// NominalState is the balanced 3-phase prefault/cooldown state applied to
// every stream, matching the textbook 120 V / 1 A balanced system the
// tester and sequence packages assume. Exported so cmd/vpacd can build the
// same nominal snapshot for streams outside a Runner-driven session (e.g.
// "serve").
func NominalState(freqHz float64) *sv.PhasorState {
	if freqHz <= 0 {
		freqHz = 60
	}
	const twoPiOverThree = 2 * math.Pi / 3
	return &sv.PhasorState{
		FreqHz: freqHz,
		Components: map[phasor.Channel]phasor.Component{
			phasor.ChVA: {MagnitudePrimary: 120, AngleRad: 0},
			phasor.ChVB: {MagnitudePrimary: 120, AngleRad: -twoPiOverThree},
			phasor.ChVC: {MagnitudePrimary: 120, AngleRad: twoPiOverThree},
			phasor.ChIA: {MagnitudePrimary: 1, AngleRad: 0},
			phasor.ChIB: {MagnitudePrimary: 1, AngleRad: -twoPiOverThree},
			phasor.ChIC: {MagnitudePrimary: 1, AngleRad: twoPiOverThree},
		},
	}
}
