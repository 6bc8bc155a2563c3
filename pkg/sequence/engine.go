package sequence

import (
	"fmt"
	"sync"
	"time"

	"github.com/virtualtestset/vpac/pkg/errs"
	"github.com/virtualtestset/vpac/pkg/publisher"
	"github.com/virtualtestset/vpac/pkg/telemetry"
)

// tickInterval is the engine's state-machine tick granularity.
const tickInterval = 10 * time.Millisecond

// TripGetter is the subset of tripsignal.Signal the engine needs to drive
// GOOSE_TRIP transitions.
type TripGetter interface {
	IsSet() bool
	Clear()
}

// Engine owns one Sequence at a time and a fixed list of active stream ids.
type Engine struct {
	mgr     *publisher.Manager
	trip    TripGetter
	streams []string
	log     *telemetry.Logger

	mu           sync.Mutex
	status       Status
	seq          *Sequence
	stateIndex   int
	stateElapsed time.Duration
	lastTick     time.Time
	listeners    []ProgressFunc

	stopCh chan struct{}
	doneCh chan struct{}
}

// New binds an Engine to the publisher manager it drives, the trip flag it
// observes, and the fixed set of streams a sequence run may address.
func New(mgr *publisher.Manager, trip TripGetter, streamIDs []string, log *telemetry.Logger) *Engine {
	if log == nil {
		log = telemetry.Nop()
	}
	return &Engine{
		mgr:     mgr,
		trip:    trip,
		streams: append([]string(nil), streamIDs...),
		log:     log,
		status:  StatusIdle,
	}
}

// Status returns the engine's current lifecycle state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Subscribe registers cb to receive a progress callback at every tick while
// RUNNING, returning an unsubscribe function.
func (e *Engine) Subscribe(cb ProgressFunc) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, cb)
	idx := len(e.listeners) - 1
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if idx < len(e.listeners) {
			e.listeners = append(e.listeners[:idx], e.listeners[idx+1:]...)
		}
	}
}

// Start validates seq and transitions IDLE->RUNNING. It is rejected
// with BUSY if a sequence is already running or paused.
func (e *Engine) Start(seq Sequence) error {
	const op = "sequence.Engine.Start"

	e.mu.Lock()
	if e.status == StatusRunning || e.status == StatusPaused {
		e.mu.Unlock()
		return errs.New(errs.KindBusy, op, fmt.Errorf("a sequence is already running"))
	}
	if len(seq.States) == 0 {
		e.mu.Unlock()
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("sequence must have at least one state"))
	}
	if len(e.streams) == 0 {
		e.mu.Unlock()
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("engine has no active streams"))
	}
	for _, st := range seq.States {
		if st.Transition != TransitionTime && st.Transition != TransitionGooseTrip {
			e.mu.Unlock()
			return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("state %q names no valid transition", st.Name))
		}
	}

	e.seq = &seq
	e.stateIndex = -1
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	e.enterState(0)
	go e.run()
	return nil
}

// Stop halts the sequence immediately: no further states are entered, the
// last applied phasor state is retained.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.status != StatusRunning && e.status != StatusPaused {
		e.mu.Unlock()
		return
	}
	e.status = StatusStopped
	stopCh := e.stopCh
	e.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
}

// Pause freezes the current state's timer without applying any new phasor
// state.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusRunning {
		e.status = StatusPaused
	}
}

// Resume continues from PAUSED with the elapsed-in-state duration
// preserved: the tick loop's delta accounting starts fresh from now,
// so the paused wall-clock interval is never added to stateElapsed.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusPaused {
		e.lastTick = time.Now()
		e.status = StatusRunning
	}
}

// enterState applies the state's per-stream phasor snapshots, resets the
// state timer, and clears the trip flag.
func (e *Engine) enterState(idx int) {
	e.mu.Lock()
	st := e.seq.States[idx]
	e.stateIndex = idx
	e.stateElapsed = 0
	e.lastTick = time.Now()
	e.status = StatusRunning
	streams := append([]string(nil), e.streams...)
	e.mu.Unlock()

	e.trip.Clear()
	for _, streamID := range streams {
		snap, ok := st.StreamStates[streamID]
		if !ok || snap == nil {
			continue
		}
		if err := e.mgr.ApplyFaultState(streamID, snap); err != nil {
			e.log.Warn("sequence engine failed to apply phasor state", "stream_id", streamID, "state", st.Name, "error", err)
		}
	}
}

func (e *Engine) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	defer close(e.doneCh)

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if e.tick() {
				return
			}
		}
	}
}

// tick advances the timer for the current state and, if its transition
// condition is met, enters the next state or completes the sequence.
// Returns true when the run loop should exit.
func (e *Engine) tick() bool {
	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return false
	}

	now := time.Now()
	e.stateElapsed += now.Sub(e.lastTick)
	e.lastTick = now

	idx := e.stateIndex
	st := e.seq.States[idx]
	elapsedSec := e.stateElapsed.Seconds()
	total := len(e.seq.States)

	advance := false
	switch st.Transition {
	case TransitionTime:
		advance = elapsedSec >= st.DurationSec
	case TransitionGooseTrip:
		advance = e.trip.IsSet() || elapsedSec >= st.DurationSec
	}

	listeners := append([]ProgressFunc(nil), e.listeners...)
	name := st.Name
	e.mu.Unlock()

	for _, cb := range listeners {
		cb(idx, total, name, elapsedSec, "")
	}

	if !advance {
		return false
	}

	next := idx + 1
	if next >= total {
		e.mu.Lock()
		e.status = StatusCompleted
		e.mu.Unlock()
		return true
	}

	e.enterState(next)
	return false
}
