package sv

import (
	"fmt"
	"time"

	"github.com/virtualtestset/vpac/pkg/errs"
	"github.com/virtualtestset/vpac/pkg/sink"
	"github.com/virtualtestset/vpac/pkg/telemetry"
	"github.com/virtualtestset/vpac/pkg/workerpool"
)

// Scheduler is the subset of workerpool.Pool an Instance needs: the
// ability to submit a repeatable task.
type Scheduler interface {
	Submit(task workerpool.Task) bool
}

// Instance is one SV publisher's lifecycle: owns a StreamConfig, a
// PhasorState holder, a Runtime, and a sink handle; runs its tick loop on a
// Scheduler.
type Instance struct {
	cfg     StreamConfig
	state   *StateHolder
	runtime *Runtime
	encoder *Encoder

	openSink sink.OpenFunc
	iface    string
	conn     sink.Sink
	srcMAC   []byte

	pool Scheduler
	log  *telemetry.Logger
	met  *telemetry.Metrics

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewInstance constructs an Instance in CREATED state. openSink is the
// platform sink constructor; iface is the interface name to bind.
func NewInstance(cfg StreamConfig, initial *PhasorState, pool Scheduler, openSink sink.OpenFunc, iface string, log *telemetry.Logger, met *telemetry.Metrics) *Instance {
	if log == nil {
		log = telemetry.Nop()
	}
	return &Instance{
		cfg:      cfg,
		state:    NewStateHolder(initial),
		runtime:  NewRuntime(),
		encoder:  NewEncoder(),
		openSink: openSink,
		iface:    iface,
		pool:     pool,
		log:      log.With("stream_id", cfg.StreamID),
		met:      met,
	}
}

// Config returns the stream's immutable configuration.
func (in *Instance) Config() StreamConfig { return in.cfg }

// Runtime exposes the publisher's counters to observers.
func (in *Instance) Runtime() *Runtime { return in.runtime }

// UpdateState installs a new immutable PhasorState snapshot, visible to the
// tick starting at or after the next iteration.
func (in *Instance) UpdateState(s *PhasorState) {
	in.state.Store(s)
}

// State returns the currently published snapshot.
func (in *Instance) State() *PhasorState {
	return in.state.Load()
}

// Start opens the sink, resolves mac_src if unset, and submits the tick
// loop to the scheduler.
func (in *Instance) Start() error {
	const op = "sv.Instance.Start"
	if in.runtime.Status() == StatusRunning {
		return errs.New(errs.KindBusy, op, fmt.Errorf("stream %q already running", in.cfg.StreamID))
	}

	conn, err := in.openSink(in.iface)
	if err != nil {
		in.runtime.setStatus(StatusFailed)
		return err
	}
	in.conn = conn

	if len(in.cfg.MACSrc) == 6 {
		in.srcMAC = in.cfg.MACSrc
	} else {
		in.srcMAC = conn.MACAddress()
	}

	in.stopCh = make(chan struct{})
	in.doneCh = make(chan struct{})
	in.runtime.setStatus(StatusRunning)

	if ok := in.pool.Submit(in.tickLoop); !ok {
		in.runtime.setStatus(StatusFailed)
		_ = conn.Close()
		return errs.New(errs.KindInternal, op, fmt.Errorf("scheduler rejected tick task"))
	}
	return nil
}

// Stop transitions to STOPPING, waits up to timeout for the tick loop to
// exit, then closes the sink. If the timeout elapses the instance is left
// FAILED.
func (in *Instance) Stop(timeout time.Duration) error {
	const op = "sv.Instance.Stop"
	if in.runtime.Status() != StatusRunning {
		return nil
	}
	in.runtime.setStatus(StatusStopping)
	close(in.stopCh)

	select {
	case <-in.doneCh:
	case <-time.After(timeout):
		in.runtime.setStatus(StatusFailed)
		return errs.New(errs.KindInternal, op, fmt.Errorf("tick loop did not exit within %s", timeout))
	}

	if in.conn != nil {
		_ = in.conn.Close()
	}
	if in.runtime.Status() == StatusStopping {
		in.runtime.setStatus(StatusStopped)
	}
	return nil
}

func (in *Instance) tickLoop() {
	defer close(in.doneCh)

	period := time.Duration(float64(time.Second) / float64(in.cfg.SmpRate))
	start := time.Now()

	for {
		select {
		case <-in.stopCh:
			return
		default:
		}

		tickSeq := in.runtime.TickSeq()
		nextDeadline := start.Add(time.Duration(tickSeq+1) * period)
		sleepFor := time.Until(nextDeadline)
		if sleepFor > 0 {
			timer := time.NewTimer(sleepFor)
			select {
			case <-timer.C:
			case <-in.stopCh:
				timer.Stop()
				return
			}
		}

		now := time.Now()
		if now.After(nextDeadline.Add(period)) {
			// Deadline miss: resynchronize without catching up.
			elapsedTicks := uint64(now.Sub(start) / period)
			in.resyncTickSeq(elapsedTicks)
			in.runtime.recordMissedTick()
			if in.met != nil {
				in.met.SVDeadlineMisses.WithLabelValues(in.cfg.StreamID).Inc()
			}
			continue
		}

		in.emitOneTick(tickSeq)
		if in.runtime.Status() == StatusFailed {
			return
		}
	}
}

// resyncTickSeq forces tick_seq to elapsedTicks so the next computed
// deadline is one period beyond now.
func (in *Instance) resyncTickSeq(elapsedTicks uint64) {
	for {
		cur := in.runtime.TickSeq()
		if cur >= elapsedTicks {
			return
		}
		if in.runtime.tickSeq.CompareAndSwap(cur, elapsedTicks) {
			return
		}
	}
}

func (in *Instance) emitOneTick(tickSeq uint64) {
	state := in.state.Load()
	startSmpCnt := in.runtime.SmpCnt()

	frame, err := in.encoder.EncodeFrame(in.cfg, state, in.srcMAC, startSmpCnt, tickSeq)
	if err != nil {
		in.log.Error("sv frame encode failed", "error", err)
		return
	}

	if err := in.conn.Write(frame); err != nil {
		if errs.Is(err, errs.KindIfaceDown) {
			in.log.Error("sink interface down, stopping publisher", "error", err)
			in.runtime.setStatus(StatusFailed)
			in.runtime.setLastError(err.Error())
			return
		}
		in.runtime.setLastError(err.Error())
		if in.met != nil {
			kind := "io_transient"
			if errs.Is(err, errs.KindTooLarge) {
				kind = "too_large"
			} else if errs.Is(err, errs.KindIOSystem) {
				kind = "system"
			}
			in.met.SVSinkErrors.WithLabelValues(in.cfg.StreamID, kind).Inc()
		}
	} else if in.met != nil {
		in.met.SVFramesEmitted.WithLabelValues(in.cfg.StreamID).Inc()
		in.met.SVSampleCounter.WithLabelValues(in.cfg.StreamID).Set(float64(in.runtime.SmpCnt()))
	}

	for i := 0; i < in.cfg.NASDU; i++ {
		in.runtime.advance()
	}
}
