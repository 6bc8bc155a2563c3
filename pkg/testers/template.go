// Package testers implements the closed-loop protection-function
// testers: ramping, distance, overcurrent, and differential. All four share
// one template — a stimulus setter driving phasor state through the
// publisher manager (component I), a trip getter polling the process-wide
// trip flag (pkg/tripsignal), and a cooperative stop.
package testers

import (
	"fmt"
	"time"

	"github.com/virtualtestset/vpac/pkg/errs"
	"github.com/virtualtestset/vpac/pkg/phasor"
	"github.com/virtualtestset/vpac/pkg/publisher"
)

// Variable names one of the stimulus axes a ramping or differential test
// can drive.
type Variable string

const (
	VarVA   Variable = "V-A"
	VarVB   Variable = "V-B"
	VarVC   Variable = "V-C"
	VarV3PH Variable = "V-3PH"
	VarIA   Variable = "I-A"
	VarIB   Variable = "I-B"
	VarIC   Variable = "I-C"
	VarI3PH Variable = "I-3PH"
	VarFreq Variable = "FREQ"
)

// threePhaseAngles are the balanced reference angles (0, -120, +120
// degrees) applied when a V-3PH/I-3PH variable drives all three phases at
// once, preserving a balanced waveform while only the magnitude ramps.
var threePhaseAngles = map[phasor.Channel]float64{
	phasor.ChVA: 0,
	phasor.ChVB: -2 * 3.141592653589793 / 3,
	phasor.ChVC: 2 * 3.141592653589793 / 3,
	phasor.ChIA: 0,
	phasor.ChIB: -2 * 3.141592653589793 / 3,
	phasor.ChIC: 2 * 3.141592653589793 / 3,
}

// TripGetter is the subset of tripsignal.Signal a tester polls.
type TripGetter interface {
	IsSet() bool
	Clear()
}

// StimulusSetter writes the next scalar stimulus value for one Variable on
// one stream into the publisher manager.
type StimulusSetter struct {
	mgr      *publisher.Manager
	streamID string
	variable Variable
}

// NewStimulusSetter binds a StimulusSetter to one stream and variable.
func NewStimulusSetter(mgr *publisher.Manager, streamID string, variable Variable) *StimulusSetter {
	return &StimulusSetter{mgr: mgr, streamID: streamID, variable: variable}
}

// SetValue applies value as the magnitude of the bound variable, preserving
// every channel's existing angle and harmonic set. FREQ replaces the
// stream's nominal frequency instead of any channel's magnitude.
func (s *StimulusSetter) SetValue(value float64) error {
	const op = "testers.StimulusSetter.SetValue"
	if s.variable == VarFreq {
		return s.mgr.UpdateFreq(s.streamID, value)
	}

	inst, err := s.mgr.Instance(s.streamID)
	if err != nil {
		return err
	}
	cur := inst.State()

	partial := make(map[phasor.Channel]phasor.Component)
	for _, ch := range s.channels() {
		c := cur.Components[ch]
		c.MagnitudePrimary = value
		if len(s.channels()) > 1 {
			// balanced 3PH drive: assign the canonical reference angle so
			// the synthesized waveform stays balanced as magnitude ramps.
			c.AngleRad = phasor.NormalizeAngle(threePhaseAngles[ch])
		}
		partial[ch] = c
	}
	if len(partial) == 0 {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("unknown variable %q", s.variable))
	}
	return s.mgr.UpdatePhasors(s.streamID, partial)
}

func (s *StimulusSetter) channels() []phasor.Channel {
	switch s.variable {
	case VarVA:
		return []phasor.Channel{phasor.ChVA}
	case VarVB:
		return []phasor.Channel{phasor.ChVB}
	case VarVC:
		return []phasor.Channel{phasor.ChVC}
	case VarV3PH:
		return []phasor.Channel{phasor.ChVA, phasor.ChVB, phasor.ChVC}
	case VarIA:
		return []phasor.Channel{phasor.ChIA}
	case VarIB:
		return []phasor.Channel{phasor.ChIB}
	case VarIC:
		return []phasor.Channel{phasor.ChIC}
	case VarI3PH:
		return []phasor.Channel{phasor.ChIA, phasor.ChIB, phasor.ChIC}
	default:
		return nil
	}
}

// stopper is embedded by every tester run-state to provide a cooperative
// Stop() operation.
type stopper struct {
	stopCh chan struct{}
}

func newStopper() stopper { return stopper{stopCh: make(chan struct{})} }

// Stop requests the in-progress run abort at its next step boundary. Safe
// to call more than once or before Run starts.
func (s *stopper) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

func (s *stopper) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// waitStep sleeps for d or returns early (true) if stop is requested.
func (s *stopper) waitStep(d time.Duration) (stopped bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return true
	case <-timer.C:
		return false
	}
}
