package testers

import (
	"math"
	"time"
)

// DifferentialPoint is one (restraint, differential) current test point.
type DifferentialPoint struct {
	IR, ID        float64
	ExpectedTimeS *float64
	Label         string
}

// DifferentialConfig parameterizes the differential tester.
type DifferentialConfig struct {
	Points             []DifferentialPoint
	MaxTestDurationSec float64
	TimeToleranceSec   float64
	StopOnFirstFailure bool
}

// DifferentialResult is the per-point outcome of a differential test run.
type DifferentialResult struct {
	Label     string
	IR, ID    float64
	IS1, IS2  float64
	Tripped   bool
	TripTimeS float64
	Passed    bool
}

// DifferentialTester drives the two currents a transformer-differential
// relay compares — I_s1 = I_r + I_d/2 on one stream, I_s2 = I_r - I_d/2 on
// another — and times the trip-flag response identically to the other
// testers.
type DifferentialTester struct {
	stopper
	setter1, setter2 *StimulusSetter
	trip             TripGetter
}

// NewDifferentialTester binds a DifferentialTester to the two stimulus
// streams it drives and the trip flag it observes.
func NewDifferentialTester(setter1, setter2 *StimulusSetter, trip TripGetter) *DifferentialTester {
	return &DifferentialTester{stopper: newStopper(), setter1: setter1, setter2: setter2, trip: trip}
}

// Run executes every configured point in order.
func (t *DifferentialTester) Run(cfg DifferentialConfig) ([]DifferentialResult, error) {
	results := make([]DifferentialResult, 0, len(cfg.Points))

	for _, pt := range cfg.Points {
		if t.stopped() {
			return results, nil
		}

		if err := t.setter1.SetValue(0); err != nil {
			return results, err
		}
		if err := t.setter2.SetValue(0); err != nil {
			return results, err
		}
		t.trip.Clear()
		if t.waitStep(pollInterval) {
			return results, nil
		}

		is1 := pt.IR + pt.ID/2
		is2 := pt.IR - pt.ID/2
		if err := t.setter1.SetValue(is1); err != nil {
			return results, err
		}
		if err := t.setter2.SetValue(is2); err != nil {
			return results, err
		}

		entry := time.Now()
		deadline := entry.Add(time.Duration(cfg.MaxTestDurationSec * float64(time.Second)))
		tripped := false
		var tripTime float64
		for {
			if t.stopped() {
				return results, nil
			}
			if t.trip.IsSet() {
				tripped = true
				tripTime = time.Since(entry).Seconds()
				break
			}
			if time.Now().After(deadline) {
				break
			}
			if t.waitStep(pollInterval) {
				return results, nil
			}
		}

		passed := tripped
		if tripped && pt.ExpectedTimeS != nil {
			passed = math.Abs(tripTime-*pt.ExpectedTimeS) <= cfg.TimeToleranceSec
		}

		results = append(results, DifferentialResult{
			Label:     pt.Label,
			IR:        pt.IR,
			ID:        pt.ID,
			IS1:       is1,
			IS2:       is2,
			Tripped:   tripped,
			TripTimeS: tripTime,
			Passed:    passed,
		})

		if !passed && cfg.StopOnFirstFailure {
			break
		}
	}

	return results, nil
}
