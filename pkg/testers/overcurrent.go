package testers

import (
	"fmt"
	"math"
	"time"

	"github.com/virtualtestset/vpac/pkg/errs"
)

// Curve names one of the IDMT/definite-time operate characteristics.
type Curve string

const (
	CurveStandardInverse       Curve = "STANDARD_INVERSE"
	CurveVeryInverse           Curve = "VERY_INVERSE"
	CurveExtremelyInverse      Curve = "EXTREMELY_INVERSE"
	CurveLongTimeInverse       Curve = "LONG_TIME_INVERSE"
	CurveIEEEModeratelyInverse Curve = "IEEE_MODERATELY_INVERSE"
	CurveIEEEVeryInverse       Curve = "IEEE_VERY_INVERSE"
	CurveIEEEExtremelyInverse  Curve = "IEEE_EXTREMELY_INVERSE"
	CurveDefiniteTime          Curve = "DEFINITE_TIME"
	CurveInstantaneous         Curve = "INSTANTANEOUS"
)

// ExpectedOperateTime evaluates one curve's formula at multiple M for a
// given TMS. For M<=1 the expected time is +Inf: no trip is
// expected at or below pickup.
func ExpectedOperateTime(curve Curve, tms, m float64) float64 {
	if m <= 1 {
		return math.Inf(1)
	}
	switch curve {
	case CurveStandardInverse:
		return tms * 0.14 / (math.Pow(m, 0.02) - 1)
	case CurveVeryInverse:
		return tms * 13.5 / (m - 1)
	case CurveExtremelyInverse:
		return tms * 80 / (m*m - 1)
	case CurveLongTimeInverse:
		return tms * 120 / (m - 1)
	case CurveIEEEModeratelyInverse:
		return tms * (0.0515/(math.Pow(m, 0.02)-1) + 0.114)
	case CurveIEEEVeryInverse:
		return tms * (19.61/(m*m-1) + 0.491)
	case CurveIEEEExtremelyInverse:
		return tms * (28.2/(m*m-1) + 0.1217)
	case CurveDefiniteTime:
		return tms
	case CurveInstantaneous:
		return 0
	default:
		return math.NaN()
	}
}

// ToleranceMode selects how an overcurrent point's tolerance is
// interpreted.
type ToleranceMode int

const (
	ToleranceAbsolute ToleranceMode = iota
	TolerancePercent
)

// OvercurrentPoint is one current-multiple test point.
type OvercurrentPoint struct {
	M     float64
	Label string
}

// OvercurrentConfig parameterizes the overcurrent tester.
type OvercurrentConfig struct {
	Curve              Curve
	TMS                float64
	IPickup            float64
	Points             []OvercurrentPoint
	MaxTestDurationSec float64
	Tolerance          float64
	ToleranceMode      ToleranceMode
	StopOnFirstFailure bool
}

// OvercurrentResult is the per-point outcome of an overcurrent test run.
type OvercurrentResult struct {
	Label         string
	M             float64
	ExpectedTimeS float64
	MeasuredTimeS float64
	Tripped       bool
	Passed        bool
}

// OvercurrentTester drives a stimulus current at successive multiples of
// I_pickup and times the trip-flag response against the configured curve.
type OvercurrentTester struct {
	stopper
	setter *StimulusSetter
	trip   TripGetter
}

// NewOvercurrentTester binds an OvercurrentTester to the current stimulus
// it drives and the trip flag it observes.
func NewOvercurrentTester(setter *StimulusSetter, trip TripGetter) *OvercurrentTester {
	return &OvercurrentTester{stopper: newStopper(), setter: setter, trip: trip}
}

// Run executes every configured point in order.
func (t *OvercurrentTester) Run(cfg OvercurrentConfig) ([]OvercurrentResult, error) {
	const op = "testers.OvercurrentTester.Run"
	if cfg.IPickup <= 0 {
		return nil, errs.New(errs.KindConfigInvalid, op, fmt.Errorf("i_pickup must be positive"))
	}

	results := make([]OvercurrentResult, 0, len(cfg.Points))
	for _, pt := range cfg.Points {
		if t.stopped() {
			return results, nil
		}

		// Reset below pickup and clear any latched trip before the point.
		if err := t.setter.SetValue(0); err != nil {
			return results, err
		}
		t.trip.Clear()
		if t.waitStep(pollInterval) {
			return results, nil
		}

		expected := ExpectedOperateTime(cfg.Curve, cfg.TMS, pt.M)
		if err := t.setter.SetValue(pt.M * cfg.IPickup); err != nil {
			return results, err
		}

		entry := time.Now()
		deadline := entry.Add(time.Duration(cfg.MaxTestDurationSec * float64(time.Second)))
		tripped := false
		var measured float64
		for {
			if t.stopped() {
				return results, nil
			}
			if t.trip.IsSet() {
				tripped = true
				measured = time.Since(entry).Seconds()
				break
			}
			if time.Now().After(deadline) {
				break
			}
			if t.waitStep(pollInterval) {
				return results, nil
			}
		}

		var passed bool
		switch {
		case math.IsInf(expected, 1):
			// no trip expected at or below pickup
			passed = !tripped
		case !tripped:
			passed = false
		default:
			allowed := cfg.Tolerance
			if cfg.ToleranceMode == TolerancePercent {
				allowed = expected * cfg.Tolerance
			}
			passed = math.Abs(measured-expected) <= allowed
		}

		results = append(results, OvercurrentResult{
			Label:         pt.Label,
			M:             pt.M,
			ExpectedTimeS: expected,
			MeasuredTimeS: measured,
			Tripped:       tripped,
			Passed:        passed,
		})

		if !passed && cfg.StopOnFirstFailure {
			break
		}
	}

	return results, nil
}
