package testers

import (
	"math"
	"time"

	"github.com/virtualtestset/vpac/pkg/impedance"
	"github.com/virtualtestset/vpac/pkg/publisher"
	"github.com/virtualtestset/vpac/pkg/sv"
	"github.com/virtualtestset/vpac/pkg/testpoints"
)

// pollInterval is the granularity at which testers poll the trip flag
// while a fault or stimulus is applied, matching the sequence engine's
// 10 ms tick granularity.
const pollInterval = 10 * time.Millisecond

// DistancePoint is one R/X test point on the relay's operate
// characteristic.
type DistancePoint struct {
	R, X          float64
	FaultType     impedance.FaultType
	ExpectedTimeS *float64
	Label         string
}

// DistanceConfig parameterizes the distance tester.
type DistanceConfig struct {
	Points              []DistancePoint
	Source              impedance.SourceImpedance
	VPrefault           float64
	FreqHz              float64
	PrefaultDurationSec float64
	FaultDurationSec    float64
	TimeToleranceSec    float64
	StopOnFirstFailure  bool

	// AutoRefine, off by default, runs RefineLevels extra points narrowing around
	// each tripped point's (R, X) using pkg/testpoints.
	AutoRefine   bool
	RefineLevels int
	RefineStepR  float64
	RefineStepX  float64
	RefineSeed   int64
}

// DistanceResult is the per-point outcome of a distance test run.
type DistanceResult struct {
	Label     string
	R, X      float64
	FaultType impedance.FaultType
	Tripped   bool
	TripTimeS float64
	Passed    bool
}

// DistanceTester applies a prefault/fault sequence per configured point on
// one stream and measures the trip-flag response time against 4.K's fault
// calculator.
type DistanceTester struct {
	stopper
	mgr      *publisher.Manager
	streamID string
	nominal  *sv.PhasorState
	trip     TripGetter
}

// NewDistanceTester binds a DistanceTester to the stream it drives, the
// balanced nominal state applied during prefault, and the trip flag it
// observes.
func NewDistanceTester(mgr *publisher.Manager, streamID string, nominal *sv.PhasorState, trip TripGetter) *DistanceTester {
	return &DistanceTester{stopper: newStopper(), mgr: mgr, streamID: streamID, nominal: nominal, trip: trip}
}

// Run executes every configured point in order, returning as many results
// as completed before a stop request, a stop-on-first-failure abort, or an
// unrecoverable error from the fault calculator or publisher manager.
func (t *DistanceTester) Run(cfg DistanceConfig) ([]DistanceResult, error) {
	results := make([]DistanceResult, 0, len(cfg.Points))
	sampler := testpoints.NewSampler(cfg.RefineSeed)

	type queueItem struct {
		pt        DistancePoint
		refinable bool
	}
	queue := make([]queueItem, 0, len(cfg.Points))
	for _, pt := range cfg.Points {
		queue = append(queue, queueItem{pt: pt, refinable: true})
	}

	for len(queue) > 0 {
		item := queue[0]
		pt := item.pt
		queue = queue[1:]

		if t.stopped() {
			return results, nil
		}

		if err := t.mgr.ApplyFaultState(t.streamID, t.nominal); err != nil {
			return results, err
		}
		if t.waitStep(time.Duration(cfg.PrefaultDurationSec * float64(time.Second))) {
			return results, nil
		}

		t.trip.Clear()

		faultState, err := impedance.Calculate(
			impedance.FaultSpec{Type: pt.FaultType, Rf: pt.R, Xf: pt.X},
			cfg.Source, cfg.VPrefault, cfg.FreqHz,
		)
		if err != nil {
			return results, err
		}
		if err := t.mgr.ApplyFaultState(t.streamID, faultState); err != nil {
			return results, err
		}

		entry := time.Now()
		deadline := entry.Add(time.Duration(cfg.FaultDurationSec * float64(time.Second)))
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

		results = append(results, DistanceResult{
			Label:     pt.Label,
			R:         pt.R,
			X:         pt.X,
			FaultType: pt.FaultType,
			Tripped:   tripped,
			TripTimeS: tripTime,
			Passed:    passed,
		})

		if cfg.AutoRefine && item.refinable && tripped && cfg.RefineLevels > 0 {
			refined := sampler.RefineRX(pt.R, pt.X, cfg.RefineStepR, cfg.RefineStepX, cfg.RefineLevels)
			for _, p := range refined {
				// The fault calculator rejects negative fault impedance, so a
				// refinement window straddling zero is clamped rather than
				// aborting the run.
				queue = append(queue, queueItem{
					pt: DistancePoint{
						R:             math.Max(0, p.R), X: math.Max(0, p.X), FaultType: pt.FaultType,
						ExpectedTimeS: pt.ExpectedTimeS, Label: pt.Label + "/refine",
					},
					refinable: false,
				})
			}
		}

		if !passed && cfg.StopOnFirstFailure {
			break
		}
	}

	return results, nil
}
