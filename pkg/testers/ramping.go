package testers

import (
	"fmt"
	"time"

	"github.com/virtualtestset/vpac/pkg/errs"
)

// RampConfig parameterizes the ramping tester.
type RampConfig struct {
	Variable        Variable
	StartValue      float64
	EndValue        float64
	StepSize        float64
	StepDurationSec float64
	MonitorTrip     bool
}

// RampResult is the outcome of one ramp run.
type RampResult struct {
	Completed    bool
	PickupValue  float64
	PickupTimeS  float64
	SawPickup    bool
	DropoffValue float64
	DropoffTimeS float64
	SawDropoff   bool
	ResetRatio   float64
}

// RampTester drives a StimulusSetter from start to end in fixed steps,
// optionally recording trip-flag pickup/dropoff edges.
type RampTester struct {
	stopper
	setter *StimulusSetter
	trip   TripGetter
}

// NewRampTester binds a RampTester to the stimulus it drives and the trip
// flag it observes.
func NewRampTester(setter *StimulusSetter, trip TripGetter) *RampTester {
	return &RampTester{stopper: newStopper(), setter: setter, trip: trip}
}

// Run executes the ramp to completion, cancellation (Stop), or config
// rejection. A zero or wrong-sign step is CONFIG_INVALID; no stimulus is
// ever written in that case.
func (t *RampTester) Run(cfg RampConfig) (*RampResult, error) {
	const op = "testers.RampTester.Run"

	direction := cfg.EndValue - cfg.StartValue
	switch {
	case direction > 0 && cfg.StepSize <= 0:
		return nil, errs.New(errs.KindConfigInvalid, op, fmt.Errorf("step_size must be positive when end > start"))
	case direction < 0 && cfg.StepSize >= 0:
		return nil, errs.New(errs.KindConfigInvalid, op, fmt.Errorf("step_size must be negative when end < start"))
	case direction == 0 && cfg.StepSize != 0:
		return nil, errs.New(errs.KindConfigInvalid, op, fmt.Errorf("step_size must be zero when start equals end"))
	}
	if cfg.StepDurationSec <= 0 {
		return nil, errs.New(errs.KindConfigInvalid, op, fmt.Errorf("step_duration_sec must be positive"))
	}

	result := &RampResult{}
	startTime := time.Now()
	current := cfg.StartValue
	if err := t.setter.SetValue(current); err != nil {
		return nil, err
	}

	lastTrip := false
	if cfg.MonitorTrip {
		lastTrip = t.trip.IsSet()
	}

	if direction == 0 {
		result.Completed = true
		return result, nil
	}

	step := time.Duration(cfg.StepDurationSec * float64(time.Second))
	for {
		if t.waitStep(step) {
			return result, nil
		}

		current += cfg.StepSize
		done := false
		if cfg.StepSize > 0 && current >= cfg.EndValue {
			current = cfg.EndValue
			done = true
		} else if cfg.StepSize < 0 && current <= cfg.EndValue {
			current = cfg.EndValue
			done = true
		}

		if err := t.setter.SetValue(current); err != nil {
			return nil, err
		}

		if cfg.MonitorTrip {
			now := t.trip.IsSet()
			switch {
			case !lastTrip && now:
				result.SawPickup = true
				result.PickupValue = current
				result.PickupTimeS = time.Since(startTime).Seconds()
			case lastTrip && !now:
				result.SawDropoff = true
				result.DropoffValue = current
				result.DropoffTimeS = time.Since(startTime).Seconds()
			}
			lastTrip = now
		}

		if done {
			result.Completed = true
			break
		}
	}

	if result.SawPickup && result.SawDropoff && result.PickupValue != 0 {
		result.ResetRatio = result.DropoffValue / result.PickupValue
	}
	return result, nil
}
