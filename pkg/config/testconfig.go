package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/virtualtestset/vpac/pkg/impedance"
	"github.com/virtualtestset/vpac/pkg/phasor"
	"github.com/virtualtestset/vpac/pkg/sequence"
	"github.com/virtualtestset/vpac/pkg/sv"
	"github.com/virtualtestset/vpac/pkg/testers"
)

// RampTestConfig is the YAML-loadable form of testers.RampConfig for the
// "vpacd test ramp" subcommand.
type RampTestConfig struct {
	StreamID        string  `yaml:"stream_id"`
	Variable        string  `yaml:"variable"`
	StartValue      float64 `yaml:"start_value"`
	EndValue        float64 `yaml:"end_value"`
	StepSize        float64 `yaml:"step_size"`
	StepDurationSec float64 `yaml:"step_duration_sec"`
	MonitorTrip     bool    `yaml:"monitor_trip"`
}

// ToTesterConfig converts the loaded YAML into testers.RampConfig.
func (c RampTestConfig) ToTesterConfig() testers.RampConfig {
	return testers.RampConfig{
		Variable:        testers.Variable(c.Variable),
		StartValue:      c.StartValue,
		EndValue:        c.EndValue,
		StepSize:        c.StepSize,
		StepDurationSec: c.StepDurationSec,
		MonitorTrip:     c.MonitorTrip,
	}
}

// DistancePointConfig is one YAML R/X test point.
type DistancePointConfig struct {
	R             float64  `yaml:"r"`
	X             float64  `yaml:"x"`
	FaultType     string   `yaml:"fault_type"`
	ExpectedTimeS *float64 `yaml:"expected_time_s,omitempty"`
	Label         string   `yaml:"label"`
}

// DistanceTestConfig is the YAML-loadable form of testers.DistanceConfig.
type DistanceTestConfig struct {
	StreamID            string                    `yaml:"stream_id"`
	Points              []DistancePointConfig     `yaml:"points"`
	Source              impedance.SourceImpedance `yaml:"source"`
	VPrefault           float64                   `yaml:"v_prefault"`
	FreqHz              float64                   `yaml:"freq_hz"`
	PrefaultDurationSec float64                   `yaml:"prefault_duration_sec"`
	FaultDurationSec    float64                   `yaml:"fault_duration_sec"`
	TimeToleranceSec    float64                   `yaml:"time_tolerance_sec"`
	StopOnFirstFailure  bool                      `yaml:"stop_on_first_failure"`
	AutoRefine          bool                      `yaml:"auto_refine"`
	RefineLevels        int                       `yaml:"refine_levels"`
	RefineStepR         float64                   `yaml:"refine_step_r"`
	RefineStepX         float64                   `yaml:"refine_step_x"`
	RefineSeed          int64                     `yaml:"refine_seed"`
}

// ToTesterConfig converts the loaded YAML into testers.DistanceConfig.
func (c DistanceTestConfig) ToTesterConfig() testers.DistanceConfig {
	points := make([]testers.DistancePoint, len(c.Points))
	for i, p := range c.Points {
		points[i] = testers.DistancePoint{
			R:             p.R,
			X:             p.X,
			FaultType:     impedance.FaultType(p.FaultType),
			ExpectedTimeS: p.ExpectedTimeS,
			Label:         p.Label,
		}
	}
	return testers.DistanceConfig{
		Points:              points,
		Source:              c.Source,
		VPrefault:           c.VPrefault,
		FreqHz:              c.FreqHz,
		PrefaultDurationSec: c.PrefaultDurationSec,
		FaultDurationSec:    c.FaultDurationSec,
		TimeToleranceSec:    c.TimeToleranceSec,
		StopOnFirstFailure:  c.StopOnFirstFailure,
		AutoRefine:          c.AutoRefine,
		RefineLevels:        c.RefineLevels,
		RefineStepR:         c.RefineStepR,
		RefineStepX:         c.RefineStepX,
		RefineSeed:          c.RefineSeed,
	}
}

// OvercurrentPointConfig is one YAML current-multiple test point.
type OvercurrentPointConfig struct {
	M     float64 `yaml:"m"`
	Label string  `yaml:"label"`
}

// OvercurrentTestConfig is the YAML-loadable form of testers.OvercurrentConfig.
type OvercurrentTestConfig struct {
	StreamID           string                   `yaml:"stream_id"`
	Variable           string                   `yaml:"variable"`
	Curve              string                   `yaml:"curve"`
	TMS                float64                  `yaml:"tms"`
	IPickup            float64                  `yaml:"i_pickup"`
	Points             []OvercurrentPointConfig `yaml:"points"`
	MaxTestDurationSec float64                  `yaml:"max_test_duration_sec"`
	Tolerance          float64                  `yaml:"tolerance"`
	TolerancePercent   bool                     `yaml:"tolerance_percent"`
	StopOnFirstFailure bool                     `yaml:"stop_on_first_failure"`
}

// ToTesterConfig converts the loaded YAML into testers.OvercurrentConfig.
func (c OvercurrentTestConfig) ToTesterConfig() testers.OvercurrentConfig {
	points := make([]testers.OvercurrentPoint, len(c.Points))
	for i, p := range c.Points {
		points[i] = testers.OvercurrentPoint{M: p.M, Label: p.Label}
	}
	mode := testers.ToleranceAbsolute
	if c.TolerancePercent {
		mode = testers.TolerancePercent
	}
	return testers.OvercurrentConfig{
		Curve:              testers.Curve(c.Curve),
		TMS:                c.TMS,
		IPickup:            c.IPickup,
		Points:             points,
		MaxTestDurationSec: c.MaxTestDurationSec,
		Tolerance:          c.Tolerance,
		ToleranceMode:      mode,
		StopOnFirstFailure: c.StopOnFirstFailure,
	}
}

// DifferentialPointConfig is one YAML (restraint, differential) test point.
type DifferentialPointConfig struct {
	IR            float64  `yaml:"i_r"`
	ID            float64  `yaml:"i_d"`
	ExpectedTimeS *float64 `yaml:"expected_time_s,omitempty"`
	Label         string   `yaml:"label"`
}

// DifferentialTestConfig is the YAML-loadable form of testers.DifferentialConfig.
type DifferentialTestConfig struct {
	StreamID1          string                    `yaml:"stream_id_1"`
	StreamID2          string                    `yaml:"stream_id_2"`
	Variable           string                    `yaml:"variable"`
	Points             []DifferentialPointConfig `yaml:"points"`
	MaxTestDurationSec float64                   `yaml:"max_test_duration_sec"`
	TimeToleranceSec   float64                   `yaml:"time_tolerance_sec"`
	StopOnFirstFailure bool                      `yaml:"stop_on_first_failure"`
}

// ToTesterConfig converts the loaded YAML into testers.DifferentialConfig.
func (c DifferentialTestConfig) ToTesterConfig() testers.DifferentialConfig {
	points := make([]testers.DifferentialPoint, len(c.Points))
	for i, p := range c.Points {
		points[i] = testers.DifferentialPoint{
			IR: p.IR, ID: p.ID, ExpectedTimeS: p.ExpectedTimeS, Label: p.Label,
		}
	}
	return testers.DifferentialConfig{
		Points:             points,
		MaxTestDurationSec: c.MaxTestDurationSec,
		TimeToleranceSec:   c.TimeToleranceSec,
		StopOnFirstFailure: c.StopOnFirstFailure,
	}
}

// loadYAML reads path and unmarshals it into out, expanding environment
// variables first, matching the convention used by Load.
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// LoadRampTestConfig loads a RampTestConfig from path.
func LoadRampTestConfig(path string) (*RampTestConfig, error) {
	var c RampTestConfig
	if err := loadYAML(path, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadDistanceTestConfig loads a DistanceTestConfig from path.
func LoadDistanceTestConfig(path string) (*DistanceTestConfig, error) {
	var c DistanceTestConfig
	if err := loadYAML(path, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadOvercurrentTestConfig loads an OvercurrentTestConfig from path.
func LoadOvercurrentTestConfig(path string) (*OvercurrentTestConfig, error) {
	var c OvercurrentTestConfig
	if err := loadYAML(path, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadDifferentialTestConfig loads a DifferentialTestConfig from path.
func LoadDifferentialTestConfig(path string) (*DifferentialTestConfig, error) {
	var c DifferentialTestConfig
	if err := loadYAML(path, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// HarmonicConfig is one YAML harmonic component.
type HarmonicConfig struct {
	Order          int     `yaml:"order"`
	MagnitudeRatio float64 `yaml:"magnitude_ratio"`
	AngleRad       float64 `yaml:"angle_rad"`
}

// ComponentConfig is the YAML-loadable form of phasor.Component.
type ComponentConfig struct {
	MagnitudePrimary float64          `yaml:"magnitude_primary"`
	AngleRad         float64          `yaml:"angle_rad"`
	Harmonics        []HarmonicConfig `yaml:"harmonics"`
}

// PhasorStateConfig is the YAML-loadable form of sv.PhasorState, keyed by
// channel name ("V-A", "I-C", ...).
type PhasorStateConfig struct {
	FreqHz     float64                    `yaml:"freq_hz"`
	Components map[string]ComponentConfig `yaml:"components"`
}

// ToPhasorState converts the loaded YAML into an *sv.PhasorState.
func (c PhasorStateConfig) ToPhasorState() *sv.PhasorState {
	comps := make(map[phasor.Channel]phasor.Component, len(c.Components))
	for name, cc := range c.Components {
		harmonics := make([]phasor.Harmonic, len(cc.Harmonics))
		for i, h := range cc.Harmonics {
			harmonics[i] = phasor.Harmonic{Order: h.Order, MagnitudeRatio: h.MagnitudeRatio, AngleRad: h.AngleRad}
		}
		comps[phasor.Channel(name)] = phasor.Component{
			MagnitudePrimary: cc.MagnitudePrimary,
			AngleRad:         cc.AngleRad,
			Harmonics:        harmonics,
		}
	}
	return &sv.PhasorState{FreqHz: c.FreqHz, Components: comps}
}

// SequenceStateConfig is the YAML-loadable form of sequence.SequenceState.
type SequenceStateConfig struct {
	Name         string                       `yaml:"name"`
	DurationSec  float64                      `yaml:"duration_sec"`
	Transition   string                       `yaml:"transition"`
	StreamStates map[string]PhasorStateConfig `yaml:"stream_states"`
}

// SequenceConfig is the YAML-loadable form of sequence.Sequence, for the
// "vpacd sequence run" subcommand.
type SequenceConfig struct {
	Name   string                `yaml:"name"`
	States []SequenceStateConfig `yaml:"states"`
}

// ToSequence converts the loaded YAML into a sequence.Sequence.
func (c SequenceConfig) ToSequence() sequence.Sequence {
	states := make([]sequence.SequenceState, len(c.States))
	for i, s := range c.States {
		streamStates := make(map[string]*sv.PhasorState, len(s.StreamStates))
		for id, ps := range s.StreamStates {
			streamStates[id] = ps.ToPhasorState()
		}
		states[i] = sequence.SequenceState{
			Name:         s.Name,
			DurationSec:  s.DurationSec,
			Transition:   sequence.Transition(s.Transition),
			StreamStates: streamStates,
		}
	}
	return sequence.Sequence{Name: c.Name, States: states}
}

// LoadSequenceConfig loads a SequenceConfig from path.
func LoadSequenceConfig(path string) (*SequenceConfig, error) {
	var c SequenceConfig
	if err := loadYAML(path, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
