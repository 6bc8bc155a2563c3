// Package phasor synthesizes instantaneous time-domain samples from a
// magnitude/angle/frequency phasor model plus harmonics, scaled to the
// IEC 61850-9-2LE integer count conventions.
package phasor

import "math"

// Channel names a logical measurement point on a stream.
type Channel string

const (
	ChVA Channel = "V-A"
	ChVB Channel = "V-B"
	ChVC Channel = "V-C"
	ChVN Channel = "V-N"
	ChIA Channel = "I-A"
	ChIB Channel = "I-B"
	ChIC Channel = "I-C"
	ChIN Channel = "I-N"
)

// IsVoltage reports whether ch is one of the voltage channels, which
// determines the scaling convention applied in ToCounts.
func (ch Channel) IsVoltage() bool {
	switch ch {
	case ChVA, ChVB, ChVC, ChVN:
		return true
	default:
		return false
	}
}

// 9-2LE scaling: 10 microvolt counts for voltage, 1 milliamp counts for current.
const (
	voltsPerCount = 1e-5
	ampsPerCount  = 1e-3
)

// Harmonic is one (order, relative-magnitude, angle) component added to the
// fundamental. Order n=1 is the fundamental itself and is represented
// separately in Component.
type Harmonic struct {
	Order          int     // n in [2,50]
	MagnitudeRatio float64 // fraction of the fundamental magnitude, not percent
	AngleRad       float64
}

// Component is the per-channel phasor state: fundamental magnitude (in
// primary volts or amps), fundamental angle, and an ordered harmonic list.
type Component struct {
	MagnitudePrimary float64
	AngleRad         float64
	Harmonics        []Harmonic
}

// Sample computes the instantaneous value of one channel's Component at
// sample index k, sample_rate sps, and fundamental frequency freqHz:
// t = k/sample_rate; value = sum over components of
// m_i * cos(2*pi*n_i*f*t + phi_i).
func Sample(c Component, k int64, sampleRate int, freqHz float64) float64 {
	t := float64(k) / float64(sampleRate)
	value := c.MagnitudePrimary * math.Cos(2*math.Pi*1*freqHz*t+c.AngleRad)
	for _, h := range c.Harmonics {
		m := c.MagnitudePrimary * h.MagnitudeRatio
		value += m * math.Cos(2*math.Pi*float64(h.Order)*freqHz*t+h.AngleRad)
	}
	return value
}

// ToCounts scales a primary-unit instantaneous value to the int32 sample
// encoding for the given channel, saturating at the int32 range.
func ToCounts(ch Channel, value float64) int32 {
	var perCount float64
	if ch.IsVoltage() {
		perCount = voltsPerCount
	} else {
		perCount = ampsPerCount
	}
	counts := value / perCount
	switch {
	case counts > math.MaxInt32:
		return math.MaxInt32
	case counts < math.MinInt32:
		return math.MinInt32
	default:
		return int32(math.Round(counts))
	}
}

// SampleCounts is a convenience composing Sample and ToCounts.
func SampleCounts(ch Channel, c Component, k int64, sampleRate int, freqHz float64) int32 {
	return ToCounts(ch, Sample(c, k, sampleRate, freqHz))
}

// NormalizeAngle wraps a radian angle into (-pi, pi], matching the
// PhasorState invariant.
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	} else if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
