package phasor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleFundamentalAtK0(t *testing.T) {
	c := Component{MagnitudePrimary: 120, AngleRad: 0}
	v := Sample(c, 0, 4800, 60)
	assert.InDelta(t, 120, v, 1e-9)
}

func TestSampleQuarterCycle(t *testing.T) {
	// At 4800 sps and 60 Hz, one quarter cycle is 4800/60/4 = 20 samples.
	c := Component{MagnitudePrimary: 100, AngleRad: 0}
	v := Sample(c, 20, 4800, 60)
	assert.InDelta(t, 0, v, 1e-6)
}

func TestSampleWithHarmonic(t *testing.T) {
	c := Component{
		MagnitudePrimary: 100,
		AngleRad:         0,
		Harmonics: []Harmonic{
			{Order: 3, MagnitudeRatio: 0.1, AngleRad: 0},
		},
	}
	v0 := Sample(c, 0, 4800, 60)
	assert.InDelta(t, 110, v0, 1e-9)
}

func TestToCountsVoltageScaling(t *testing.T) {
	// 10 microvolt counts: 1 V = 1e5 counts.
	assert.Equal(t, int32(100000), ToCounts(ChVA, 1.0))
	assert.Equal(t, int32(-100000), ToCounts(ChVA, -1.0))
}

func TestToCountsCurrentScaling(t *testing.T) {
	// 1 mA counts: 1 A = 1000 counts.
	assert.Equal(t, int32(1000), ToCounts(ChIA, 1.0))
}

func TestToCountsSaturatesAtInt32Limits(t *testing.T) {
	assert.Equal(t, int32(math.MaxInt32), ToCounts(ChVA, 1e9))
	assert.Equal(t, int32(math.MinInt32), ToCounts(ChVA, -1e9))
}

func TestNormalizeAngleWrapsToHalfOpenInterval(t *testing.T) {
	assert.InDelta(t, math.Pi, NormalizeAngle(math.Pi), 1e-12)
	assert.InDelta(t, -math.Pi+0.1, NormalizeAngle(math.Pi+0.1), 1e-9)
	assert.InDelta(t, 0, NormalizeAngle(2*math.Pi), 1e-9)
}

func TestChannelIsVoltage(t *testing.T) {
	assert.True(t, ChVA.IsVoltage())
	assert.True(t, ChVN.IsVoltage())
	assert.False(t, ChIA.IsVoltage())
	assert.False(t, ChIN.IsVoltage())
}
