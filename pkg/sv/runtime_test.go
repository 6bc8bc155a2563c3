package sv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmpCntWrapsAt70000Samples(t *testing.T) {
	r := NewRuntime()
	for i := 0; i < 70000; i++ {
		r.advance()
	}
	assert.EqualValues(t, 4464, r.SmpCnt())
	assert.EqualValues(t, 70000, r.TickSeq())
}

func TestSmpCntWrapsAtExactly65536(t *testing.T) {
	r := NewRuntime()
	for i := 0; i < 65536; i++ {
		r.advance()
	}
	assert.EqualValues(t, 0, r.SmpCnt())
}

func TestMissedTickCounterIncrements(t *testing.T) {
	r := NewRuntime()
	assert.EqualValues(t, 0, r.MissedTicks())
	r.recordMissedTick()
	r.recordMissedTick()
	assert.EqualValues(t, 2, r.MissedTicks())
}

func TestStatusStringer(t *testing.T) {
	assert.Equal(t, "CREATED", StatusCreated.String())
	assert.Equal(t, "RUNNING", StatusRunning.String())
	assert.Equal(t, "FAILED", StatusFailed.String())
}
