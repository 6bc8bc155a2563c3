package goose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEval struct{ calls int }

func (f *fakeEval) Evaluate() (string, bool) {
	f.calls++
	return "", false
}

func TestSubscriberAppliesStateChangeAndInvokesEvaluator(t *testing.T) {
	eval := &fakeEval{}
	s := NewSubscriber(nil, eval, nil, nil)

	frame := buildGOOSEFrame(t, "IED1GOOSE1", 1, 0, true)
	s.HandleFrame(frame)

	p, ok := s.Point("IED1GOOSE1[0]")
	require.True(t, ok)
	assert.True(t, p.Value.Bool)
	assert.Equal(t, 1, eval.calls)
}

func TestSubscriberDropsDuplicateFrame(t *testing.T) {
	eval := &fakeEval{}
	s := NewSubscriber(nil, eval, nil, nil)

	frame := buildGOOSEFrame(t, "IED1GOOSE1", 1, 0, true)
	s.HandleFrame(frame)
	s.HandleFrame(frame)

	assert.EqualValues(t, 1, s.Duplicates())
	assert.Equal(t, 1, eval.calls)
}

func TestSubscriberNewStNumResetsExpectedSqNumAndIsStateChange(t *testing.T) {
	eval := &fakeEval{}
	s := NewSubscriber(nil, eval, nil, nil)

	s.HandleFrame(buildGOOSEFrame(t, "IED1GOOSE1", 1, 0, true))
	s.HandleFrame(buildGOOSEFrame(t, "IED1GOOSE1", 2, 0, false))

	assert.Equal(t, 2, eval.calls)
	p, ok := s.Point("IED1GOOSE1[0]")
	require.True(t, ok)
	assert.False(t, p.Value.Bool)
}

func TestSubscriberMalformedFrameIncrementsParseErrorsAndDoesNotTouchMap(t *testing.T) {
	eval := &fakeEval{}
	s := NewSubscriber(nil, eval, nil, nil)

	s.HandleFrame([]byte{1, 2, 3})

	assert.EqualValues(t, 1, s.ParseErrors())
	assert.Equal(t, 0, eval.calls)
	_, ok := s.Point("IED1GOOSE1[0]")
	assert.False(t, ok)
}

func TestUpdateDataPointUsedInTests(t *testing.T) {
	s := NewSubscriber(nil, nil, nil, nil)
	s.UpdateDataPoint("X/Ind.stVal", Value{Kind: KindBool, Bool: true})

	p, ok := s.Point("X/Ind.stVal")
	require.True(t, ok)
	assert.True(t, p.Value.Bool)
}
