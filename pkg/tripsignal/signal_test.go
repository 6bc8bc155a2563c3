package tripsignal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetClearIsSet(t *testing.T) {
	s := New()
	assert.False(t, s.IsSet())

	s.Set("51P-1")
	assert.True(t, s.IsSet())

	// Idempotent: setting again while already set is a no-op.
	s.Set("51P-1")
	assert.True(t, s.IsSet())

	s.Clear()
	assert.False(t, s.IsSet())

	s.Clear()
	assert.False(t, s.IsSet())
}

func TestSubscribeReceivesEdgeOnTransitionOnly(t *testing.T) {
	s := New()
	ch, unsub := s.Subscribe()
	defer unsub()

	s.Set("87T")

	select {
	case e := <-ch:
		assert.Equal(t, "87T", e.RuleName)
		assert.WithinDuration(t, time.Now(), e.At, time.Second)
	case <-time.After(time.Second):
		t.Fatal("expected edge broadcast on 0->1 transition")
	}

	// No transition occurs while already set: no second edge queued.
	s.Set("87T")
	select {
	case e := <-ch:
		t.Fatalf("unexpected second edge without an intervening clear: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}

	s.Clear()
	s.Set("67N")
	select {
	case e := <-ch:
		assert.Equal(t, "67N", e.RuleName)
	case <-time.After(time.Second):
		t.Fatal("expected edge broadcast after clear+set")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := New()
	ch, unsub := s.Subscribe()
	unsub()

	s.Set("51P-1")

	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("unexpected delivery after unsubscribe: %+v", e)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeDoesNotBlockSlowReader(t *testing.T) {
	s := New()
	_, unsub := s.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Clear()
			s.Set("rule")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on an unread subscriber channel")
	}
	require.True(t, s.IsSet())
}
