package sv

import (
	"fmt"
	"sync/atomic"

	"github.com/virtualtestset/vpac/pkg/phasor"
)

// DefaultChannelOrder is the conventional 9-2LE eight-channel layout. A
// StreamConfig with NChannels > 8 names the extra channels CH8, CH9, ...
// by wire position; only the count and declared channel order matter,
// not channel identity beyond the 8 conventional points.
var DefaultChannelOrder = []phasor.Channel{
	phasor.ChVA, phasor.ChVB, phasor.ChVC, phasor.ChVN,
	phasor.ChIA, phasor.ChIB, phasor.ChIC, phasor.ChIN,
}

// ChannelOrder returns the n channel keys, in wire order, for a stream
// configured with n channels.
func ChannelOrder(n int) []phasor.Channel {
	out := make([]phasor.Channel, n)
	for i := 0; i < n; i++ {
		if i < len(DefaultChannelOrder) {
			out[i] = DefaultChannelOrder[i]
		} else {
			out[i] = phasor.Channel(fmt.Sprintf("CH%d", i))
		}
	}
	return out
}

// PhasorState is the per-stream mutable signal model: a frequency and a
// Component per channel, plus the harmonic lists carried inside Component.
// Instances are treated as immutable once published; writers build a new
// PhasorState and swap it in.
type PhasorState struct {
	FreqHz     float64
	Components map[phasor.Channel]phasor.Component
}

// Clone returns a deep-enough copy suitable for a copy-on-write update:
// the Components map and each Harmonics slice are copied so the original
// snapshot remains untouched by a subsequent in-place edit.
func (s *PhasorState) Clone() *PhasorState {
	cp := &PhasorState{FreqHz: s.FreqHz, Components: make(map[phasor.Channel]phasor.Component, len(s.Components))}
	for ch, c := range s.Components {
		if c.Harmonics != nil {
			hCopy := make([]phasor.Harmonic, len(c.Harmonics))
			copy(hCopy, c.Harmonics)
			c.Harmonics = hCopy
		}
		cp.Components[ch] = c
	}
	return cp
}

// StateHolder is an atomic-pointer-swapped PhasorState: writers publish a
// new snapshot, the tick reads the current one with an acquire-load. No
// torn reads are possible.
type StateHolder struct {
	ptr atomic.Pointer[PhasorState]
}

// NewStateHolder seeds the holder with an initial state.
func NewStateHolder(initial *PhasorState) *StateHolder {
	h := &StateHolder{}
	h.ptr.Store(initial)
	return h
}

// Load returns the current snapshot.
func (h *StateHolder) Load() *PhasorState {
	return h.ptr.Load()
}

// Store atomically replaces the current snapshot.
func (h *StateHolder) Store(s *PhasorState) {
	h.ptr.Store(s)
}
