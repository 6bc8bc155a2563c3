// Package publisher implements the SV publisher manager: the
// create/read/update/delete/start/stop surface over a set of sv.Instance
// values, plus the atomic config-swap and partial phasor/harmonic merge
// operations the sequence engine and testers drive through.
package publisher

import (
	"fmt"
	"sync"
	"time"

	"github.com/virtualtestset/vpac/pkg/errs"
	"github.com/virtualtestset/vpac/pkg/phasor"
	"github.com/virtualtestset/vpac/pkg/sink"
	"github.com/virtualtestset/vpac/pkg/sv"
	"github.com/virtualtestset/vpac/pkg/telemetry"
)

// stopTimeout bounds how long Update/Delete wait for a running instance to
// drain before reinstalling or removing it.
const stopTimeout = 2 * time.Second

// entry pairs a live sv.Instance with the interface it was opened on, so
// Update can rebuild it in place.
type entry struct {
	mu       sync.Mutex // serializes stop/restart against this one stream
	inst     *sv.Instance
	iface    string
	openSink sink.OpenFunc
	running  bool
}

// Manager owns every configured SV stream and mediates all lifecycle and
// config-mutation operations against them.
type Manager struct {
	mu      sync.RWMutex
	streams map[string]*entry

	pool sv.Scheduler
	log  *telemetry.Logger
	met  *telemetry.Metrics
}

// New binds a Manager to the worker pool every stream's tick loop runs on.
func New(pool sv.Scheduler, log *telemetry.Logger, met *telemetry.Metrics) *Manager {
	if log == nil {
		log = telemetry.Nop()
	}
	return &Manager{
		streams: make(map[string]*entry),
		pool:    pool,
		log:     log,
		met:     met,
	}
}

// Create installs a new, stopped stream. initial seeds the published
// PhasorState; it must not be nil.
func (m *Manager) Create(cfg sv.StreamConfig, initial *sv.PhasorState, openSink sink.OpenFunc, iface string) error {
	const op = "publisher.Manager.Create"
	if err := cfg.Validate(); err != nil {
		return err
	}
	if initial == nil {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("initial phasor state must not be nil"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.streams[cfg.StreamID]; exists {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("stream %q already exists", cfg.StreamID))
	}

	m.streams[cfg.StreamID] = &entry{
		inst:     sv.NewInstance(cfg, initial, m.pool, openSink, iface, m.log.With("stream_id", cfg.StreamID), m.met),
		iface:    iface,
		openSink: openSink,
	}
	return nil
}

func (m *Manager) lookup(streamID string) (*entry, error) {
	const op = "publisher.Manager.lookup"
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.streams[streamID]
	if !ok {
		return nil, errs.New(errs.KindConfigInvalid, op, fmt.Errorf("no such stream %q", streamID))
	}
	return e, nil
}

// Get returns the stream's current configuration.
func (m *Manager) Get(streamID string) (sv.StreamConfig, error) {
	e, err := m.lookup(streamID)
	if err != nil {
		return sv.StreamConfig{}, err
	}
	return e.inst.Config(), nil
}

// List returns every configured stream id.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.streams))
	for id := range m.streams {
		out = append(out, id)
	}
	return out
}

// Instance exposes the underlying sv.Instance for read access (runtime
// counters, current state) by id.
func (m *Manager) Instance(streamID string) (*sv.Instance, error) {
	e, err := m.lookup(streamID)
	if err != nil {
		return nil, err
	}
	return e.inst, nil
}

// Start begins publishing on the named stream.
func (m *Manager) Start(streamID string) error {
	e, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.inst.Start(); err != nil {
		return err
	}
	e.running = true
	return nil
}

// Stop halts the named stream if running.
func (m *Manager) Stop(streamID string) error {
	e, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.inst.Stop(stopTimeout); err != nil {
		return err
	}
	e.running = false
	return nil
}

// Delete stops (if running) and removes the named stream.
func (m *Manager) Delete(streamID string) error {
	const op = "publisher.Manager.Delete"
	e, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if e.running {
		if err := e.inst.Stop(stopTimeout); err != nil {
			e.mu.Unlock()
			return errs.New(errs.KindInternal, op, fmt.Errorf("stopping %q before delete: %w", streamID, err))
		}
		e.running = false
	}
	e.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, streamID)
	return nil
}

// Update installs a new StreamConfig for an existing stream. It never
// patches the live instance's fields in place: if the stream
// was RUNNING when Update was called, it is stopped, the new instance
// takes over with the prior phasor state carried forward, and it is
// restarted; otherwise the replacement stream is simply left stopped.
func (m *Manager) Update(streamID string, cfg sv.StreamConfig) error {
	const op = "publisher.Manager.Update"
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.StreamID != streamID {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("config stream_id %q does not match %q", cfg.StreamID, streamID))
	}

	e, err := m.lookup(streamID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	wasRunning := e.running
	if wasRunning {
		if err := e.inst.Stop(stopTimeout); err != nil {
			return errs.New(errs.KindInternal, op, fmt.Errorf("stopping %q for update: %w", streamID, err))
		}
		e.running = false
	}

	carried := e.inst.State()
	e.inst = sv.NewInstance(cfg, carried, m.pool, e.openSink, e.iface, m.log.With("stream_id", cfg.StreamID), m.met)

	if wasRunning {
		if err := e.inst.Start(); err != nil {
			return errs.New(errs.KindInternal, op, fmt.Errorf("restarting %q after update: %w", streamID, err))
		}
		e.running = true
	}
	return nil
}

// UpdatePhasors merges partial into the stream's current PhasorState: only
// the channels present in partial are replaced, the rest are carried over
// unchanged.
func (m *Manager) UpdatePhasors(streamID string, partial map[phasor.Channel]phasor.Component) error {
	e, err := m.lookup(streamID)
	if err != nil {
		return err
	}

	cur := e.inst.State()
	next := cur.Clone()
	for ch, c := range partial {
		next.Components[ch] = c
	}
	e.inst.UpdateState(next)
	return nil
}

// UpdateFreq replaces the stream's nominal frequency, leaving every
// channel's phasor components untouched.
func (m *Manager) UpdateFreq(streamID string, freqHz float64) error {
	e, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	cur := e.inst.State()
	next := cur.Clone()
	next.FreqHz = freqHz
	e.inst.UpdateState(next)
	return nil
}

// UpdateHarmonics replaces the harmonic set of a single channel, leaving
// its magnitude, angle, and every other channel untouched.
func (m *Manager) UpdateHarmonics(streamID string, ch phasor.Channel, harmonics []phasor.Harmonic) error {
	const op = "publisher.Manager.UpdateHarmonics"
	e, err := m.lookup(streamID)
	if err != nil {
		return err
	}

	cur := e.inst.State()
	next := cur.Clone()
	c, ok := next.Components[ch]
	if !ok {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("stream %q has no channel %q", streamID, ch))
	}
	c.Harmonics = append([]phasor.Harmonic(nil), harmonics...)
	next.Components[ch] = c
	e.inst.UpdateState(next)
	return nil
}

// ApplyFaultState pushes a complete PhasorState (e.g. from the impedance
// calculator or the sequence engine) in one atomic swap, replacing every
// channel at once rather than merging.
func (m *Manager) ApplyFaultState(streamID string, state *sv.PhasorState) error {
	e, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	e.inst.UpdateState(state)
	return nil
}
