package sink

import (
	"net"
	"sync"
	"time"

	"github.com/virtualtestset/vpac/pkg/errs"
)

// Bus is an in-memory L2 segment: every frame written by one attached Sink
// is delivered to every other attached Sink's receive queue. It exists so
// tests can wire an SV publisher and a GOOSE subscriber together without a
// real network interface; a member never receives its own frames.
type Bus struct {
	mu      sync.Mutex
	members []*MemorySink
}

// NewBus returns an empty in-memory segment.
func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) attach(m *MemorySink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.members = append(b.members, m)
}

func (b *Bus) detach(m *MemorySink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, member := range b.members {
		if member == m {
			b.members = append(b.members[:i], b.members[i+1:]...)
			return
		}
	}
}

func (b *Bus) deliver(from *MemorySink, frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	for _, member := range b.members {
		if member == from {
			continue
		}
		select {
		case member.rx <- cp:
		default:
			// Receiver not keeping up: drop, matching a real NIC buffer overrun.
		}
	}
}

// MemorySink is a Sink backed by a Bus, for tests and non-Linux builds.
type MemorySink struct {
	mac    net.HardwareAddr
	bus    *Bus
	rx     chan []byte
	mu     sync.Mutex
	closed bool
}

// NewMemorySink attaches a new MemorySink with the given MAC to bus. If bus
// is nil, the sink is self-looped: writes are delivered back to its own
// receive queue.
func NewMemorySink(mac net.HardwareAddr, bus *Bus) *MemorySink {
	m := &MemorySink{
		mac: mac,
		bus: bus,
		rx:  make(chan []byte, 256),
	}
	if bus != nil {
		bus.attach(m)
	}
	return m
}

func (m *MemorySink) MACAddress() net.HardwareAddr { return m.mac }

func (m *MemorySink) Write(frame []byte) error {
	if err := checkFrameSize(frame); err != nil {
		return err
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return errs.New(errs.KindIfaceDown, "sink.Write", nil)
	}

	if m.bus != nil {
		m.bus.deliver(m, frame)
		return nil
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case m.rx <- cp:
	default:
	}
	return nil
}

func (m *MemorySink) Read(timeout time.Duration) ([]byte, error) {
	select {
	case f, ok := <-m.rx:
		if !ok {
			return nil, errs.New(errs.KindIfaceDown, "sink.Read", nil)
		}
		return f, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.bus != nil {
		m.bus.detach(m)
	}
	close(m.rx)
	return nil
}
