// Package sink defines the packet-sink contract: a single interface
// for raw L2 Ethernet transmission and reception over one named interface,
// with one reference Linux AF_PACKET backend and an in-memory backend for
// tests and non-Linux development.
package sink

import (
	"net"
	"time"

	"github.com/virtualtestset/vpac/pkg/errs"
)

// MaxFrameBytes bounds a single Ethernet II frame (no FCS): a 9000-byte
// jumbo MTU payload plus an 18-byte 802.1Q-tagged header.
const MaxFrameBytes = 9018

// Sink abstracts L2 raw emission and reception over one bound interface.
// Frames are complete Ethernet II payloads starting at the destination
// MAC; the FCS is excluded.
type Sink interface {
	// MACAddress returns the interface's own hardware address.
	MACAddress() net.HardwareAddr

	// Write transmits the full frame or fails; partial writes never occur.
	// Failures are one of KindIfaceDown, KindIOPermission, KindTooLarge, or
	// KindIOSystem.
	Write(frame []byte) error

	// Read blocks for up to timeout waiting for one frame. It returns
	// (nil, nil) on timeout, which is not an error.
	Read(timeout time.Duration) ([]byte, error)

	Close() error
}

// FilterSetter is implemented by sinks that can install a kernel-side
// classic-BPF EtherType filter, letting the kernel drop frames the caller
// will reject anyway before they cross into user space.
type FilterSetter interface {
	SetEtherTypeFilter(etherType uint16) error
}

// OpenFunc opens a Sink bound to the named interface. Platform-specific
// backends register themselves under this signature; callers select one by
// build target. Implementations are equivalent in contract across
// transports.
type OpenFunc func(iface string) (Sink, error)

func checkFrameSize(frame []byte) error {
	if len(frame) > MaxFrameBytes {
		return errs.New(errs.KindTooLarge, "sink.Write", nil)
	}
	return nil
}
