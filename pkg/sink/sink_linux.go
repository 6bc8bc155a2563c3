//go:build linux

package sink

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/virtualtestset/vpac/pkg/errs"
)

// linuxSink is the reference packet-sink backend: an AF_PACKET SOCK_RAW
// socket bound to one interface, in the single-fd/mutex-guarded style of
// the raw ICMP sender this pipeline was grounded on.
type linuxSink struct {
	mu   sync.Mutex
	fd   int
	mac  net.HardwareAddr
	name string
}

// htons converts a host-order uint16 EtherType to the network order the
// kernel's packet socket address family expects.
func htons(v uint16) uint16 {
	return (v<<8)&0xff00 | (v >> 8)
}

// OpenLinux opens an AF_PACKET raw socket bound to iface.
func OpenLinux(iface string) (Sink, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, errs.New(errs.KindIfaceDown, "sink.Open", fmt.Errorf("interface %q: %w", iface, err))
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		if err == unix.EPERM || err == unix.EACCES {
			return nil, errs.New(errs.KindIOPermission, "sink.Open", err)
		}
		return nil, errs.New(errs.KindIOSystem, "sink.Open", err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, errs.New(errs.KindIfaceDown, "sink.Open", fmt.Errorf("bind %q: %w", iface, err))
	}

	return &linuxSink{fd: fd, mac: ifi.HardwareAddr, name: iface}, nil
}

func (s *linuxSink) MACAddress() net.HardwareAddr { return s.mac }

func (s *linuxSink) Write(frame []byte) error {
	if err := checkFrameSize(frame); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := unix.Write(s.fd, frame)
	if err != nil {
		switch err {
		case unix.ENETDOWN, unix.ENXIO:
			return errs.New(errs.KindIfaceDown, "sink.Write", err)
		case unix.EPERM, unix.EACCES:
			return errs.New(errs.KindIOPermission, "sink.Write", err)
		default:
			return errs.New(errs.KindIOSystem, "sink.Write", err)
		}
	}
	if n != len(frame) {
		return errs.New(errs.KindIOSystem, "sink.Write", fmt.Errorf("short write: wrote %d of %d bytes", n, len(frame)))
	}
	return nil
}

func (s *linuxSink) Read(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return nil, errs.New(errs.KindIOSystem, "sink.Read", err)
	}

	buf := make([]byte, MaxFrameBytes)
	n, _, err := unix.Recvfrom(fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil
		}
		return nil, errs.New(errs.KindIOSystem, "sink.Read", err)
	}
	return buf[:n], nil
}

func (s *linuxSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unix.Close(s.fd)
}

// SetEtherTypeFilter installs a classic BPF program via SO_ATTACH_FILTER
// that keeps only frames whose EtherType equals etherType, skipping one
// optional 802.1Q tag. The kernel drops everything else before it reaches
// Read, ahead of this package's own authoritative EtherType check.
// Compilation failure or an unsupported kernel is not fatal — the caller
// falls back to filtering in software.
func (s *linuxSink) SetEtherTypeFilter(etherType uint16) error {
	const op = "sink.SetEtherTypeFilter"
	const vlanTPID = 0x8100

	raw, err := bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(etherType), SkipTrue: 4},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: vlanTPID, SkipFalse: 2},
		bpf.LoadAbsolute{Off: 16, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(etherType), SkipTrue: 1},
		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: 0xffff},
	})
	if err != nil {
		return errs.New(errs.KindInternal, op, err)
	}

	filter := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		filter[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	prog := unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := unix.SetsockoptSockFprog(s.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog); err != nil {
		return errs.New(errs.KindIOSystem, op, err)
	}
	return nil
}
