//go:build linux

package workerpool

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/virtualtestset/vpac/pkg/telemetry"
)

// schedParam mirrors the kernel's struct sched_param; golang.org/x/sys/unix
// does not expose a SchedParam type or SchedSetscheduler wrapper, so the
// syscall is made directly via unix.Syscall.
type schedParam struct {
	Priority int32
}

func schedSetscheduler(pid int, policy int, param *schedParam) error {
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, uintptr(pid), uintptr(policy), uintptr(unsafe.Pointer(param)))
	if errno != 0 {
		return errno
	}
	return nil
}

// applyRealtime attempts SCHED_FIFO at the given priority and locks the
// process address space in physical memory. Either failing is logged and
// non-fatal; the worker falls back to normal scheduling.
func applyRealtime(log *telemetry.Logger, workerID, priority int) {
	if priority <= 0 {
		return
	}

	param := &schedParam{Priority: int32(priority)}
	if err := schedSetscheduler(0, unix.SCHED_FIFO, param); err != nil {
		log.Warn("worker RT scheduling unavailable, falling back to normal scheduling",
			"worker", workerID, "priority", priority, "error", err)
		return
	}

	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		log.Warn("worker mlockall failed", "worker", workerID, "error", err)
	}
}

// applyAffinity pins the calling worker thread to one CPU.
func applyAffinity(log *telemetry.Logger, workerID, cpu int) {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		log.Warn("worker CPU affinity unavailable", "worker", workerID, "cpu", cpu, "error", err)
	}
}
