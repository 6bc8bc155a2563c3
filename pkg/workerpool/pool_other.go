//go:build !linux

package workerpool

import "github.com/virtualtestset/vpac/pkg/telemetry"

// applyRealtime is a no-op off Linux: RT scheduling is a Linux-specific
// capability, and its absence here is logged the same way a failed syscall
// would be on Linux.
func applyRealtime(log *telemetry.Logger, workerID, priority int) {
	if priority <= 0 {
		return
	}
	log.Warn("worker RT scheduling unsupported on this platform", "worker", workerID, "priority", priority)
}

func applyAffinity(log *telemetry.Logger, workerID, cpu int) {
	log.Warn("worker CPU affinity unsupported on this platform", "worker", workerID, "cpu", cpu)
}
