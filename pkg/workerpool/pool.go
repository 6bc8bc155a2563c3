// Package workerpool implements the fixed-size worker pool that owns
// publisher tick threads and other repeatable tasks, with optional
// real-time scheduling and CPU affinity on Linux.
package workerpool

import (
	"runtime"
	"sync"

	"github.com/virtualtestset/vpac/pkg/telemetry"
)

// Task is a unit of work submitted to the pool. A Task that panics is
// recovered by the worker, logged, and does not stop the worker.
type Task func()

// Config parameterizes a Pool.
type Config struct {
	NumWorkers    int
	QueueCapacity int
	// RTPriority, 0-99, requests FIFO real-time scheduling for each worker
	// when > 0. Failure to obtain it is never fatal.
	RTPriority int
	// CPUSet, if non-empty, pins workers to these CPUs round-robin.
	CPUSet []int

	Log *telemetry.Logger
}

// Pool is a fixed set of worker goroutines draining one FIFO task queue.
type Pool struct {
	cfg   Config
	tasks chan Task
	wg    sync.WaitGroup

	mu       sync.Mutex
	draining bool
}

// New starts cfg.NumWorkers workers immediately.
func New(cfg Config) *Pool {
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}
	if cfg.Log == nil {
		cfg.Log = telemetry.Nop()
	}
	p := &Pool{
		cfg:   cfg,
		tasks: make(chan Task, cfg.QueueCapacity),
	}
	for i := 0; i < cfg.NumWorkers; i++ {
		cpu := -1
		if len(cfg.CPUSet) > 0 {
			cpu = cfg.CPUSet[i%len(cfg.CPUSet)]
		}
		p.wg.Add(1)
		go p.worker(i, cpu)
	}
	return p
}

func (p *Pool) worker(id, cpu int) {
	defer p.wg.Done()

	if p.cfg.RTPriority > 0 || cpu >= 0 {
		// sched_setscheduler/sched_setaffinity act on the calling OS thread;
		// pin this goroutine to one so the policy sticks for its lifetime.
		runtime.LockOSThread()
	}
	applyRealtime(p.cfg.Log, id, p.cfg.RTPriority)
	if cpu >= 0 {
		applyAffinity(p.cfg.Log, id, cpu)
	}

	for task := range p.tasks {
		runTask(p.cfg.Log, task)
	}
}

func runTask(log *telemetry.Logger, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker task panicked", "recover", r)
		}
	}()
	task()
}

// Submit enqueues task. It returns false if the pool is shutting down or
// already shut down; no new tasks are accepted past that point.
func (p *Pool) Submit(task Task) bool {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	p.tasks <- task
	return true
}

// Shutdown signals drain-then-join: no further Submit calls are accepted,
// but every task already queued runs to completion before Shutdown returns.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true
	p.mu.Unlock()

	close(p.tasks)
	p.wg.Wait()
}
