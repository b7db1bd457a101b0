// Package procman is the Process Manager: it allocates shared segments,
// spawns workers via re-exec, pins them to CPUs where the platform
// supports it, arms their timeouts, and reaps and classifies their exits.
//
// Go has no safe fork() once goroutines are running, so "fork a worker" is
// implemented as re-exec: the parent starts a fresh copy of its own
// executable with an environment marker, the Go-safe analog of "fork, then
// have the child immediately know it is the child".
package procman

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/swarmreq/swarmreq/pkg/cpuinfo"
	"github.com/swarmreq/swarmreq/pkg/ipc"
	"github.com/swarmreq/swarmreq/pkg/swarmlog"
)

// Manager supervises a pool of re-exec'd worker processes sharing one
// parent.
type Manager struct {
	log      swarmlog.Logger
	execPath string
	topology cpuinfo.Topology

	mu        sync.Mutex
	children  map[int]*WorkerHandle
	cpuCursor int
	results   chan WaitResult
}

// NewManager constructs a Manager that re-execs the currently running
// binary to spawn workers.
func NewManager(log swarmlog.Logger, topology cpuinfo.Topology) (*Manager, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("procman: resolve own executable: %w", err)
	}
	return &Manager{
		log:      log,
		execPath: execPath,
		topology: topology,
		children: make(map[int]*WorkerHandle),
		results:  make(chan WaitResult, 64),
	}, nil
}

// ForkWorker starts one worker process per ForkOptions, optionally
// attaching a freshly allocated shared segment before start so both sides
// observe it from the moment the worker begins running.
func (m *Manager) ForkWorker(ctx context.Context, opts ForkOptions) (*WorkerHandle, error) {
	cmd := exec.CommandContext(ctx, m.execPath, opts.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		envWorkerMarker+"=1",
		envWorkerIndex+"="+strconv.Itoa(opts.Index),
		envTimeoutSecs+"="+strconv.Itoa(opts.TimeoutSeconds),
	)

	var attached *attachedSegment
	if opts.UseSHM {
		var err error
		attached, err = attachSegment(cmd, opts.SHMSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSegmentAllocation, err)
		}
	}

	m.mu.Lock()
	cursor := m.cpuCursor
	m.cpuCursor++
	m.mu.Unlock()

	job, err := startWorkerProcess(cmd)
	if err != nil {
		if attached != nil {
			_ = attached.segment.Close()
			if attached.cleanup != nil {
				_ = attached.cleanup()
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrForkFailed, err)
	}

	if opts.PinCPU {
		if err := pinCPU(cmd.Process.Pid, cursor, m.topology); err != nil {
			m.log.WithError(err).Warn("procman: failed to pin worker to CPU")
		}
	}

	handle := &WorkerHandle{
		PID:   cmd.Process.Pid,
		Index: opts.Index,
		cmd:   cmd,
		job:   job,
	}
	if attached != nil {
		handle.segment = attached.segment
		handle.segmentCleanup = attached.cleanup
	}

	m.mu.Lock()
	m.children[handle.PID] = handle
	m.mu.Unlock()

	go m.reap(handle)

	return handle, nil
}

// reap blocks on the worker's exit, classifies it, and publishes the
// result to the manager's shared result channel.
func (m *Manager) reap(h *WorkerHandle) {
	err := h.cmd.Wait()
	result := WaitResult{PID: h.PID, Index: h.Index}
	if err == nil {
		result.Class = ClassNormal
		result.ExitCode = 0
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		switch {
		case classifyTimeout(exitErr):
			result.Class = ClassTimeout
		case result.ExitCode >= 0:
			// Exited on its own with a non-zero status; ExitCode is -1
			// only when a signal terminated the process.
			result.Class = ClassNormal
		default:
			result.Class = ClassSignal
		}
	} else {
		m.log.WithError(err).Warn("procman: worker wait failed")
		result.Class = ClassSignal
		result.ExitCode = -1
	}
	m.results <- result
}

// WaitAny blocks until any worker transitions, or ctx is done, or no
// workers are outstanding.
func (m *Manager) WaitAny(ctx context.Context) (WaitResult, error) {
	m.mu.Lock()
	n := len(m.children)
	m.mu.Unlock()
	if n == 0 {
		return WaitResult{}, ErrNoChildren
	}
	select {
	case res := <-m.results:
		return res, nil
	case <-ctx.Done():
		return WaitResult{}, ctx.Err()
	}
}

// ForgetChild removes the handle for pid and releases its segment.
// Idempotent.
func (m *Manager) ForgetChild(pid int) error {
	m.mu.Lock()
	handle, ok := m.children[pid]
	if ok {
		delete(m.children, pid)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	var err error
	if handle.segment != nil {
		err = handle.segment.Close()
	}
	if handle.segmentCleanup != nil {
		if cerr := handle.segmentCleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if handle.job != nil {
		if cerr := handle.job.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Outstanding reports how many workers have not yet been forgotten.
func (m *Manager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.children)
}

// Handle looks up a still-tracked worker by pid.
func (m *Manager) Handle(pid int) (*WorkerHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.children[pid]
	return h, ok
}

// attachedSegment bundles a worker's shared segment with whatever
// platform-specific resource (an inherited fd, a named mapping handle)
// must be released in the parent when the worker is forgotten.
type attachedSegment struct {
	segment *ipc.Segment
	cleanup func() error
}
