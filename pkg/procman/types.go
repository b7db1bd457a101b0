package procman

import (
	"io"
	"os/exec"

	"github.com/swarmreq/swarmreq/pkg/ipc"
)

// ExitClass classifies how a worker terminated.
type ExitClass int

const (
	// ClassNormal means the worker exited on its own with any code other
	// than the timeout sentinel; WaitResult.ExitCode holds that code (0
	// after its reactor drained, non-zero if its work failed).
	ClassNormal ExitClass = iota
	// ClassTimeout means the worker's own alarm fired and it exited with
	// the timeout sentinel before finishing its slice.
	ClassTimeout
	// ClassSignal means the worker was terminated by a signal other than
	// the timeout alarm (e.g. killed externally, crashed).
	ClassSignal
)

func (c ExitClass) String() string {
	switch c {
	case ClassNormal:
		return "normal"
	case ClassTimeout:
		return "timeout"
	case ClassSignal:
		return "signal"
	default:
		return "unknown"
	}
}

// timeoutExitCode is the sentinel a worker exits with when its own alarm
// fires before the reactor finishes the worker's slice. The parent
// classifies both this exit code and termination by SIGALRM as a timeout.
const timeoutExitCode = 124

// ForkOptions configures one call to Manager.ForkWorker.
type ForkOptions struct {
	// Index identifies this worker among its siblings; surfaced to the
	// worker via environment variable for log correlation and passed
	// through to WaitResult so callers can map a reap back to a slice.
	Index int
	// PinCPU requests that the worker be bound to the manager's next
	// round-robin CPU, where the platform supports it.
	PinCPU bool
	// UseSHM requests that a shared segment be allocated and handed to the
	// worker before it starts.
	UseSHM bool
	// SHMSize is the requested segment size in bytes, used only if UseSHM
	// is set.
	SHMSize int
	// TimeoutSeconds bounds the worker's wall-clock runtime. Zero disables
	// the self-armed timeout (not recommended outside of tests).
	TimeoutSeconds int
	// Args are the re-exec'd command line's arguments after argv[0],
	// typically encoding the worker's slice bounds. The worker marker is
	// passed by environment variable, not on the command line.
	Args []string
}

// WorkerHandle is the parent's view of one spawned worker, from fork
// through reap.
type WorkerHandle struct {
	PID   int
	Index int

	cmd            *exec.Cmd
	job            io.Closer
	segment        *ipc.Segment
	segmentCleanup func() error
}

// Segment returns the worker's attached shared segment, or nil if the
// worker was started without UseSHM. Only safe to read from after the
// worker has been reaped.
func (h *WorkerHandle) Segment() *ipc.Segment {
	return h.segment
}

// WaitResult is the outcome of one reaped worker.
type WaitResult struct {
	PID      int
	Index    int
	Class    ExitClass
	ExitCode int
}
