package procman

import "errors"

// ErrNoChildren is returned by WaitAny when no workers are outstanding.
var ErrNoChildren = errors.New("procman: no children to wait for")

// ErrSegmentAllocation indicates a shared-memory segment could not be
// allocated for a new worker. The caller treats this as fatal: the engine
// cannot recover from losing its IPC channel mid-run.
var ErrSegmentAllocation = errors.New("procman: failed to allocate shared segment")

// ErrForkFailed indicates the worker process could not be started. Callers
// log this and continue with fewer workers rather than aborting the run.
var ErrForkFailed = errors.New("procman: failed to start worker process")
