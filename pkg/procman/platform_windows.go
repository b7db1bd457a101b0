//go:build windows

package procman

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	winjob "github.com/kolesnikovae/go-winjob"

	"github.com/swarmreq/swarmreq/pkg/cpuinfo"
	"github.com/swarmreq/swarmreq/pkg/ipc"
)

// attachSegment allocates a named file mapping and passes its name down to
// the worker via environment variable: Windows has no fd-inheritance
// analog to a POSIX ExtraFiles handoff, but a named mapping is openable by
// any process that knows its name.
func attachSegment(cmd *exec.Cmd, size int) (*attachedSegment, error) {
	name := "swarmreq-ipc-" + uuid.NewString()
	seg, err := ipc.AllocateShared(size, name)
	if err != nil {
		return nil, err
	}
	cmd.Env = append(cmd.Env,
		fmt.Sprintf("%s=%d", envSHMSize, seg.Size()),
		fmt.Sprintf("%s=%s", envSHMMappingKey, name),
	)
	return &attachedSegment{segment: seg}, nil
}

// classifyTimeout reports whether exitErr represents the worker's own
// self-armed timeout. Windows has no SIGALRM, so the worker's
// time.AfterFunc fallback exits with the same sentinel code a POSIX
// worker's alarm handler uses.
func classifyTimeout(exitErr *exec.ExitError) bool {
	return exitErr.ExitCode() == timeoutExitCode
}

// pinCPU is a no-op placeholder: worker process-tree containment on
// Windows is handled by wrapping the process in a Job object, not by CPU
// affinity.
func pinCPU(pid, cursor int, topo cpuinfo.Topology) error {
	return nil
}

// startWorkerProcess starts cmd inside a Windows Job object configured to
// kill the whole process tree when the job is closed, so a
// parent-initiated timeout kill takes any children the worker itself
// spawned with it. The returned io.Closer is the job object; close it
// once the worker has been reaped.
func startWorkerProcess(cmd *exec.Cmd) (io.Closer, error) {
	job, err := winjob.Start(cmd, winjob.WithKillOnJobClose())
	if err != nil {
		return nil, err
	}
	return job, nil
}

// openWorkerSegment opens the named mapping this worker's parent created,
// using the name and size passed down via environment variable.
func openWorkerSegment(size int) (*ipc.Segment, error) {
	name := os.Getenv(envSHMMappingKey)
	if name == "" {
		return nil, errors.New("procman: worker started with UseSHM but no mapping name in environment")
	}
	return ipc.OpenShared(name, size)
}

// armTimeout starts a timer that invokes onFire after seconds elapse.
// Windows has no SIGALRM, so a worker's self-timeout is a plain timer
// instead of a signal handler.
func armTimeout(seconds int, onFire func()) (disarm func()) {
	if seconds <= 0 {
		return func() {}
	}
	timer := time.AfterFunc(time.Duration(seconds)*time.Second, onFire)
	return func() { timer.Stop() }
}
