//go:build !windows

package procman

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/swarmreq/swarmreq/pkg/ipc"
)

// noopCloser satisfies io.Closer where a platform has no resource to
// release beyond the process itself.
type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// startWorkerProcess starts cmd directly. POSIX process-tree containment
// doesn't need a Job-object equivalent here: the supervisor only ever
// signals the one worker PID it forked, and that worker alone holds the
// timeout alarm.
func startWorkerProcess(cmd *exec.Cmd) (io.Closer, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return noopCloser{}, nil
}

// attachSegment allocates a memfd-backed segment and arranges for the
// worker to inherit it as its first ExtraFiles entry (fd 3 in the child).
// The parent's own os.File handle for the memfd is returned as the cleanup
// func and closed when the worker is forgotten (ForgetChild) or fails to
// start.
func attachSegment(cmd *exec.Cmd, size int) (*attachedSegment, error) {
	seg, file, err := ipc.AllocateShared(size)
	if err != nil {
		return nil, err
	}
	cmd.ExtraFiles = append(cmd.ExtraFiles, file)
	cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%d", envSHMSize, seg.Size()))
	return &attachedSegment{
		segment: seg,
		cleanup: file.Close,
	}, nil
}

// classifyTimeout reports whether exitErr represents the worker's own
// self-armed timeout: either it exited with the timeout sentinel code, or
// it was killed by SIGALRM, the alarm the worker arms on itself.
func classifyTimeout(exitErr *exec.ExitError) bool {
	if exitErr.ExitCode() == timeoutExitCode {
		return true
	}
	status, ok := exitErr.Sys().(unix.WaitStatus)
	if !ok {
		return false
	}
	return status.Signaled() && status.Signal() == unix.SIGALRM
}

// openWorkerSegment attaches the worker side of a memfd-backed segment
// inherited as fd 3 (the first ExtraFiles entry in the parent).
func openWorkerSegment(size int) (*ipc.Segment, error) {
	const inheritedFD = 3
	return ipc.OpenShared(uintptr(inheritedFD), size)
}

func parseEnvInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// armTimeout arms a process-wide SIGALRM to fire in seconds, invoking
// onFire on delivery. This is the direct worker-side analog of the
// self-timeout each re-exec'd worker installs on itself.
func armTimeout(seconds int, onFire func()) (disarm func()) {
	if seconds <= 0 {
		return func() {}
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGALRM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			onFire()
		case <-done:
		}
	}()
	unix.Alarm(uint(seconds))
	return func() {
		unix.Alarm(0)
		signal.Stop(sigCh)
		close(done)
	}
}
