//go:build !windows

package ipc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Allocate creates an anonymous, shared memory segment of at least size
// bytes (rounded up to a power of two no smaller than MinSegmentSize) and
// maps it into the calling process. This mapping is private to the calling
// process's address space: it does not survive exec, only fork. Use
// AllocateShared for a segment that must be handed to a re-exec'd worker.
func Allocate(size int) (*Segment, error) {
	size = nextPow2(size)
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("ipc: mmap %d bytes: %w", size, err)
	}
	return &Segment{
		data: data,
		teardown: func(b []byte) error {
			return unix.Munmap(b)
		},
	}, nil
}

// AllocateShared creates a segment backed by a memfd: an anonymous,
// in-memory file that an exec'd child inherits as an open file descriptor
// (via os/exec's ExtraFiles) and can map independently with OpenShared.
// This stands in for "attach the segment in the parent before fork" in a
// process model built on re-exec rather than true fork, where an anonymous
// MAP_ANON mapping would not survive exec but an inherited file descriptor
// does.
func AllocateShared(size int) (*Segment, *os.File, error) {
	size = nextPow2(size)
	fd, err := unix.MemfdCreate("swarmreq-ipc", 0)
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: memfd_create: %w", err)
	}
	file := os.NewFile(uintptr(fd), "swarmreq-ipc")
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("ipc: truncate memfd to %d bytes: %w", size, err)
	}
	data, err := unix.Mmap(int(fd), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("ipc: mmap memfd: %w", err)
	}
	return &Segment{
		data: data,
		teardown: func(b []byte) error {
			return unix.Munmap(b)
		},
	}, file, nil
}

// OpenShared maps a segment of size bytes from fd, an inherited file
// descriptor created by a parent's AllocateShared call. Used by a re-exec'd
// worker to attach to the segment its parent allocated before starting it.
func OpenShared(fd uintptr, size int) (*Segment, error) {
	data, err := unix.Mmap(int(fd), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("ipc: mmap inherited fd %d: %w", fd, err)
	}
	return &Segment{
		data: data,
		teardown: func(b []byte) error {
			return unix.Munmap(b)
		},
	}, nil
}
