//go:build windows

package ipc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Allocate creates a page-file-backed file mapping of at least size bytes
// (rounded up to a power of two no smaller than MinSegmentSize) and maps a
// view of it into the calling process. The mapping is unnamed, and Windows
// has no fork(), so no worker can attach to it; pkg/procman instead uses
// AllocateShared, passing the named mapping's name to the child via an
// environment variable so the child can open it with OpenShared.
func Allocate(size int) (*Segment, error) {
	size = nextPow2(size)
	handle, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(size), nil)
	if err != nil {
		return nil, fmt.Errorf("ipc: CreateFileMapping %d bytes: %w", size, err)
	}
	addr, err := windows.MapViewOfFile(handle, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("ipc: MapViewOfFile %d bytes: %w", size, err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &Segment{
		data: data,
		teardown: func(b []byte) error {
			if len(b) > 0 {
				_ = windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&b[0])))
			}
			return windows.CloseHandle(handle)
		},
	}, nil
}

// AllocateShared creates a file mapping of size bytes under the caller-chosen
// name and returns the attached Segment. A re-exec'd worker opens the
// same mapping with OpenShared(name, size), the name having been passed
// down via an environment variable.
func AllocateShared(size int, name string) (*Segment, error) {
	size = nextPow2(size)
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("ipc: invalid mapping name %q: %w", name, err)
	}
	handle, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(size), namePtr)
	if err != nil {
		return nil, fmt.Errorf("ipc: CreateFileMapping %q (%d bytes): %w", name, size, err)
	}
	addr, err := windows.MapViewOfFile(handle, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("ipc: MapViewOfFile %q (%d bytes): %w", name, size, err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &Segment{
		data: data,
		teardown: func(b []byte) error {
			if len(b) > 0 {
				_ = windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&b[0])))
			}
			return windows.CloseHandle(handle)
		},
	}, nil
}

// OpenShared opens an existing named file mapping created by a parent's
// AllocateShared call. Used by a re-exec'd worker to attach to the segment
// its parent allocated before starting it.
func OpenShared(name string, size int) (*Segment, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("ipc: invalid mapping name %q: %w", name, err)
	}
	handle, err := windows.OpenFileMapping(windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, false, namePtr)
	if err != nil {
		return nil, fmt.Errorf("ipc: OpenFileMapping %q: %w", name, err)
	}
	addr, err := windows.MapViewOfFile(handle, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("ipc: MapViewOfFile %q: %w", name, err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &Segment{
		data: data,
		teardown: func(b []byte) error {
			if len(b) > 0 {
				_ = windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&b[0])))
			}
			return windows.CloseHandle(handle)
		},
	}, nil
}
