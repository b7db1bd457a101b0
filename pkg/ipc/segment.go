// Package ipc implements the shared-memory length-prefixed record log used
// to carry values discovered by a worker process back to its parent without
// pipes or sockets. A Segment is allocated by the parent before it forks (or
// re-execs) a worker, attached by both sides, written by exactly one side
// (the worker), and drained by the parent only after the worker has exited.
// There are no locks: the fork/reap barrier is the only synchronization
// primitive this package relies on.
package ipc

import (
	"encoding/binary"
	"errors"
	"sync"
)

const (
	// MaxRecordLength is the maximum payload size of a single record. Longer
	// payloads are silently truncated by Append.
	MaxRecordLength = 16 * 1024
	// MinSegmentSize is the smallest segment Allocate will create, regardless
	// of the size requested.
	MinSegmentSize = 1 << 20
	// DefaultSegmentSize is used when a caller doesn't have a specific size
	// requirement.
	DefaultSegmentSize = 16 << 20

	// lengthWordSize is the width, in bytes, of the length word prefixing
	// each record. It is fixed at 8 bytes (a 64-bit platform word) rather
	// than sizeof(uintptr), so that the wire layout doesn't change across
	// 32-bit and 64-bit builds sharing the same segment.
	lengthWordSize = 8
)

// ErrSegmentFull indicates that a record could not be appended because
// insufficient trailing space remains in the segment. No partial write
// occurs.
var ErrSegmentFull = errors.New("ipc: segment has no room for record")

// ErrRecordTooLarge reports a payload longer than MaxRecordLength. No
// function in this package returns it: Append truncates such payloads
// instead.
var ErrRecordTooLarge = errors.New("ipc: record exceeds maximum length")

// nextPow2 rounds n up to the next power of two, with a floor of
// MinSegmentSize.
func nextPow2(n int) int {
	if n < MinSegmentSize {
		n = MinSegmentSize
	}
	p := MinSegmentSize
	for p < n {
		p <<= 1
	}
	return p
}

// Segment is a contiguous region of memory shared between a parent process
// and exactly one child worker it spawned. Allocate creates and maps a
// segment; platform-specific code backs it with an anonymous mmap on POSIX
// or a named file mapping on Windows, but callers never see the difference.
type Segment struct {
	data      []byte
	teardown  func([]byte) error
	closeOnce sync.Once
	closeErr  error
}

// Writer returns the append side of the segment, for use by the worker that
// owns it.
func (s *Segment) Writer() *Writer {
	return &Writer{seg: s}
}

// Reader returns the drain side of the segment, for use by the parent after
// the writing worker has been reaped.
func (s *Segment) Reader() *Reader {
	return &Reader{seg: s}
}

// Size reports the segment's allocated size in bytes (a power of two, at
// least MinSegmentSize).
func (s *Segment) Size() int {
	return len(s.data)
}

// Close unmaps the segment. It is idempotent: only the first call performs
// the unmap, subsequent calls return the same result.
func (s *Segment) Close() error {
	s.closeOnce.Do(func() {
		if s.teardown != nil {
			s.closeErr = s.teardown(s.data)
		}
	})
	return s.closeErr
}

// Writer is the single-writer append side of a Segment, used exclusively by
// the worker process that owns the segment.
type Writer struct {
	seg    *Segment
	offset int
}

// Append writes a record to the log. Payloads longer than MaxRecordLength
// are silently truncated. If insufficient trailing space remains, Append
// fails without performing any partial write and returns ErrSegmentFull.
func (w *Writer) Append(data []byte) error {
	if len(data) > MaxRecordLength {
		data = data[:MaxRecordLength]
	}
	return w.appendExact(data)
}

// AppendString appends s as a record. Go strings already carry their own
// length, so there is no need for a strlen scan before computing the
// record length.
func (w *Writer) AppendString(s string) error {
	return w.Append([]byte(s))
}

func (w *Writer) appendExact(data []byte) error {
	need := lengthWordSize + len(data)
	buf := w.seg.data
	if w.offset+need > len(buf) {
		return ErrSegmentFull
	}
	binary.NativeEndian.PutUint64(buf[w.offset:], uint64(len(data)))
	copy(buf[w.offset+lengthWordSize:], data)
	w.offset += need
	return nil
}

// Offset reports the writer's current position within the segment, i.e. the
// running sum of sizeof(length-word)+length over every committed record.
func (w *Writer) Offset() int {
	return w.offset
}

// Close writes the zero-length terminator record, if room remains. It is
// safe, but not required, to call this before the worker exits; a reader
// also stops correctly at segment_end with no terminator present.
func (w *Writer) Close() error {
	if w.offset+lengthWordSize > len(w.seg.data) {
		return ErrSegmentFull
	}
	binary.NativeEndian.PutUint64(w.seg.data[w.offset:], 0)
	return nil
}

// Reader is the parent-side drain of a Segment, used only after the writing
// worker has been reaped.
type Reader struct {
	seg *Segment
}

// Drain walks records from offset 0, returning each as a string, in the
// order they were appended. It stops at a zero-length terminator record, at
// segment_end, or at the first record whose declared length would cross
// segment_end (a malformed record, treated as end-of-log rather than an
// error, since a worker killed mid-write leaves exactly this shape behind).
func (r *Reader) Drain() []string {
	buf := r.seg.data
	var records []string
	offset := 0
	for offset+lengthWordSize <= len(buf) {
		length := binary.NativeEndian.Uint64(buf[offset : offset+lengthWordSize])
		if length == 0 {
			break
		}
		if length > MaxRecordLength {
			break
		}
		start := offset + lengthWordSize
		end := start + int(length)
		if end > len(buf) {
			break
		}
		records = append(records, string(buf[start:end]))
		offset = end
	}
	return records
}
