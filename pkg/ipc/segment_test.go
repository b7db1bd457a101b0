package ipc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendThenDrainIsIdentity(t *testing.T) {
	seg, err := Allocate(MinSegmentSize)
	require.NoError(t, err)
	defer seg.Close()

	w := seg.Writer()
	want := []string{"https://example.test/a", "https://example.test/b", "found: admin.bak"}
	for _, s := range want {
		require.NoError(t, w.AppendString(s))
	}

	got := seg.Reader().Drain()
	require.Equal(t, want, got)
}

func TestAppendTruncatesOversizedPayload(t *testing.T) {
	seg, err := Allocate(MinSegmentSize)
	require.NoError(t, err)
	defer seg.Close()

	huge := make([]byte, MaxRecordLength+1024)
	for i := range huge {
		huge[i] = 'x'
	}

	w := seg.Writer()
	require.NoError(t, w.Append(huge))

	got := seg.Reader().Drain()
	require.Len(t, got, 1)
	require.Len(t, got[0], MaxRecordLength)
}

func TestAppendRefusesWhenSegmentFull(t *testing.T) {
	seg, err := Allocate(MinSegmentSize)
	require.NoError(t, err)
	defer seg.Close()

	w := seg.Writer()
	record := make([]byte, MaxRecordLength)
	written := 0
	for {
		if err := w.Append(record); err != nil {
			require.ErrorIs(t, err, ErrSegmentFull)
			break
		}
		written++
	}
	require.Greater(t, written, 0)

	got := seg.Reader().Drain()
	require.Len(t, got, written)
}

func TestDrainStopsAtZeroTerminator(t *testing.T) {
	seg, err := Allocate(MinSegmentSize)
	require.NoError(t, err)
	defer seg.Close()

	w := seg.Writer()
	require.NoError(t, w.AppendString("one"))
	require.NoError(t, w.Close())
	require.NoError(t, w.AppendString("two"))

	got := seg.Reader().Drain()
	require.Equal(t, []string{"one"}, got)
}

func TestCloseIsIdempotent(t *testing.T) {
	seg, err := Allocate(MinSegmentSize)
	require.NoError(t, err)

	require.NoError(t, seg.Close())
	require.NoError(t, seg.Close())
}

func TestAllocateRoundsUpToPowerOfTwo(t *testing.T) {
	seg, err := Allocate(3 * 1024 * 1024)
	require.NoError(t, err)
	defer seg.Close()

	require.Equal(t, 4*1024*1024, seg.Size())
}

func TestFanoutScenarioThirtyTwoUniqueRecords(t *testing.T) {
	seg, err := Allocate(MinSegmentSize)
	require.NoError(t, err)
	defer seg.Close()

	w := seg.Writer()
	for i := 0; i < 32; i++ {
		require.NoError(t, w.AppendString(fmt.Sprintf("https://example.test/page-%d", i)))
	}

	got := seg.Reader().Drain()
	require.Len(t, got, 32)

	seen := make(map[string]bool, 32)
	for _, r := range got {
		require.False(t, seen[r], "duplicate record: %s", r)
		seen[r] = true
	}
}
