package engine

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/swarmreq/swarmreq/pkg/procman"
	"github.com/swarmreq/swarmreq/pkg/reactor"
	"github.com/swarmreq/swarmreq/pkg/swarmlog"
)

// sliceFlagPrefix introduces the slice-bounds argument Execute appends to a
// re-exec'd worker's argv: the one piece of partitioning state a worker
// cannot recompute on its own, since only the parent ran Partition.
const sliceFlagPrefix = "-swarmreq-slice="

func encodeSliceFlag(s procman.Slice) string {
	return fmt.Sprintf("%s%d:%d", sliceFlagPrefix, s.Start, s.End)
}

func parseSliceFlag(args []string) (procman.Slice, error) {
	for _, arg := range args {
		if !strings.HasPrefix(arg, sliceFlagPrefix) {
			continue
		}
		bounds := strings.TrimPrefix(arg, sliceFlagPrefix)
		parts := strings.SplitN(bounds, ":", 2)
		if len(parts) != 2 {
			break
		}
		start, errStart := strconv.Atoi(parts[0])
		end, errEnd := strconv.Atoi(parts[1])
		if errStart != nil || errEnd != nil {
			break
		}
		return procman.Slice{Start: start, End: end}, nil
	}
	return procman.Slice{}, fmt.Errorf("engine: no %s argument found in worker argv", sliceFlagPrefix)
}

// activeWriter guards the current worker process's segment writer so that
// After hooks invoked concurrently by the reactor's goroutines can append
// to it without racing: the IPC writer itself assumes a single, sequential
// writer, which no longer holds once dispatch is concurrent goroutines
// instead of one cooperative thread.
var activeWriter struct {
	mu sync.Mutex
	w  interface{ AppendString(string) error }
}

// AppendRecord appends s to the current worker's shared segment, if one is
// attached. Safe to call concurrently from multiple After hooks. Returns
// ErrNoActiveSegment outside of a worker process started with UseSHM.
func AppendRecord(s string) error {
	activeWriter.mu.Lock()
	defer activeWriter.mu.Unlock()
	if activeWriter.w == nil {
		return ErrNoActiveSegment
	}
	return activeWriter.w.AppendString(s)
}

func setActiveWriter(w interface{ AppendString(string) error }) {
	activeWriter.mu.Lock()
	activeWriter.w = w
	activeWriter.mu.Unlock()
}

// RunIfWorker checks whether the current process is a re-exec'd worker; if
// so, it rebuilds the full instruction list via cfg.Loader, slices out this
// worker's range, runs the reactor over it, and exits the process — it
// never returns in that case. If the current process is the original
// parent invocation, it returns false immediately so the caller proceeds
// with its normal Execute path.
//
// A binary that wants fork-safe mode must call this unconditionally near
// the top of main, before doing anything else that assumes it is the
// parent.
func RunIfWorker(ctx context.Context, cfg Config) bool {
	if !procman.IsWorker() {
		return false
	}
	if cfg.Log == nil {
		cfg.Log = swarmlog.Discard()
	}

	procCfg, err := procman.LoadWorkerConfig()
	if err != nil {
		cfg.Log.WithError(err).Fatal("engine: worker failed to load configuration")
	}

	slice, err := parseSliceFlag(os.Args[1:])
	if err != nil {
		cfg.Log.WithError(err).Fatal("engine: worker failed to parse slice bounds")
	}

	procman.RunWorker(procCfg, func(procCfg *procman.WorkerConfig) error {
		if procCfg.Segment != nil {
			setActiveWriter(procCfg.Segment.Writer())
		}

		full, err := cfg.Loader(ctx)
		if err != nil {
			return fmt.Errorf("engine: worker failed to reload instructions: %w", err)
		}
		if slice.Start < 0 || slice.End > len(full) || slice.Start > slice.End {
			return fmt.Errorf("engine: worker slice %d:%d out of range for %d instructions", slice.Start, slice.End, len(full))
		}

		eng := reactor.New(cfg.Log, reactor.Config{
			PoolSize:           cfg.PoolSize,
			MaxResponseBytes:   cfg.MaxResponseBytes,
			DNSCacheTimeout:    cfg.DNSCacheTimeout,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Metrics:            cfg.Metrics,
		})
		return eng.Run(ctx, full[slice.Start:slice.End])
	})

	panic("unreachable: procman.RunWorker always exits the process")
}
