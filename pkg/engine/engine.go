// Package engine is the Engine Supervisor: the single public entry point
// that validates a submitted instruction list, partitions it across
// workers, drives fan-out (in-process, multi-process, or slow-parallel),
// and runs the parent-side wait-loop invoking the caller's finish hook.
//
// The drive loop forks every worker first and then reaps them one at a
// time through procman.Manager.WaitAny; its bookkeeping generalizes
// "schedule inference requests across backends" into "schedule HTTP
// descriptors across worker processes".
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/swarmreq/swarmreq/pkg/cpuinfo"
	"github.com/swarmreq/swarmreq/pkg/instruction"
	"github.com/swarmreq/swarmreq/pkg/procman"
	"github.com/swarmreq/swarmreq/pkg/reactor"
)

// FinishResult is what the finish hook observes for one reaped worker.
type FinishResult struct {
	// Worker is nil in the non-fork-safe, in-process path; otherwise the
	// reaped worker's handle, with its segment still attached.
	Worker *procman.WorkerHandle
	// Class is the worker's exit classification. Zero value (ClassNormal)
	// in the in-process path.
	Class procman.ExitClass
	// Records is the worker's drained segment, or nil if UseSHM was not
	// set or the worker had no segment.
	Records []string
}

// Engine is one configured Engine Supervisor.
type Engine struct {
	cfg      Config
	topology cpuinfo.Topology
}

// New constructs an Engine, applying opts over DefaultConfig.
func New(opts ...Option) *Engine {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		cfg:      cfg,
		topology: cpuinfo.Detect(cfg.Log),
	}
}

// OnFinish registers the callback invoked once per reaped worker. Only one
// hook may be registered; a later call replaces the earlier one.
func (e *Engine) OnFinish(fn FinishFunc) {
	e.cfg.finish = fn
}

// Execute validates, partitions, and runs instrs to completion, driving the
// configured fan-out mode and the parent-side wait-loop. It returns a
// *SubmissionError for a bad submission, and a plain error when fork-safe
// mode cannot run at all (no Loader, or no worker could be started) or ctx
// ends first. Other mid-run failures (individual fork failures, transport
// errors, timeouts) are not returned here — they are recorded on
// individual instructions or observed through the finish hook.
func (e *Engine) Execute(ctx context.Context, instrs []*instruction.Instruction) error {
	if len(instrs) == 0 {
		return &SubmissionError{Err: ErrNoInstructions}
	}
	for _, instr := range instrs {
		if instr == nil {
			return &SubmissionError{Err: ErrInvalidInstruction}
		}
	}

	e.cfg.Metrics.ObserveSubmission(len(instrs))

	if !e.cfg.ForkSafe {
		return e.runInProcess(ctx, instrs)
	}
	if e.cfg.Loader == nil {
		return fmt.Errorf("engine: fork-safe mode requires WithLoader")
	}

	mgr, err := procman.NewManager(e.cfg.Log, e.topology)
	if err != nil {
		return fmt.Errorf("engine: construct process manager: %w", err)
	}

	if e.cfg.SlowParallel {
		return e.runSlowParallel(ctx, mgr, len(instrs))
	}
	return e.runForkSafe(ctx, mgr, len(instrs))
}

func (e *Engine) runInProcess(ctx context.Context, instrs []*instruction.Instruction) error {
	eng := reactor.New(e.cfg.Log, reactor.Config{
		PoolSize:           e.cfg.PoolSize,
		MaxResponseBytes:   e.cfg.MaxResponseBytes,
		DNSCacheTimeout:    e.cfg.DNSCacheTimeout,
		InsecureSkipVerify: e.cfg.InsecureSkipVerify,
		Metrics:            e.cfg.Metrics,
	})
	err := eng.Run(ctx, instrs)
	if e.cfg.finish != nil {
		e.cfg.finish(FinishResult{})
	}
	return err
}

// runForkSafe partitions instrs across C+1 workers (fast mode) and drives
// the wait-loop until every forked worker has been reaped and forgotten.
func (e *Engine) runForkSafe(ctx context.Context, mgr *procman.Manager, n int) error {
	slices := procman.Partition(n, e.topology.Cores)
	forked := 0
	for w, slice := range slices {
		if _, err := e.fork(ctx, mgr, w, slice); err != nil {
			e.cfg.Log.WithError(err).Warn("engine: worker failed to start, continuing with fewer workers")
			continue
		}
		forked++
	}
	if forked == 0 {
		return fmt.Errorf("engine: no workers could be started")
	}
	return e.drainUntilEmpty(ctx, mgr)
}

// runSlowParallel gives each worker exactly one descriptor, in rounds of up
// to C+1 concurrent workers, fully draining each round before starting the
// next — bounding any single timeout's loss to one descriptor.
func (e *Engine) runSlowParallel(ctx context.Context, mgr *procman.Manager, n int) error {
	rounds := procman.SlowParallelRounds(n, e.topology.Cores+1)
	totalForked := 0
	for _, round := range rounds {
		forkedThisRound := 0
		for _, slice := range round {
			w := totalForked + forkedThisRound
			if _, err := e.fork(ctx, mgr, w, slice); err != nil {
				e.cfg.Log.WithError(err).Warn("engine: worker failed to start, continuing with fewer workers")
				continue
			}
			forkedThisRound++
		}
		totalForked += forkedThisRound
		if err := e.drainUntilEmpty(ctx, mgr); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) fork(ctx context.Context, mgr *procman.Manager, index int, slice procman.Slice) (*procman.WorkerHandle, error) {
	args := e.workerArgs(slice)
	h, err := mgr.ForkWorker(ctx, procman.ForkOptions{
		Index:          index,
		PinCPU:         e.cfg.PinCPU,
		UseSHM:         e.cfg.UseSHM,
		SHMSize:        e.cfg.SHMSize,
		TimeoutSeconds: e.cfg.TimeoutSeconds,
		Args:           args,
	})
	if errors.Is(err, procman.ErrSegmentAllocation) {
		e.cfg.Log.WithError(err).Fatal("engine: shared segment allocation failed")
	}
	return h, err
}

func (e *Engine) workerArgs(slice procman.Slice) []string {
	base := e.cfg.WorkerArgs
	if base == nil {
		base = os.Args[1:]
	}
	args := make([]string, len(base), len(base)+1)
	copy(args, base)
	return append(args, encodeSliceFlag(slice))
}

// drainUntilEmpty repeatedly waits for the next worker transition, invoking
// the finish hook for normal-exit and timeout reaps (per spec: other signal
// terminations are forgotten silently), until the manager has no
// outstanding children.
func (e *Engine) drainUntilEmpty(ctx context.Context, mgr *procman.Manager) error {
	for mgr.Outstanding() > 0 {
		res, err := mgr.WaitAny(ctx)
		if err == procman.ErrNoChildren {
			return nil
		}
		if err != nil {
			return fmt.Errorf("engine: wait for worker: %w", err)
		}

		e.cfg.Metrics.ObserveWorkerReaped(res.Class.String())

		handle, ok := mgr.Handle(res.PID)
		if ok && (res.Class == procman.ClassNormal || res.Class == procman.ClassTimeout) {
			var records []string
			if seg := handle.Segment(); seg != nil {
				records = seg.Reader().Drain()
				e.cfg.Metrics.ObserveRecordsDrained(len(records))
			}
			if e.cfg.finish != nil {
				e.cfg.finish(FinishResult{Worker: handle, Class: res.Class, Records: records})
			}
		}
		if err := mgr.ForgetChild(res.PID); err != nil {
			e.cfg.Log.WithError(err).Warn("engine: failed to release worker resources")
		}
	}
	return nil
}
