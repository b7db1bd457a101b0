package procman

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/swarmreq/swarmreq/pkg/cpuinfo"
	"github.com/swarmreq/swarmreq/pkg/swarmlog"
)

// TestMain lets this test binary also play the role of a re-exec'd worker:
// when ForkWorker starts it with the worker marker set, it runs the
// behavior named by os.Args[1] instead of running the test suite. This
// is the standard self-exec helper-process pattern used to test process
// supervision code without a separate fixture binary.
func TestMain(m *testing.M) {
	if !IsWorker() {
		os.Exit(m.Run())
	}

	cfg, err := LoadWorkerConfig()
	if err != nil {
		os.Exit(1)
	}

	behavior := "normal-exit"
	if len(os.Args) > 1 {
		behavior = os.Args[1]
	}

	RunWorker(cfg, func(cfg *WorkerConfig) error {
		switch behavior {
		case "write-record":
			if cfg.Segment != nil {
				w := cfg.Segment.Writer()
				_ = w.AppendString("https://example.test/index")
				_ = w.Close()
			}
			return nil
		case "hang":
			time.Sleep(10 * time.Second)
			return nil
		default:
			return nil
		}
	})
}

func testManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewManager(swarmlog.Discard(), cpuinfo.Topology{Cores: 2, Source: "test"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func TestForkWorkerReapsNormalExit(t *testing.T) {
	mgr := testManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	handle, err := mgr.ForkWorker(ctx, ForkOptions{
		Index:          0,
		TimeoutSeconds: 5,
		Args:           []string{"normal-exit"},
	})
	if err != nil {
		t.Fatalf("ForkWorker: %v", err)
	}

	result, err := mgr.WaitAny(ctx)
	if err != nil {
		t.Fatalf("WaitAny: %v", err)
	}
	if result.PID != handle.PID {
		t.Errorf("result.PID = %d, want %d", result.PID, handle.PID)
	}
	if result.Class != ClassNormal {
		t.Errorf("result.Class = %v, want ClassNormal", result.Class)
	}
	if err := mgr.ForgetChild(result.PID); err != nil {
		t.Errorf("ForgetChild: %v", err)
	}
	if mgr.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d, want 0", mgr.Outstanding())
	}
}

func TestWaitAnyReturnsErrNoChildrenWhenIdle(t *testing.T) {
	mgr := testManager(t)
	_, err := mgr.WaitAny(context.Background())
	if err != ErrNoChildren {
		t.Errorf("WaitAny() err = %v, want ErrNoChildren", err)
	}
}

func TestForkWorkerWithSharedSegmentRoundTrips(t *testing.T) {
	mgr := testManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	handle, err := mgr.ForkWorker(ctx, ForkOptions{
		Index:          0,
		TimeoutSeconds: 5,
		UseSHM:         true,
		SHMSize:        1 << 20,
		Args:           []string{"write-record"},
	})
	if err != nil {
		t.Fatalf("ForkWorker: %v", err)
	}

	result, err := mgr.WaitAny(ctx)
	if err != nil {
		t.Fatalf("WaitAny: %v", err)
	}
	if result.Class != ClassNormal {
		t.Fatalf("result.Class = %v, want ClassNormal", result.Class)
	}

	records := handle.Segment().Reader().Drain()
	if len(records) != 1 || records[0] != "https://example.test/index" {
		t.Fatalf("Drain() = %v, want one record", records)
	}
	if err := mgr.ForgetChild(handle.PID); err != nil {
		t.Errorf("ForgetChild: %v", err)
	}
}

func TestForkWorkerTimeoutIsClassified(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping SIGALRM timeout scenario in -short mode")
	}
	mgr := testManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := mgr.ForkWorker(ctx, ForkOptions{
		Index:          0,
		TimeoutSeconds: 1,
		Args:           []string{"hang"},
	})
	if err != nil {
		t.Fatalf("ForkWorker: %v", err)
	}

	result, err := mgr.WaitAny(ctx)
	if err != nil {
		t.Fatalf("WaitAny: %v", err)
	}
	if result.Class != ClassTimeout {
		t.Errorf("result.Class = %v, want ClassTimeout", result.Class)
	}
}
