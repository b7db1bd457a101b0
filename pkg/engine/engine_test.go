package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/swarmreq/swarmreq/pkg/instruction"
	"github.com/swarmreq/swarmreq/pkg/swarmlog"
)

// TestMain lets this test binary also play a re-exec'd fan-out worker: when
// Execute's fork-safe path starts it with the worker marker set, it rebuilds
// its slice of instructions from the host/port/count baked into environment
// variables by the parent test, instead of running the test suite.
func TestMain(m *testing.M) {
	ran := RunIfWorker(context.Background(), Config{
		PoolSize:           16,
		MaxResponseBytes:   1 << 20,
		InsecureSkipVerify: true,
		Log:                swarmlog.Discard(),
		Loader:             fanoutTestLoader,
	})
	if ran {
		return
	}
	os.Exit(m.Run())
}

// fanoutTestLoader rebuilds the fixed-size instruction list the fork-safe
// fan-out test submits, reading the target server's host/port and the
// descriptor count from environment variables the parent test process set
// before forking.
func fanoutTestLoader(ctx context.Context) ([]*instruction.Instruction, error) {
	host := os.Getenv("SWARMREQ_TEST_HOST")
	port, _ := strconv.Atoi(os.Getenv("SWARMREQ_TEST_PORT"))
	n, _ := strconv.Atoi(os.Getenv("SWARMREQ_TEST_N"))

	instrs := make([]*instruction.Instruction, n)
	for i := 0; i < n; i++ {
		instr, err := instruction.New(host, "/page"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		instr.Port = port
		instr.After = func(ins *instruction.Instruction, h instruction.ClientHandle, resp *instruction.Response) {
			_ = AppendRecord(ins.Path())
		}
		instrs[i] = instr
	}
	return instrs, nil
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", rawURL, err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("invalid port in %q: %v", rawURL, err)
	}
	return u.Hostname(), port
}

func TestExecuteRejectsEmptyList(t *testing.T) {
	eng := New(WithLogger(swarmlog.Discard()))
	err := eng.Execute(context.Background(), nil)
	if err == nil {
		t.Fatal("Execute(nil) = nil, want *SubmissionError")
	}
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("Execute(nil) error = %v, want *SubmissionError", err)
	}
}

func TestExecuteRejectsNilInstruction(t *testing.T) {
	eng := New(WithLogger(swarmlog.Discard()))
	err := eng.Execute(context.Background(), []*instruction.Instruction{nil})
	if err == nil {
		t.Fatal("Execute([nil]) = nil, want *SubmissionError")
	}
}

func TestExecuteInProcessRunsReactorAndInvokesFinishOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	instr, err := instruction.New(host, "/index")
	if err != nil {
		t.Fatal(err)
	}
	instr.Port = port

	var afterCalled bool
	instr.After = func(*instruction.Instruction, instruction.ClientHandle, *instruction.Response) {
		afterCalled = true
	}

	eng := New(WithLogger(swarmlog.Discard()), WithForkSafe(false))

	var finishCount int
	var finishWorkerWasNil bool
	eng.OnFinish(func(res FinishResult) {
		finishCount++
		finishWorkerWasNil = res.Worker == nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.Execute(ctx, []*instruction.Instruction{instr}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !afterCalled {
		t.Error("after hook did not fire")
	}
	if finishCount != 1 {
		t.Errorf("finish invoked %d times, want 1", finishCount)
	}
	if !finishWorkerWasNil {
		t.Error("finish result carried a non-nil worker in the in-process path")
	}
}

func TestExecuteForkSafeFanoutDrainsAllRecords(t *testing.T) {
	if testing.Short() {
		t.Skip("forks real processes")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	const n = 12
	os.Setenv("SWARMREQ_TEST_HOST", host)
	os.Setenv("SWARMREQ_TEST_PORT", strconv.Itoa(port))
	os.Setenv("SWARMREQ_TEST_N", strconv.Itoa(n))
	defer func() {
		os.Unsetenv("SWARMREQ_TEST_HOST")
		os.Unsetenv("SWARMREQ_TEST_PORT")
		os.Unsetenv("SWARMREQ_TEST_N")
	}()

	instrs, err := fanoutTestLoader(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	eng := New(
		WithLogger(swarmlog.Discard()),
		WithForkSafe(true),
		WithSHM(1<<20),
		WithLoader(fanoutTestLoader),
	)

	var mu sync.Mutex
	seen := make(map[string]bool)
	eng.OnFinish(func(res FinishResult) {
		mu.Lock()
		defer mu.Unlock()
		for _, rec := range res.Records {
			seen[rec] = true
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := eng.Execute(ctx, instrs); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != n {
		t.Fatalf("drained %d unique records, want %d: %v", len(seen), n, seen)
	}
}
