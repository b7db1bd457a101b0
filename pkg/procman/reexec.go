package procman

import (
	"fmt"
	"os"

	"github.com/swarmreq/swarmreq/pkg/ipc"
)

// IsWorker reports whether the current process is a re-exec'd worker
// rather than the original parent invocation.
func IsWorker() bool {
	return os.Getenv(envWorkerMarker) == "1"
}

// WorkerConfig is a re-exec'd worker's view of the configuration its
// parent passed down via environment variables.
type WorkerConfig struct {
	Index          int
	TimeoutSeconds int
	Segment        *ipc.Segment // nil if the worker was started without UseSHM
}

// LoadWorkerConfig reads the environment a parent ForkWorker call set and,
// if a shared segment was attached, opens the worker's side of it.
func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{
		Index:          parseEnvInt(os.Getenv(envWorkerIndex)),
		TimeoutSeconds: parseEnvInt(os.Getenv(envTimeoutSecs)),
	}
	if sizeStr := os.Getenv(envSHMSize); sizeStr != "" {
		size := parseEnvInt(sizeStr)
		seg, err := openWorkerSegment(size)
		if err != nil {
			return nil, fmt.Errorf("procman: worker failed to attach shared segment: %w", err)
		}
		cfg.Segment = seg
	}
	return cfg, nil
}

// RunWorker arms this worker's self-timeout (if TimeoutSeconds > 0), runs
// work, and exits the process: 0 on success, the timeout sentinel if the
// alarm fires first, 1 if work returns an error. It never returns.
//
// The timeout callback writes nothing to cfg.Segment: whatever the worker
// had appended before the alarm fired is left exactly as it is. A fresh
// Writer at offset 0 would stamp a zero-length terminator over the first
// record instead of the true end of the written data, and Drain needs no
// terminator — it already stops at the first unwritten (zero) length word.
func RunWorker(cfg *WorkerConfig, work func(cfg *WorkerConfig) error) {
	disarm := armTimeout(cfg.TimeoutSeconds, func() {
		os.Exit(timeoutExitCode)
	})

	err := work(cfg)
	disarm()
	if err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}
