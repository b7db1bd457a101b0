package engine

import (
	"context"
	"time"

	"github.com/swarmreq/swarmreq/pkg/instruction"
	"github.com/swarmreq/swarmreq/pkg/swarmlog"
	"github.com/swarmreq/swarmreq/pkg/swarmmetrics"
)

// DefaultTimeoutSeconds is applied to a worker's self-armed alarm unless
// overridden with WithTimeout.
const DefaultTimeoutSeconds = 30

// Loader reconstructs the full submitted instruction list. A re-exec'd
// worker has none of the parent's in-memory state, so it calls Loader
// itself to rebuild the same list before slicing out the range its parent
// assigned it — the re-exec analog of a forked child inheriting its
// parent's address space for free.
type Loader func(ctx context.Context) ([]*instruction.Instruction, error)

// FinishFunc is the user hook invoked once per reaped worker (normal exit
// or timeout), with access to the worker's still-attached segment. It runs
// in the parent; the in-process (non-fork-safe) path invokes it exactly
// once with a nil WorkerHandle.
type FinishFunc func(result FinishResult)

// Config tunes one Engine. The zero value is not ready to use; construct
// with New, which applies defaults via the functional-options pattern.
type Config struct {
	// PoolSize bounds concurrent in-flight requests per worker.
	PoolSize int
	// MaxResponseBytes caps per-request response body accumulation.
	MaxResponseBytes int64
	// DNSCacheTimeout bounds how long a resolved address is reused.
	DNSCacheTimeout time.Duration
	// InsecureSkipVerify controls TLS peer verification for the reactor's
	// shared transport.
	InsecureSkipVerify bool

	// ForkSafe enables multi-process fan-out. When false, Execute runs the
	// reactor in-process over the full list on the calling goroutine.
	ForkSafe bool
	// UseSHM allocates a shared segment per worker for IPC back to the
	// parent. Only meaningful when ForkSafe is set.
	UseSHM bool
	// SHMSize is the requested size, in bytes, of each worker's segment.
	SHMSize int
	// PinCPU requests round-robin CPU affinity per worker, where supported.
	PinCPU bool
	// SlowParallel runs one descriptor per worker instead of partitioning
	// by core count, bounding a timeout's loss to a single descriptor.
	SlowParallel bool
	// TimeoutSeconds bounds each worker's wall-clock runtime via a
	// self-armed alarm. Zero disables it.
	TimeoutSeconds int

	// WorkerArgs are the CLI arguments (excluding argv[0]) a re-exec'd
	// worker is started with, before the slice-bounds flag Execute appends.
	// Defaults to os.Args[1:].
	WorkerArgs []string

	// Loader lets a re-exec'd worker rebuild the submitted list. Required
	// when ForkSafe is set; ignored otherwise.
	Loader Loader

	Metrics *swarmmetrics.Registry
	Log     swarmlog.Logger

	finish FinishFunc
}

// Option configures a Config constructed by New.
type Option func(*Config)

// WithPoolSize sets the per-worker concurrent-dispatch bound.
func WithPoolSize(n int) Option { return func(c *Config) { c.PoolSize = n } }

// WithMaxResponseBytes caps per-request response body accumulation.
func WithMaxResponseBytes(n int64) Option { return func(c *Config) { c.MaxResponseBytes = n } }

// WithDNSCacheTimeout bounds DNS resolution reuse.
func WithDNSCacheTimeout(d time.Duration) Option { return func(c *Config) { c.DNSCacheTimeout = d } }

// WithForkSafe enables multi-process fan-out.
func WithForkSafe(v bool) Option { return func(c *Config) { c.ForkSafe = v } }

// WithSHM enables per-worker shared-memory segments of the given size.
func WithSHM(size int) Option {
	return func(c *Config) {
		c.UseSHM = true
		c.SHMSize = size
	}
}

// WithPinCPU enables round-robin CPU affinity per worker.
func WithPinCPU(v bool) Option { return func(c *Config) { c.PinCPU = v } }

// WithSlowParallel selects one-descriptor-per-worker mode.
func WithSlowParallel(v bool) Option { return func(c *Config) { c.SlowParallel = v } }

// WithTimeout sets each worker's self-armed wall-clock timeout.
func WithTimeout(seconds int) Option { return func(c *Config) { c.TimeoutSeconds = seconds } }

// WithWorkerArgs overrides the base argv a re-exec'd worker is started
// with. Defaults to os.Args[1:].
func WithWorkerArgs(args []string) Option { return func(c *Config) { c.WorkerArgs = args } }

// WithLoader sets the function a re-exec'd worker uses to rebuild the
// submitted list. Required when fork-safe mode is enabled.
func WithLoader(l Loader) Option { return func(c *Config) { c.Loader = l } }

// WithMetrics wires a swarmmetrics.Registry. A nil Registry (the default)
// makes every observation a no-op.
func WithMetrics(reg *swarmmetrics.Registry) Option { return func(c *Config) { c.Metrics = reg } }

// WithLogger overrides the engine's logger. Defaults to swarmlog.Discard().
func WithLogger(log swarmlog.Logger) Option { return func(c *Config) { c.Log = log } }

// DefaultConfig returns the Config used when no options override it:
// in-process, no SHM, default pool size and timeout.
func DefaultConfig() Config {
	return Config{
		PoolSize:           64,
		MaxResponseBytes:   16 << 20,
		DNSCacheTimeout:    60 * time.Second,
		InsecureSkipVerify: true,
		TimeoutSeconds:     DefaultTimeoutSeconds,
		Log:                swarmlog.Discard(),
	}
}
