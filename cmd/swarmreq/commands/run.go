package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/swarmreq/swarmreq/pkg/engine"
	"github.com/swarmreq/swarmreq/pkg/instruction"
	"github.com/swarmreq/swarmreq/pkg/ipc"
	"github.com/swarmreq/swarmreq/pkg/swarmlog"
	"github.com/swarmreq/swarmreq/pkg/swarmmetrics"
)

type runFlags struct {
	file         string
	host         string
	port         int
	ssl          bool
	poolSize     int
	timeout      int
	forkSafe     bool
	useSHM       bool
	shmSize      int
	pinCPU       bool
	slowParallel bool
}

func newRunCmd(log swarmlog.Logger) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch every path in a wordlist against one host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), log, flags)
		},
	}
	// A re-exec'd worker is started with this command's own argv plus a
	// -swarmreq-slice=<start>:<end> flag the worker's own engine.RunIfWorker
	// parses directly from os.Args; cobra never needs to recognize it.
	cmd.FParseErrWhitelist.UnknownFlags = true

	cmd.Flags().StringVar(&flags.file, "file", "", "newline-delimited path list (required)")
	cmd.Flags().StringVar(&flags.host, "host", "", "target host (required)")
	cmd.Flags().IntVar(&flags.port, "port", 80, "target port")
	cmd.Flags().BoolVar(&flags.ssl, "ssl", false, "use https")
	cmd.Flags().IntVar(&flags.poolSize, "pool-size", 64, "concurrent requests per worker")
	cmd.Flags().IntVar(&flags.timeout, "timeout", engine.DefaultTimeoutSeconds, "per-worker timeout in seconds, 0 disables")
	cmd.Flags().BoolVar(&flags.forkSafe, "fork-safe", false, "fan out across worker processes instead of running in-process")
	cmd.Flags().BoolVar(&flags.useSHM, "use-shm", false, "attach a shared-memory segment to each worker")
	cmd.Flags().IntVar(&flags.shmSize, "shm-size", 0, "shared segment size in bytes (0 uses the package default)")
	cmd.Flags().BoolVar(&flags.pinCPU, "pin-cpu", false, "pin each worker to a round-robin CPU")
	cmd.Flags().BoolVar(&flags.slowParallel, "slow-parallel", false, "one descriptor per worker, bounding timeout loss")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("host")

	return cmd
}

func loaderFor(flags *runFlags) engine.Loader {
	return func(ctx context.Context) ([]*instruction.Instruction, error) {
		f, err := os.Open(flags.file)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", flags.file, err)
		}
		defer f.Close()
		return instruction.LoadPathList(f, flags.host, func(i *instruction.Instruction) {
			i.Port = flags.port
			i.SSL = flags.ssl
			i.After = func(ins *instruction.Instruction, h instruction.ClientHandle, resp *instruction.Response) {
				_ = engine.AppendRecord(fmt.Sprintf("%s %d", ins.Path(), resp.StatusCode()))
			}
		})
	}
}

func engineOptions(flags *runFlags, log swarmlog.Logger, metrics *swarmmetrics.Registry) []engine.Option {
	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithPoolSize(flags.poolSize),
		engine.WithTimeout(flags.timeout),
		engine.WithForkSafe(flags.forkSafe),
		engine.WithPinCPU(flags.pinCPU),
		engine.WithSlowParallel(flags.slowParallel),
		engine.WithLoader(loaderFor(flags)),
		engine.WithMetrics(metrics),
	}
	if flags.useSHM {
		size := flags.shmSize
		if size <= 0 {
			size = ipc.DefaultSegmentSize
		}
		opts = append(opts, engine.WithSHM(size))
	}
	return opts
}

func runRun(ctx context.Context, log swarmlog.Logger, flags *runFlags) error {
	metrics := swarmmetrics.NewRegistry(prometheus.NewRegistry())
	opts := engineOptions(flags, log, metrics)

	cfg := engine.DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if engine.RunIfWorker(ctx, cfg) {
		return nil // unreachable: RunIfWorker exits the worker process
	}

	instrs, err := loaderFor(flags)(ctx)
	if err != nil {
		return err
	}

	eng := engine.New(opts...)
	eng.OnFinish(func(res engine.FinishResult) {
		for _, rec := range res.Records {
			fmt.Println(rec)
		}
		if res.Worker != nil {
			log.WithField("pid", res.Worker.PID).
				WithField("class", res.Class.String()).
				Debug("swarmreq: worker reaped")
		}
	})

	return eng.Execute(ctx, instrs)
}
