// Command swarmreqd is a long-running daemon example: it loads a path list
// once at startup, serves engine metrics over HTTP, and drives the fan-out
// engine to completion before shutting down on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/swarmreq/swarmreq/pkg/engine"
	"github.com/swarmreq/swarmreq/pkg/instruction"
	"github.com/swarmreq/swarmreq/pkg/swarmlog"
	"github.com/swarmreq/swarmreq/pkg/swarmmetrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := swarmlog.New(os.Stderr, logrus.InfoLevel)

	pathList := os.Getenv("SWARMREQ_PATH_LIST")
	host := os.Getenv("SWARMREQ_HOST")

	registry := prometheus.NewRegistry()
	metrics := swarmmetrics.NewRegistry(registry)

	loader := func(context.Context) ([]*instruction.Instruction, error) {
		f, err := os.Open(pathList)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", pathList, err)
		}
		defer f.Close()
		return instruction.LoadPathList(f, host, nil)
	}

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithLoader(loader),
		engine.WithMetrics(metrics),
		engine.WithForkSafe(os.Getenv("SWARMREQ_FORK_SAFE") != ""),
		engine.WithPinCPU(os.Getenv("SWARMREQ_PIN_CPU") != ""),
	}

	cfg := engine.DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if engine.RunIfWorker(ctx, cfg) {
		return
	}

	if pathList == "" || host == "" {
		log.Fatal("swarmreqd: SWARMREQ_PATH_LIST and SWARMREQ_HOST must both be set")
	}

	metricsAddr := os.Getenv("SWARMREQ_METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("swarmreqd: metrics server stopped")
		}
	}()
	defer server.Shutdown(context.Background())

	instrs, err := loader(ctx)
	if err != nil {
		log.WithError(err).Fatal("swarmreqd: failed to load path list")
	}

	eng := engine.New(opts...)
	eng.OnFinish(func(res engine.FinishResult) {
		for _, rec := range res.Records {
			log.WithField("record", rec).Info("swarmreqd: drained record")
		}
	})

	if err := eng.Execute(ctx, instrs); err != nil {
		log.WithError(err).Fatal("swarmreqd: execute failed")
	}
}
