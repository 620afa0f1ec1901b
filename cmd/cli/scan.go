package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anstrom/portsniffer/internal/config"
	"github.com/anstrom/portsniffer/internal/errors"
	"github.com/anstrom/portsniffer/internal/logging"
	"github.com/anstrom/portsniffer/internal/metrics"
	"github.com/anstrom/portsniffer/internal/ports"
	"github.com/anstrom/portsniffer/internal/probe"
	"github.com/anstrom/portsniffer/internal/report"
	"github.com/anstrom/portsniffer/internal/resolve"
	"github.com/anstrom/portsniffer/internal/scanning"
)

// runScan resolves the target, runs the scan and prints the report.
// An interrupted scan still prints its partial results and succeeds.
func runScan(cmd *cobra.Command, opts *options, target string) error {
	cfg, err := loadConfig(cmd.Flags(), opts)
	if err != nil {
		return err
	}

	logger := initLogging(cfg)
	pm := metrics.NewPrometheusMetrics()

	job, err := prepareJob(cmd.Context(), cfg, pm, logger, target)
	if err != nil {
		if errors.IsFatal(err) {
			pm.IncrementScanErrors(string(errors.GetCode(err)))
		}
		// execute prints the error itself.
		logger.WithError(err).Debug("Scan could not start", "target", target)
		return err
	}

	stopMetrics, err := startMetricsServer(cfg, pm, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinatorOpts := []scanning.Option{
		scanning.WithMetrics(pm),
		scanning.WithLogger(logger),
	}

	var bar *report.ProgressBar
	if report.ShowProgress(cfg.Output.Progress, logger.IsDebug(), os.Stderr) {
		bar = report.NewProgressBar(cmd.ErrOrStderr())
		coordinatorOpts = append(coordinatorOpts, scanning.WithProgress(bar))
	}

	coordinator := scanning.NewCoordinator(probe.NewTCPProber(job.Timeout), coordinatorOpts...)
	scan, err := coordinator.Start(job)
	if err != nil {
		return err
	}

	outcome := scan.Wait(ctx)
	if bar != nil {
		bar.Finish()
	}

	if outcome.Cancelled {
		interrupted := errors.NewScanErrorWithTarget(errors.CodeCanceled, "scan interrupted", target)
		logger.WithError(interrupted).Warn("Scan halted before completion",
			"scanned", outcome.Scanned,
			"total", outcome.Total)
	}

	useColor := cfg.Output.Color && isTerminalWriter(cmd.OutOrStdout())
	if err := report.NewReporter(cmd.OutOrStdout(), useColor).Render(outcome); err != nil {
		logger.ErrorScan("Failed to render report", target, err)
	}

	return nil
}

// prepareJob parses the port set, resolves the target and builds the scan job.
// The port set is parsed first so a bad specification never causes a lookup.
func prepareJob(ctx context.Context, cfg *config.Config, pm *metrics.PrometheusMetrics,
	logger *logging.Logger, target string) (*scanning.Job, error) {
	set, err := ports.Parse(cfg.Scan.Ports)
	if err != nil {
		return nil, err
	}

	resolver := resolve.New(cfg.Resolver.Nameserver, cfg.ResolveTimeout(),
		resolve.WithRecorder(pm),
		resolve.WithLogger(logger.WithTarget(target)))

	addr, err := resolver.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}

	logger.Debug("Scan prepared",
		"target", target,
		"address", addr.String(),
		"ports", set.Len(),
		"threads", cfg.Scan.Threads)

	return scanning.NewJob(addr, set, cfg.Scan.Threads, cfg.Timeout())
}

// startMetricsServer serves metrics while the scan runs when an address is configured.
// The returned function stops the server and waits for it.
func startMetricsServer(cfg *config.Config, pm *metrics.PrometheusMetrics,
	logger *logging.Logger) (func(), error) {
	if !cfg.IsMetricsEnabled() {
		return func() {}, nil
	}

	srv := metrics.NewServer(cfg.Metrics.Addr, pm, logger)
	if err := srv.Listen(); err != nil {
		return nil, errors.WrapConfigError(errors.CodeInvalidConfiguration, "metrics endpoint unavailable", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Start(ctx); err != nil {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func isTerminalWriter(w interface{}) bool {
	f, ok := w.(*os.File)
	return ok && report.IsTerminal(f)
}
