package scanning

import (
	"context"
	"net/netip"
	"time"

	"github.com/anstrom/portsniffer/internal/logging"
	"github.com/anstrom/portsniffer/internal/ports"
	"github.com/anstrom/portsniffer/internal/probe"
)

// WorkerState is the lifecycle state of a worker.
type WorkerState int

const (
	WorkerRunning WorkerState = iota
	WorkerCancelled
	WorkerExhausted
)

// String implements fmt.Stringer.
func (s WorkerState) String() string {
	switch s {
	case WorkerRunning:
		return "running"
	case WorkerCancelled:
		return "cancelled"
	case WorkerExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// worker probes the stripe of the port set starting at id with step stride.
type worker struct {
	id     int
	stride int

	target  netip.Addr
	ports   *ports.Set
	timeout time.Duration
	prober  probe.Prober
	state   *state

	progress ProgressSink
	metrics  MetricsRecorder
	logger   *logging.Logger
}

// run executes the worker loop and returns the terminal state.
func (w *worker) run(ctx context.Context) WorkerState {
	w.metrics.AddActiveWorkers(1)
	defer w.metrics.AddActiveWorkers(-1)

	w.logger.Debug("Worker started", "worker_id", w.id, "stride", w.stride)

	final := w.loop(ctx)

	w.logger.Debug("Worker stopped", "worker_id", w.id, "state", final.String())

	return final
}

func (w *worker) loop(ctx context.Context) WorkerState {
	for index := w.id; ; index += w.stride {
		if w.state.isCancelled() {
			return WorkerCancelled
		}
		if index >= w.ports.Len() {
			return WorkerExhausted
		}

		port := w.ports.At(index)
		outcome := w.prober.Probe(ctx, w.target, port, w.timeout)

		if !w.state.record(port, outcome) {
			return WorkerCancelled
		}

		w.metrics.IncrementPortsScanned(outcome.String())
		if outcome == probe.Open {
			w.logger.DebugProbe("Port is open", port, "worker_id", w.id)
		}
		if w.progress != nil {
			w.progress.Update(w.state.progress())
		}
	}
}
