package scanning

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/portsniffer/internal/logging"
	"github.com/anstrom/portsniffer/internal/probe"
)

// Coordinator starts scans and owns their shared state.
type Coordinator struct {
	prober   probe.Prober
	progress ProgressSink
	metrics  MetricsRecorder
	logger   *logging.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithProgress sets the sink that receives progress snapshots.
func WithProgress(sink ProgressSink) Option {
	return func(c *Coordinator) {
		c.progress = sink
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(c *Coordinator) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator creates a coordinator that probes through prober.
func NewCoordinator(prober probe.Prober, opts ...Option) *Coordinator {
	c := &Coordinator{
		prober:  prober,
		metrics: noopMetrics{},
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scan is a running scan.
type Scan struct {
	id        uuid.UUID
	job       *Job
	state     *state
	startedAt time.Time

	metrics MetricsRecorder
	logger  *logging.Logger

	wg           sync.WaitGroup
	done         chan struct{}
	workerStates []WorkerState

	mu      sync.Mutex
	outcome *Outcome
}

// Start validates job and spawns its workers. It does not block.
func (c *Coordinator) Start(job *Job) (*Scan, error) {
	if job == nil {
		job = &Job{}
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	s := &Scan{
		id:           id,
		job:          job,
		state:        newState(job.Ports.Len()),
		startedAt:    time.Now(),
		metrics:      c.metrics,
		logger:       c.logger.WithScanID(id.String()).WithComponent("scanning"),
		done:         make(chan struct{}),
		workerStates: make([]WorkerState, job.Workers),
	}

	s.logger.InfoScan("Starting scan", job.Target.String(),
		"ports", job.Ports.Len(),
		"workers", job.Workers,
		"timeout", job.Timeout)

	// Probe contexts never carry scan cancellation.
	ctx := context.Background()
	for i := 0; i < job.Workers; i++ {
		w := &worker{
			id:       i,
			stride:   job.Workers,
			target:   job.Target,
			ports:    job.Ports,
			timeout:  job.Timeout,
			prober:   c.prober,
			state:    s.state,
			progress: c.progress,
			metrics:  c.metrics,
			logger:   s.logger,
		}
		s.workerStates[i] = WorkerRunning

		s.wg.Add(1)
		go func(idx int) {
			defer s.wg.Done()
			s.workerStates[idx] = w.run(ctx)
		}(i)
	}

	go func() {
		s.wg.Wait()
		close(s.state.results)
		close(s.done)
	}()

	return s, nil
}

// Run starts job and waits for its outcome.
func (c *Coordinator) Run(ctx context.Context, job *Job) (*Outcome, error) {
	s, err := c.Start(job)
	if err != nil {
		return nil, err
	}
	return s.Wait(ctx), nil
}

// ID returns the scan identifier.
func (s *Scan) ID() uuid.UUID {
	return s.id
}

// Done is closed once every worker has stopped.
func (s *Scan) Done() <-chan struct{} {
	return s.done
}

// Progress returns the current counters.
func (s *Scan) Progress() Progress {
	return s.state.progress()
}

// WorkerStates returns the terminal state of each worker. It must only be
// called after Done is closed.
func (s *Scan) WorkerStates() []WorkerState {
	<-s.done
	return slices.Clone(s.workerStates)
}

// Cancel requests the scan to stop. Only the first call has an effect and
// returns true. Probes already in flight run to completion or timeout and
// their results are discarded.
func (s *Scan) Cancel() bool {
	if !s.state.cancel() {
		return false
	}
	s.logger.Info("Scan cancellation requested", "scanned", s.state.progress().Scanned)
	return true
}

// Wait blocks until every worker has stopped or ctx is done, whichever comes
// first. When ctx ends first the scan is cancelled and the partial outcome is
// returned immediately. Subsequent calls return the same outcome.
func (s *Scan) Wait(ctx context.Context) *Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome != nil {
		return s.outcome
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		select {
		case <-s.done:
		default:
			s.Cancel()
		}
	}

	s.outcome = s.collect()
	s.finish(s.outcome)

	return s.outcome
}

// collect builds the outcome from the frozen state. It relies on the scan
// being either complete or cancelled.
func (s *Scan) collect() *Outcome {
	open := s.state.drain()
	slices.Sort(open)

	counters := s.state.progress()
	finishedAt := time.Now()

	return &Outcome{
		ScanID:     s.id,
		Target:     s.job.Target,
		OpenPorts:  open,
		Scanned:    counters.Scanned,
		Open:       counters.Open,
		Closed:     counters.Closed,
		Total:      counters.Total,
		Cancelled:  s.state.isCancelled() && counters.Scanned < counters.Total,
		StartedAt:  s.startedAt,
		FinishedAt: finishedAt,
		Duration:   finishedAt.Sub(s.startedAt),
	}
}

func (s *Scan) finish(o *Outcome) {
	s.metrics.IncrementScansTotal(o.Status())
	s.metrics.RecordScanDuration(o.Duration)

	s.logger.InfoScan("Scan finished", o.Target.String(),
		"status", o.Status(),
		"scanned", o.Scanned,
		"open", o.Open,
		"closed", o.Closed,
		"total", o.Total,
		"duration", o.Duration)
}
