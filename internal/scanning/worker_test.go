package scanning

import (
	"context"
	"io"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsniffer/internal/logging"
	"github.com/anstrom/portsniffer/internal/ports"
	"github.com/anstrom/portsniffer/internal/probe"
)

// scriptedProber reports the ports in open as Open and records every call.
type scriptedProber struct {
	open map[uint16]bool

	mu    sync.Mutex
	calls map[uint16]int
}

func (p *scriptedProber) Probe(_ context.Context, _ netip.Addr, port uint16, _ time.Duration) probe.Outcome {
	p.mu.Lock()
	if p.calls == nil {
		p.calls = make(map[uint16]int)
	}
	p.calls[port]++
	p.mu.Unlock()

	if p.open[port] {
		return probe.Open
	}
	return probe.Closed
}

func (p *scriptedProber) callCounts() map[uint16]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[uint16]int, len(p.calls))
	for port, n := range p.calls {
		out[port] = n
	}
	return out
}

// cancellingProber cancels the scan while a probe is in flight.
type cancellingProber struct {
	state *state
}

func (p *cancellingProber) Probe(context.Context, netip.Addr, uint16, time.Duration) probe.Outcome {
	p.state.cancel()
	return probe.Open
}

type recordingMetrics struct {
	mu       sync.Mutex
	ports    map[string]int
	scans    map[string]int
	active   int
	peak     int
	duration time.Duration
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{ports: map[string]int{}, scans: map[string]int{}}
}

func (m *recordingMetrics) IncrementPortsScanned(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ports[status]++
}

func (m *recordingMetrics) AddActiveWorkers(delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active += delta
	if m.active > m.peak {
		m.peak = m.active
	}
}

func (m *recordingMetrics) IncrementScansTotal(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[status]++
}

func (m *recordingMetrics) RecordScanDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(logging.Config{Level: logging.LevelError}, io.Discard)
}

func newTestWorker(id, stride int, set *ports.Set, prober probe.Prober, st *state) *worker {
	return &worker{
		id:      id,
		stride:  stride,
		target:  netip.MustParseAddr("127.0.0.1"),
		ports:   set,
		timeout: time.Second,
		prober:  prober,
		state:   st,
		metrics: noopMetrics{},
		logger:  quietLogger(),
	}
}

func TestWorkerStripesCoverEveryIndexOnce(t *testing.T) {
	for _, total := range []int{1, 2, 7, 16, 100} {
		set := ports.New(ports.Range{Start: 1000, End: uint16(1000 + total - 1)})

		for workers := 1; workers <= total+2; workers++ {
			prober := &scriptedProber{}
			st := newState(set.Len())

			for i := 0; i < workers; i++ {
				final := newTestWorker(i, workers, set, prober, st).run(context.Background())
				require.Equal(t, WorkerExhausted, final)
			}

			calls := prober.callCounts()
			require.Len(t, calls, total, "total=%d workers=%d", total, workers)
			for _, port := range set.Ports() {
				require.Equal(t, 1, calls[port], "port %d total=%d workers=%d", port, total, workers)
			}
			assert.Equal(t, total, st.progress().Scanned)
		}
	}
}

func TestWorkerStripeVisitsOwnIndices(t *testing.T) {
	set := ports.New(ports.Range{Start: 0, End: 9})
	prober := &scriptedProber{}

	newTestWorker(1, 3, set, prober, newState(set.Len())).run(context.Background())

	assert.Equal(t, map[uint16]int{1: 1, 4: 1, 7: 1}, prober.callCounts())
}

func TestWorkerPublishesOpenPorts(t *testing.T) {
	set := ports.New(ports.Range{Start: 10, End: 14})
	prober := &scriptedProber{open: map[uint16]bool{11: true, 13: true}}
	st := newState(set.Len())

	newTestWorker(0, 1, set, prober, st).run(context.Background())

	assert.Equal(t, Progress{Scanned: 5, Open: 2, Closed: 3, Total: 5}, st.progress())
	assert.ElementsMatch(t, []uint16{11, 13}, st.drain())
}

func TestWorkerStopsWhenCancelled(t *testing.T) {
	set := ports.New(ports.Range{Start: 1, End: 50})
	prober := &scriptedProber{}
	st := newState(set.Len())
	st.cancel()

	final := newTestWorker(0, 1, set, prober, st).run(context.Background())

	assert.Equal(t, WorkerCancelled, final)
	assert.Empty(t, prober.callCounts())
	assert.Zero(t, st.progress().Scanned)
}

func TestWorkerDropsResultAfterCancellation(t *testing.T) {
	set := ports.New(ports.Range{Start: 1, End: 50})
	st := newState(set.Len())

	final := newTestWorker(0, 1, set, &cancellingProber{state: st}, st).run(context.Background())

	assert.Equal(t, WorkerCancelled, final)
	assert.Equal(t, Progress{Total: 50}, st.progress())
	assert.Empty(t, st.drain())
}

func TestWorkerReportsProgressAndMetrics(t *testing.T) {
	set := ports.New(ports.Range{Start: 1, End: 4})
	prober := &scriptedProber{open: map[uint16]bool{2: true}}
	sink := &recordingSink{}
	recorder := newRecordingMetrics()

	w := newTestWorker(0, 1, set, prober, newState(set.Len()))
	w.progress = sink
	w.metrics = recorder
	w.run(context.Background())

	assert.Len(t, sink.snapshots(), 4)
	assert.Equal(t, Progress{Scanned: 4, Open: 1, Closed: 3, Total: 4}, sink.last())
	assert.Equal(t, map[string]int{"open": 1, "closed": 3}, recorder.ports)
	assert.Equal(t, 0, recorder.active)
	assert.Equal(t, 1, recorder.peak)
}

func TestWorkerStateString(t *testing.T) {
	assert.Equal(t, "running", WorkerRunning.String())
	assert.Equal(t, "cancelled", WorkerCancelled.String())
	assert.Equal(t, "exhausted", WorkerExhausted.String())
	assert.Equal(t, "unknown", WorkerState(42).String())
}

type recordingSink struct {
	mu      sync.Mutex
	updates []Progress
}

func (s *recordingSink) Update(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, p)
}

func (s *recordingSink) snapshots() []Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Progress(nil), s.updates...)
}

func (s *recordingSink) last() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return Progress{}
	}
	return s.updates[len(s.updates)-1]
}
