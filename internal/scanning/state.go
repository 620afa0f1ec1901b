package scanning

import (
	"sync"
	"sync/atomic"

	"github.com/anstrom/portsniffer/internal/probe"
)

// state is the data shared between the workers of one scan and its coordinator.
type state struct {
	total int

	scanned atomic.Int64
	open    atomic.Int64
	closed  atomic.Int64

	// results has room for every port, so a publish never blocks.
	results chan uint16

	cancelled atomic.Bool

	// gate is held shared by workers while publishing and exclusively by
	// cancel, so the counters are frozen once the flag is observed as set.
	gate sync.RWMutex
}

func newState(total int) *state {
	return &state{
		total:   total,
		results: make(chan uint16, total),
	}
}

func (s *state) isCancelled() bool {
	return s.cancelled.Load()
}

// cancel sets the cancellation flag. Only the first call returns true.
func (s *state) cancel() bool {
	s.gate.Lock()
	defer s.gate.Unlock()

	return s.cancelled.CompareAndSwap(false, true)
}

// record publishes the outcome of one probe. It returns false and discards
// the outcome if the scan was cancelled meanwhile.
func (s *state) record(port uint16, outcome probe.Outcome) bool {
	s.gate.RLock()
	defer s.gate.RUnlock()

	if s.cancelled.Load() {
		return false
	}

	if outcome == probe.Open {
		s.results <- port
		s.open.Add(1)
	} else {
		s.closed.Add(1)
	}
	s.scanned.Add(1)

	return true
}

// progress returns a snapshot of the counters. Counters read while workers
// are running may be momentarily apart by the probes being published.
func (s *state) progress() Progress {
	return Progress{
		Scanned: int(s.scanned.Load()),
		Open:    int(s.open.Load()),
		Closed:  int(s.closed.Load()),
		Total:   s.total,
	}
}

// drain collects every port published so far without blocking.
func (s *state) drain() []uint16 {
	var out []uint16
	for {
		select {
		case port, ok := <-s.results:
			if !ok {
				return out
			}
			out = append(out, port)
		default:
			return out
		}
	}
}
