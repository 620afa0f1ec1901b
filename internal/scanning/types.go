package scanning

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// Scan status values used for metrics and logs.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Outcome is the result of a finished or interrupted scan.
type Outcome struct {
	ScanID uuid.UUID
	Target netip.Addr

	// OpenPorts is sorted ascending.
	OpenPorts []uint16

	Scanned int
	Open    int
	Closed  int
	Total   int

	// Cancelled is true when the scan was interrupted before every port was probed.
	Cancelled bool

	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// Status returns StatusCompleted or StatusCancelled.
func (o *Outcome) Status() string {
	if o.Cancelled {
		return StatusCancelled
	}
	return StatusCompleted
}

// Progress is a point-in-time view of the scan counters.
type Progress struct {
	Scanned int
	Open    int
	Closed  int
	Total   int
}

// Percent returns the scanned share of the total in [0, 1].
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Scanned) / float64(p.Total)
}

// ProgressSink receives progress snapshots from running workers.
// Update is called concurrently and must be safe for that.
type ProgressSink interface {
	Update(Progress)
}

// MetricsRecorder receives engine metrics.
type MetricsRecorder interface {
	// IncrementPortsScanned counts one probed port by its outcome.
	IncrementPortsScanned(status string)
	// AddActiveWorkers adjusts the number of running workers.
	AddActiveWorkers(delta int)
	// IncrementScansTotal counts one finished scan by its status.
	IncrementScansTotal(status string)
	// RecordScanDuration observes the wall time of one scan.
	RecordScanDuration(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) IncrementPortsScanned(string) {}
func (noopMetrics) AddActiveWorkers(int) {}
func (noopMetrics) IncrementScansTotal(string) {}
func (noopMetrics) RecordScanDuration(time.Duration) {}
