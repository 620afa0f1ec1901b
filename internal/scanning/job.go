package scanning

import (
	"net/netip"
	"time"

	"github.com/anstrom/portsniffer/internal/errors"
	"github.com/anstrom/portsniffer/internal/ports"
)

const (
	// DefaultWorkers is the worker count used when none is configured.
	DefaultWorkers = 10
	// DefaultTimeout is the per-probe bound used when none is configured.
	DefaultTimeout = 3 * time.Second
)

// Job describes a single scan. It is never modified after NewJob returns.
type Job struct {
	Target  netip.Addr
	Ports   *ports.Set
	Workers int
	Timeout time.Duration
}

// NewJob builds and validates a scan job.
func NewJob(target netip.Addr, set *ports.Set, workers int, timeout time.Duration) (*Job, error) {
	job := &Job{
		Target:  target,
		Ports:   set,
		Workers: workers,
		Timeout: timeout,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Validate checks that the job can be executed.
func (j *Job) Validate() error {
	if !j.Target.IsValid() {
		return errors.NewConfigFieldError(errors.CodeInvalidConfiguration,
			"target address is not valid", "target", j.Target)
	}
	if j.Ports == nil || j.Ports.Len() == 0 {
		return errors.NewConfigFieldError(errors.CodeInvalidConfiguration,
			"port set is empty", "ports", nil)
	}
	if j.Workers < 1 {
		return errors.NewConfigFieldError(errors.CodeInvalidConfiguration,
			"at least one worker is required", "threads", j.Workers)
	}
	if j.Timeout <= 0 {
		return errors.NewConfigFieldError(errors.CodeInvalidConfiguration,
			"probe timeout must be positive", "timeout", j.Timeout)
	}
	return nil
}
