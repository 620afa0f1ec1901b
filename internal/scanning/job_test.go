package scanning

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsniffer/internal/errors"
	"github.com/anstrom/portsniffer/internal/ports"
)

func TestNewJob(t *testing.T) {
	target := netip.MustParseAddr("127.0.0.1")
	set := ports.New(ports.Range{Start: 1, End: 10})

	tests := []struct {
		name    string
		target  netip.Addr
		set     *ports.Set
		workers int
		timeout time.Duration
		field   string
	}{
		{name: "valid", target: target, set: set, workers: 4, timeout: time.Second},
		{name: "invalid target", target: netip.Addr{}, set: set, workers: 4, timeout: time.Second, field: "target"},
		{name: "nil port set", target: target, set: nil, workers: 4, timeout: time.Second, field: "ports"},
		{name: "zero workers", target: target, set: set, workers: 0, timeout: time.Second, field: "threads"},
		{name: "negative workers", target: target, set: set, workers: -3, timeout: time.Second, field: "threads"},
		{name: "zero timeout", target: target, set: set, workers: 1, timeout: 0, field: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := NewJob(tt.target, tt.set, tt.workers, tt.timeout)
			if tt.field == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.workers, job.Workers)
				assert.Equal(t, tt.timeout, job.Timeout)
				return
			}

			require.Error(t, err)
			assert.Nil(t, job)
			assert.True(t, errors.IsCode(err, errors.CodeInvalidConfiguration))

			var cfgErr *errors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestStartRejectsInvalidJob(t *testing.T) {
	c := NewCoordinator(&scriptedProber{})

	_, err := c.Start(&Job{Target: netip.MustParseAddr("127.0.0.1")})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidConfiguration))

	_, err = c.Start(nil)
	require.Error(t, err)
}
