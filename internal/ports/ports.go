// Package ports builds the immutable set of TCP ports a scan visits.
//
// A Set is constructed once from literal ports and ranges, deduplicated,
// and then shared read-only by every worker of a scan.
package ports

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/anstrom/portsniffer/internal/errors"
)

const (
	// MinPort and MaxPort bound every port number.
	MinPort = 0
	MaxPort = 65535

	rangeSeparator = "-"
	listSeparator  = ","

	// Port validation constants.
	expectedRangeParts = 2
)

// Range is an inclusive span of ports. A single port is a range with Start == End.
type Range struct {
	Start uint16
	End   uint16
}

// String renders the range the way it is parsed.
func (r Range) String() string {
	if r.Start == r.End {
		return strconv.Itoa(int(r.Start))
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Len returns the number of ports in the range.
func (r Range) Len() int {
	return int(r.End) - int(r.Start) + 1
}

// ParseRange parses "a" or "a-b" into a Range.
func ParseRange(text string) (Range, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Range{}, errors.ErrInvalidPortSpec(text, "empty port")
	}

	parts := strings.Split(text, rangeSeparator)
	switch len(parts) {
	case 1:
		port, err := parsePort(text, parts[0])
		if err != nil {
			return Range{}, err
		}
		return Range{Start: port, End: port}, nil
	case expectedRangeParts:
		start, err := parsePort(text, parts[0])
		if err != nil {
			return Range{}, err
		}
		end, err := parsePort(text, parts[1])
		if err != nil {
			return Range{}, err
		}
		if start > end {
			return Range{}, errors.ErrInvalidPortSpec(text, "start port is greater than end port")
		}
		return Range{Start: start, End: end}, nil
	default:
		return Range{}, errors.ErrInvalidPortSpec(text, "too many range separators")
	}
}

func parsePort(spec, field string) (uint16, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0, errors.ErrInvalidPortSpec(spec, "missing port number")
	}
	// Atoi alone would accept a leading sign.
	if strings.TrimLeft(field, "0123456789") != "" {
		return 0, errors.ErrInvalidPortSpec(spec, fmt.Sprintf("%q is not a number", field))
	}
	value, err := strconv.Atoi(field)
	if err != nil {
		return 0, errors.ErrInvalidPortSpec(spec, fmt.Sprintf("%q is not a number", field))
	}
	if value < MinPort || value > MaxPort {
		return 0, errors.ErrInvalidPortSpec(spec, fmt.Sprintf("%d is outside %d-%d", value, MinPort, MaxPort))
	}
	return uint16(value), nil
}

// ParseRanges parses every element of specs. An element may hold a comma-separated list.
func ParseRanges(specs []string) ([]Range, error) {
	var ranges []Range
	for _, spec := range specs {
		for _, part := range strings.Split(spec, listSeparator) {
			r, err := ParseRange(part)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, r)
		}
	}
	return ranges, nil
}

// Parse builds a Set from textual specifications. No specifications means every port.
func Parse(specs []string) (*Set, error) {
	ranges, err := ParseRanges(specs)
	if err != nil {
		return nil, err
	}
	return New(ranges...), nil
}

// Set is an immutable, deduplicated collection of ports in ascending order.
type Set struct {
	ports []uint16
}

// New returns the union of ranges. With no ranges it returns the full port range.
func New(ranges ...Range) *Set {
	if len(ranges) == 0 {
		return Full()
	}

	var seen [MaxPort + 1]bool
	count := 0
	for _, r := range ranges {
		for p := int(r.Start); p <= int(r.End); p++ {
			if !seen[p] {
				seen[p] = true
				count++
			}
		}
	}

	ports := make([]uint16, 0, count)
	for p := range seen {
		if seen[p] {
			ports = append(ports, uint16(p))
		}
	}
	return &Set{ports: ports}
}

// Full returns the set of all ports 0-65535.
func Full() *Set {
	ports := make([]uint16, 0, MaxPort+1)
	for p := MinPort; p <= MaxPort; p++ {
		ports = append(ports, uint16(p))
	}
	return &Set{ports: ports}
}

// Len returns the number of ports in the set.
func (s *Set) Len() int {
	return len(s.ports)
}

// At returns the port at index i. It panics if i is out of range.
func (s *Set) At(i int) uint16 {
	return s.ports[i]
}

// Contains reports whether port is a member of the set.
func (s *Set) Contains(port uint16) bool {
	_, found := slices.BinarySearch(s.ports, port)
	return found
}

// Ports returns a copy of the members in ascending order.
func (s *Set) Ports() []uint16 {
	out := make([]uint16, len(s.ports))
	copy(out, s.ports)
	return out
}
