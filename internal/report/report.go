// Package report renders scan outcomes and live progress for the terminal.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/portsniffer/internal/scanning"
)

const (
	headerComplete    = " Scanning Complete - Results "
	headerInterrupted = "Received interrupt, scan halted"
	noOpenPorts       = "None of the analysed ports were open"
)

// Reporter writes the final report of a scan.
type Reporter struct {
	out io.Writer

	header      *color.Color
	interrupted *color.Color
	open        *color.Color
	none        *color.Color
}

// NewReporter creates a reporter writing to out. Colors are forced on or off
// by useColor regardless of whether out is a terminal.
func NewReporter(out io.Writer, useColor bool) *Reporter {
	r := &Reporter{
		out:         out,
		header:      color.New(color.Bold, color.Underline),
		interrupted: color.New(color.FgRed, color.Bold, color.Underline),
		open:        color.New(color.FgBlue, color.Bold),
		none:        color.New(color.Bold, color.Faint),
	}

	for _, c := range []*color.Color{r.header, r.interrupted, r.open, r.none} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return r
}

// Render prints the header, the sorted open ports and a summary table.
func (r *Reporter) Render(o *scanning.Outcome) error {
	if o == nil {
		return fmt.Errorf("no scan outcome to report")
	}

	var err error
	if o.Cancelled {
		_, err = r.interrupted.Fprintln(r.out, headerInterrupted)
	} else {
		_, err = r.header.Fprintln(r.out, headerComplete)
	}
	if err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}

	if err := r.renderPorts(o.OpenPorts); err != nil {
		return err
	}

	return r.renderSummary(o)
}

func (r *Reporter) renderPorts(open []uint16) error {
	if len(open) == 0 {
		if _, err := r.none.Fprintln(r.out, noOpenPorts); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	}

	for _, port := range open {
		if _, err := r.open.Fprintf(r.out, "  + Port %d is open\n", port); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}

func (r *Reporter) renderSummary(o *scanning.Outcome) error {
	if _, err := fmt.Fprintln(r.out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	table := tablewriter.NewWriter(r.out)
	table.Header("Target", "Status", "Scanned", "Open", "Closed", "Total", "Duration")

	if err := table.Append([]string{
		o.Target.String(),
		o.Status(),
		strconv.Itoa(o.Scanned),
		strconv.Itoa(o.Open),
		strconv.Itoa(o.Closed),
		strconv.Itoa(o.Total),
		o.Duration.Round(time.Millisecond).String(),
	}); err != nil {
		return fmt.Errorf("failed to build summary table: %w", err)
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render summary table: %w", err)
	}
	return nil
}
