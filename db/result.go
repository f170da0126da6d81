package db

import (
	"fmt"
	"io"
	"time"

	"github.com/nickyhof/TenantDB/core"
)

// Result is the printable outcome of a command-line operation.
type Result interface {
	Display(w io.Writer) error
}

// QueryResult holds nodes read by a lookup or listing.
type QueryResult struct {
	Nodes   core.ManyNodes
	Elapsed time.Duration
}

// CountResult holds a count.
type CountResult struct {
	Count   int64
	Elapsed time.Duration
}

// WriteResult holds the outcome of a mutation.
type WriteResult struct {
	Action   string
	ID       string
	Affected int64
	Elapsed  time.Duration
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	switch {
	case secs < 0.001:
		return "<1ms"
	case secs < 0.01:
		return fmt.Sprintf("%.1fms", secs*1000)
	case secs < 1:
		return fmt.Sprintf("%dms", int(secs*1000))
	case secs < 10:
		return fmt.Sprintf("%.1fs", secs)
	case secs < 60:
		return fmt.Sprintf("%ds", int(secs))
	}
	mins := int(secs / 60)
	rem := int(secs) % 60
	if rem == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, rem)
}

func (r QueryResult) Display(w io.Writer) error {
	if len(r.Nodes.Nodes) > 0 {
		if err := RenderNodes(w, r.Nodes); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d rows (%s)\n", len(r.Nodes.Nodes), formatDuration(r.Elapsed))
	return err
}

func (r CountResult) Display(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d (%s)\n", r.Count, formatDuration(r.Elapsed))
	return err
}

func (r WriteResult) Display(w io.Writer) error {
	var err error
	switch {
	case r.ID != "":
		_, err = fmt.Fprintf(w, "%s %s (%s)\n", r.Action, r.ID, formatDuration(r.Elapsed))
	case r.Affected > 0:
		_, err = fmt.Fprintf(w, "%s %d record(s) (%s)\n", r.Action, r.Affected, formatDuration(r.Elapsed))
	default:
		_, err = fmt.Fprintf(w, "OK (%s)\n", formatDuration(r.Elapsed))
	}
	return err
}
