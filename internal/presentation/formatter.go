// Package presentation renders command output.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatJSON writes v as indented JSON.
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatSummary writes a run summary as one key=value line.
func (f *Formatter) FormatSummary(s SummaryDTO) error {
	_, err := fmt.Fprintf(f.writer,
		"run=%s mode=%s processed=%d changed=%d updated=%d deleted=%d tracker_failures=%d write_failures=%d cache=%t duration=%s",
		s.RunID, s.Mode, s.Processed, s.Changed, s.Updated, s.Deleted,
		s.TrackerFailures, s.WriteFailures, s.CacheInvalidated, s.Duration)
	if err != nil {
		return err
	}
	if s.ArtifactPath != "" {
		if _, err := fmt.Fprintf(f.writer, " artifact=%s", s.ArtifactPath); err != nil {
			return err
		}
	}
	if s.Error != "" {
		if _, err := fmt.Fprintf(f.writer, " error=%q", s.Error); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(f.writer)
	return err
}

// FormatFailures writes failures as an aligned table.
func (f *Formatter) FormatFailures(list []FailureDTO) error {
	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tRUN\tMODULE\tKIND\tCREATED\tREASON")
	for _, d := range list {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", d.ID, d.RunID, d.Module, d.Kind, d.CreatedAt, d.Reason)
	}
	return tw.Flush()
}
