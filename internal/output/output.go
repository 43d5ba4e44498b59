/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
// Package output renders build cycle reports for fastbundle CLI commands.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"

	"bennypowers.dev/fastbundle/engine"
)

// Format is a report format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat parses a format flag value.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table", "text", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid format %q: must be 'table' or 'json'", s)
	}
}

// Bundle statuses.
const (
	StatusBuilt   = "built"
	StatusSkipped = "skipped"
	StatusDeleted = "deleted"
	StatusEmpty   = "empty"
	StatusFailed  = "failed"
)

// Row is one bundle's line in a report.
type Row struct {
	Bundle string `json:"bundle"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
	// Reason is the invalidation reason of a rebuilt bundle.
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report is the serializable form of a cycle result.
type Report struct {
	DestDir    string  `json:"destDir"`
	DurationMS float64 `json:"durationMs"`
	Bundles    []Row   `json:"bundles"`
}

// NewReport flattens a cycle result into rows sorted by bundle key.
func NewReport(result *engine.CycleResult) Report {
	r := Report{
		DestDir:    result.DestDir,
		DurationMS: float64(result.Duration.Microseconds()) / 1000,
	}

	add := func(keys []string, status string) {
		for _, key := range keys {
			r.Bundles = append(r.Bundles, Row{
				Bundle: key,
				Status: status,
				Output: result.Outputs[key],
				Reason: result.Invalidated[key],
			})
		}
	}
	add(result.Built, StatusBuilt)
	add(result.Skipped, StatusSkipped)
	add(result.Deleted, StatusDeleted)
	add(result.Empty, StatusEmpty)
	for _, key := range slices.Sorted(maps.Keys(result.Failed)) {
		r.Bundles = append(r.Bundles, Row{
			Bundle: key,
			Status: StatusFailed,
			Reason: result.Invalidated[key],
			Error:  result.Failed[key].Error(),
		})
	}

	slices.SortStableFunc(r.Bundles, func(a, b Row) int {
		return strings.Compare(a.Bundle, b.Bundle)
	})
	return r
}

// Write renders result to w.
func Write(w io.Writer, result *engine.CycleResult, format Format) error {
	report := NewReport(result)
	if format == FormatJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Bundle", "Status", "Output", "Detail"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	for _, row := range report.Bundles {
		detail := row.Reason
		if row.Error != "" {
			detail = row.Error
		}
		table.Append([]string{row.Bundle, row.Status, row.Output, detail})
	}
	table.Render()

	_, err := fmt.Fprintf(w, "%d bundles in %s (%.1fms)\n", len(report.Bundles), report.DestDir, report.DurationMS)
	return err
}
