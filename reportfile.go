package shoal

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dbtestlabs/shoal/report"
)

// WriteReportFile persists the combined report as JSON at path. The format
// round-trips through report.FromDict, so reports of independently-run
// invocations can be merged.
func WriteReportFile(path string, info *report.Info) error {
	data, err := json.MarshalIndent(info.AsDict(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// ReadReportFile loads a report previously written by WriteReportFile.
func ReadReportFile(path string) (*report.Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var results report.Results
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return report.FromDict(results), nil
}
