package shoal

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/dbtestlabs/shoal/types"
)

// printResultsTable prints the consolidated per-test results to the console.
func (h *Harness) printResultsTable() {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", h.runID))

	t.AppendHeader(table.Row{
		"Suite", "Test", "Status", "RC", "Duration",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Suite", AutoMerge: true},
		{Name: "Test", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "RC", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, sr := range h.report.Suites() {
		for _, info := range sr.CombinedReport().TestInfos() {
			t.AppendRow(table.Row{
				sr.Name(),
				info.TestID,
				statusString(info.Status),
				info.ReturnCode,
				formatDuration(info.EndTime.Sub(info.StartTime)),
			})
		}
		t.AppendSeparator()
	}

	t.Render()
}

// statusString renders a status with a color matching its severity.
func statusString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return text.Colors{text.FgGreen}.Sprint("pass")
	case types.TestStatusFail:
		return text.Colors{text.FgRed}.Sprint("fail")
	case types.TestStatusError:
		return text.Colors{text.FgRed, text.Bold}.Sprint("error")
	case types.TestStatusTimeout:
		return text.Colors{text.FgYellow}.Sprint("timeout")
	default:
		return string(status)
	}
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "-"
	}
	return d.Round(10 * time.Millisecond).String()
}
