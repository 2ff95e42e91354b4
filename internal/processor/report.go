package processor

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const summaryDurationPrecision = 10 * time.Millisecond

// RenderSummary writes the run report. Plain output drops table styling for
// non-interactive destinations such as log files and CI output.
func RenderSummary(w io.Writer, summary *Summary, plain bool) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if plain {
		tw.SetStyle(table.StyleDefault)
		tw.Style().Options.DrawBorder = false
		tw.Style().Options.SeparateColumns = false
	} else {
		tw.SetStyle(table.StyleLight)
	}

	tw.SetTitle("Run %s", summary.RunID)
	tw.AppendRows([]table.Row{
		{"Input records", summary.TotalInput},
		{"Resumed at index", summary.StartIndex},
		{"Processed", summary.Processed},
		{"Accepted", summary.Accepted},
		{"Rejected", summary.Rejected},
		{"Acceptance rate", fmt.Sprintf("%.1f%%", summary.AcceptanceRate())},
		{"Batches written", summary.BatchesWritten},
		{"Duration", summary.Duration.Round(summaryDurationPrecision)},
	})
	if summary.Interrupted {
		tw.AppendRow(table.Row{"Interrupted", "yes"})
	}
	classes := make([]string, 0, len(summary.Classifications))
	for class := range summary.Classifications {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		tw.AppendRow(table.Row{"Classified " + class, summary.Classifications[class]})
	}
	tw.Render()

	if len(summary.Rejections) == 0 {
		return
	}

	rt := table.NewWriter()
	rt.SetOutputMirror(w)
	if plain {
		rt.SetStyle(table.StyleDefault)
		rt.Style().Options.DrawBorder = false
		rt.Style().Options.SeparateColumns = false
	} else {
		rt.SetStyle(table.StyleLight)
	}
	rt.SetTitle("Rejections by stage")
	rt.AppendHeader(table.Row{"Stage", "Count"})
	rt.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})

	stages := make([]string, 0, len(summary.Rejections))
	for stage := range summary.Rejections {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		rt.AppendRow(table.Row{stage, summary.Rejections[stage]})
	}
	rt.Render()
}
