package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"refinery/internal/checkpoint"
)

func newCheckpointCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect and manage run progress",
	}
	cmd.AddCommand(newCheckpointShowCommand(cmdCtx))
	cmd.AddCommand(newCheckpointResetCommand(cmdCtx))
	cmd.AddCommand(newCheckpointSetCommand(cmdCtx))
	return cmd
}

func newCheckpointShowCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			store := checkpoint.NewStore(cfg.CheckpointPath(), cmdCtx.ensureLogger())
			record, err := store.Load()
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			applyTableStyle(tw)
			tw.SetTitle("Checkpoint %s", store.Path())
			tw.AppendRows([]table.Row{
				{"Last processed index", record.LastProcessedIndex},
				{"Processed", record.ProcessedCount},
				{"Accepted", record.AcceptedCount()},
				{"Rejected", record.RejectedCount},
				{"Updated", record.Timestamp.Format("2006-01-02 15:04:05 MST")},
			})
			if record.ProcessedCount > 0 {
				rate := float64(record.AcceptedCount()) / float64(record.ProcessedCount) * 100
				tw.AppendRow(table.Row{"Acceptance rate", fmt.Sprintf("%.1f%%", rate)})
			}
			tw.Render()

			if len(record.Stats.RejectionsByStage) > 0 {
				rt := table.NewWriter()
				rt.SetOutputMirror(cmd.OutOrStdout())
				applyTableStyle(rt)
				rt.SetTitle("Rejections by stage")
				rt.AppendHeader(table.Row{"Stage", "Count"})
				stagesSorted := make([]string, 0, len(record.Stats.RejectionsByStage))
				for stage := range record.Stats.RejectionsByStage {
					stagesSorted = append(stagesSorted, stage)
				}
				sort.Strings(stagesSorted)
				for _, stage := range stagesSorted {
					rt.AppendRow(table.Row{stage, record.Stats.RejectionsByStage[stage]})
				}
				rt.Render()
			}
			return nil
		},
	}
}

func newCheckpointResetCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Move the checkpoint aside so the next run starts fresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			store := checkpoint.NewStore(cfg.CheckpointPath(), cmdCtx.ensureLogger())
			if err := store.Reset(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint reset; previous state saved as %s.bak\n", store.Path())
			return nil
		},
	}
}

func newCheckpointSetCommand(cmdCtx *commandContext) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Force the last processed index, keeping counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			if index < -1 {
				return fmt.Errorf("index must be >= -1, got %d", index)
			}
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			store := checkpoint.NewStore(cfg.CheckpointPath(), cmdCtx.ensureLogger())
			record, err := store.Load()
			if err != nil {
				return err
			}
			record.LastProcessedIndex = index
			if err := store.Save(record); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint index set to %d\n", index)
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "index", -1, "Last processed index the next run resumes after")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

// applyTableStyle keeps table output readable both interactively and when
// piped.
func applyTableStyle(tw table.Writer) {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		tw.SetStyle(table.StyleLight)
		return
	}
	tw.SetStyle(table.StyleDefault)
	tw.Style().Options.DrawBorder = false
	tw.Style().Options.SeparateColumns = false
}
