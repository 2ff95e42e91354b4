package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"refinery/internal/ledger"
	"refinery/internal/textutil"
)

func newOutcomesCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		runID string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "Show recent per-item outcomes from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Ledger.Enabled {
				return fmt.Errorf("ledger is disabled in configuration")
			}

			store, err := ledger.Open(cfg.LedgerPath())
			if err != nil {
				return err
			}
			defer store.Close()

			outcomes, err := store.Recent(cmd.Context(), runID, limit)
			if err != nil {
				return err
			}
			if len(outcomes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No outcomes recorded.")
				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			applyTableStyle(tw)
			tw.AppendHeader(table.Row{"Index", "Item", "Status", "Stage", "Reason", "Attempts", "Recorded"})
			for _, o := range outcomes {
				name := o.ItemName
				if name == "" {
					name = o.ItemID
				}
				tw.AppendRow(table.Row{
					o.ItemIndex,
					textutil.Truncate(name, 32),
					o.Status,
					o.RejectStage,
					textutil.Truncate(textutil.FirstLine(o.RejectReason), 48),
					o.Attempts,
					o.RecordedAt.Format("2006-01-02 15:04:05"),
				})
			}
			tw.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Filter outcomes to one run ID")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to display")
	return cmd
}
