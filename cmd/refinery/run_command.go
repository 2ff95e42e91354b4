package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"refinery/internal/batch"
	"refinery/internal/checkpoint"
	"refinery/internal/config"
	"refinery/internal/ledger"
	"refinery/internal/logging"
	"refinery/internal/pipeline"
	"refinery/internal/processor"
	"refinery/internal/services/llm"
	"refinery/internal/stages"
)

func newRunCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		inputPath string
		fresh     bool
		samples   int
		batchSize int
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process an input file of scraped artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if outputDir != "" {
				expanded, err := config.ExpandPath(outputDir)
				if err != nil {
					return fmt.Errorf("resolve output dir: %w", err)
				}
				cfg.Paths.OutputDir = expanded
				if err := cfg.EnsureDirectories(); err != nil {
					return err
				}
			}
			if batchSize > 0 {
				cfg.Processing.BatchSize = batchSize
			}

			logger := cmdCtx.ensureLogger()

			// One writer per workspace. A second concurrent run would
			// corrupt the checkpoint and interleave batch numbering.
			lock := flock.New(cfg.CheckpointPath() + ".lock")
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire workspace lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another run is already active in %s", cfg.Paths.OutputDir)
			}
			defer func() { _ = lock.Unlock() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := llm.NewClient(llm.Config{
				APIKey:         cfg.LLM.APIKey,
				BaseURL:        cfg.LLM.BaseURL,
				Model:          cfg.LLM.Model,
				TimeoutSeconds: cfg.LLM.TimeoutSeconds,
			})
			if err := client.HealthCheck(ctx); err != nil {
				return fmt.Errorf("llm endpoint unavailable: %w", err)
			}

			handlers, decisions, retry := stages.Graph(cfg, client, logger)
			executor, err := pipeline.NewExecutor(stages.StageClassify, handlers, decisions, retry, logger)
			if err != nil {
				return err
			}

			var outcomes *ledger.Store
			if cfg.Ledger.Enabled {
				outcomes, err = ledger.Open(cfg.LedgerPath())
				if err != nil {
					return err
				}
				defer outcomes.Close()
			}

			proc := processor.New(
				executor,
				checkpoint.NewStore(cfg.CheckpointPath(), logger),
				batch.NewWriter(cfg.Paths.OutputDir, cfg.Processing.BatchSize, logger),
				outcomes,
				logger,
			)

			runID := uuid.NewString()
			summary, runErr := proc.Run(ctx, processor.Options{
				InputPath: inputPath,
				Fresh:     fresh,
				Samples:   samples,
				RunID:     runID,
			})
			if summary != nil {
				plain := !isatty.IsTerminal(os.Stdout.Fd())
				processor.RenderSummary(cmd.OutOrStdout(), summary, plain)
			}
			if runErr != nil {
				return runErr
			}
			if summary != nil && summary.Interrupted {
				logger.Warn("run interrupted before completion",
					logging.String(logging.FieldRunID, runID))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Path to the scraped input JSON file")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Ignore the existing checkpoint and start over")
	cmd.Flags().IntVar(&samples, "samples", 0, "Process at most this many records (0 = all)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Override the configured batch size")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Override the configured output directory")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
