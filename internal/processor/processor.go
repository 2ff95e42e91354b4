// Package processor orchestrates a curation run: it loads the scraped
// input, resumes from the checkpoint, drives each item through the stage
// executor, accumulates accepted rows into batch artifacts, and records
// terminal outcomes in the ledger. Interruption is cooperative: cancel the
// run context and the processor saves its progress before returning.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"refinery/internal/batch"
	"refinery/internal/checkpoint"
	"refinery/internal/ledger"
	"refinery/internal/logging"
	"refinery/internal/pipeline"
	"refinery/internal/services"
)

// Options control a single run.
type Options struct {
	InputPath string
	// Fresh discards the existing checkpoint and starts from index zero.
	Fresh bool
	// Samples caps how many input records are considered. Zero means all.
	Samples int
	RunID   string
}

// Summary reports what a run did.
type Summary struct {
	RunID          string
	TotalInput     int
	StartIndex     int
	Processed      int
	Accepted       int
	Rejected       int
	BatchesWritten int
	Interrupted    bool
	Duration       time.Duration
	Rejections     map[string]int
	// Classifications counts classifier outcomes across the whole
	// checkpointed run, not just this invocation.
	Classifications map[string]int
}

// AcceptanceRate returns accepted/processed as a percentage.
func (s Summary) AcceptanceRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Processed) * 100
}

// Processor wires the run components together.
type Processor struct {
	executor    *pipeline.Executor
	checkpoints *checkpoint.Store
	batches     *batch.Writer
	outcomes    *ledger.Store
	logger      *slog.Logger
}

// New assembles a processor. The ledger store may be nil when outcome
// recording is disabled.
func New(executor *pipeline.Executor, checkpoints *checkpoint.Store, batches *batch.Writer, outcomes *ledger.Store, logger *slog.Logger) *Processor {
	return &Processor{
		executor:    executor,
		checkpoints: checkpoints,
		batches:     batches,
		outcomes:    outcomes,
		logger:      logging.NewComponentLogger(logger, "processor"),
	}
}

// Run executes the curation workflow over the input file. It returns a
// summary even on interruption; the returned error reports infrastructure
// failures, never per-item ones.
func (p *Processor) Run(ctx context.Context, opts Options) (*Summary, error) {
	started := time.Now()
	ctx = services.WithRunID(ctx, opts.RunID)

	records, err := LoadInput(opts.InputPath, opts.Samples)
	if err != nil {
		return nil, err
	}

	if opts.Fresh {
		if err := p.checkpoints.Reset(); err != nil {
			return nil, err
		}
	}
	record, err := p.checkpoints.Load()
	if err != nil {
		return nil, err
	}

	start := record.LastProcessedIndex + 1
	if start > len(records) {
		start = len(records)
	}
	summary := &Summary{
		RunID:      opts.RunID,
		TotalInput: len(records),
		StartIndex: start,
	}

	p.logger.Info("run starting",
		logging.String(logging.FieldRunID, opts.RunID),
		logging.String("input", opts.InputPath),
		logging.Int("records", len(records)),
		logging.Int("start_index", start))

	var runErr error
	for index := start; index < len(records); index++ {
		item := pipeline.NewItem(index, records[index])
		itemCtx := services.WithItemID(ctx, item.ID())
		itemCtx = services.WithItemIndex(itemCtx, index)
		itemLog := logging.WithContext(itemCtx, p.logger)

		flushedBefore := p.batches.Flushed()
		err := p.executor.Run(itemCtx, item)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			summary.Interrupted = true
			itemLog.Info("run interrupted, saving progress")
			break
		}

		record.CountClassification(item.Classification)
		record.Advance(index, item.Rejected())
		summary.Processed++

		if item.Rejected() {
			summary.Rejected++
			record.CountRejection(string(item.RejectStage))
			itemLog.Info("item rejected",
				logging.String(logging.FieldStage, string(item.RejectStage)),
				logging.String("reason", item.RejectReason))
		} else if row, ok := item.Project(); ok {
			summary.Accepted++
			itemLog.Info("item accepted", logging.Int("attempts", item.Attempts))
			if err := p.batches.Add(row); err != nil {
				// Persistence is best effort mid-run. The row stays buffered
				// and the final flush retries it.
				itemLog.Warn("batch write failed, continuing", logging.Error(err))
			}
		} else {
			// Accepted without an identifier cannot be exported. Count it
			// as rejected so the totals reconcile.
			summary.Rejected++
			record.RejectedCount++
			record.CountRejection("export")
			itemLog.Warn("accepted item lacked an id, dropped")
		}

		p.recordOutcome(ctx, opts.RunID, item)

		if p.batches.Flushed() != flushedBefore {
			if err := p.checkpoints.Save(record); err != nil {
				itemLog.Warn("checkpoint save failed, continuing", logging.Error(err))
			}
		}
	}

	if err := p.batches.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("final batch flush: %w", err)
	}
	if err := p.checkpoints.Save(record); err != nil && runErr == nil {
		runErr = fmt.Errorf("final checkpoint save: %w", err)
	}

	summary.BatchesWritten = p.batches.Flushed()
	summary.Duration = time.Since(started)
	summary.Rejections = cloneCounts(record.Stats.RejectionsByStage)
	summary.Classifications = cloneCounts(record.Stats.Classifications)

	p.logger.Info("run finished",
		logging.String(logging.FieldRunID, opts.RunID),
		logging.Int("processed", summary.Processed),
		logging.Int("accepted", summary.Accepted),
		logging.Int("rejected", summary.Rejected),
		logging.Int("batches", summary.BatchesWritten),
		logging.Bool("interrupted", summary.Interrupted))
	return summary, runErr
}

func (p *Processor) recordOutcome(ctx context.Context, runID string, item *pipeline.Item) {
	if p.outcomes == nil {
		return
	}
	err := p.outcomes.Record(ctx, ledger.Outcome{
		RunID:        runID,
		ItemID:       item.ID(),
		ItemIndex:    item.Index,
		ItemName:     item.Raw.Name(),
		Status:       string(item.Status),
		RejectStage:  string(item.RejectStage),
		RejectReason: item.RejectReason,
		Attempts:     item.Attempts,
	})
	if err != nil {
		p.logger.Warn("failed to record outcome",
			logging.String(logging.FieldItemID, item.ID()),
			logging.Error(err))
	}
}

func cloneCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}
