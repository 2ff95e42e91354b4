// Package batch accumulates accepted items and flushes them to fixed-column
// CSV artifacts. Each flushed file holds exactly the rows accepted since the
// previous flush; rejected items never reach a batch.
package batch

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"refinery/internal/logging"
	"refinery/internal/pipeline"
)

// Columns is the output schema in emission order. Downstream training jobs
// index these by position, so the order is load-bearing.
var Columns = []string{
	"id", "name", "description", "reasoning",
	"created_at", "source_code", "relevant_symbols",
}

// Writer buffers accepted rows and writes one CSV artifact per flush.
// Artifact names follow processed_batch_<n>_<timestamp>.csv with n continuing
// past any artifacts already present in the directory, so a resumed run never
// reuses a batch number.
type Writer struct {
	dir     string
	size    int
	logger  *slog.Logger
	pending []pipeline.Output
	seq     int
	flushed int
	written int
	now     func() time.Time
}

func NewWriter(dir string, size int, logger *slog.Logger) *Writer {
	if size < 1 {
		size = 1
	}
	return &Writer{
		dir:    dir,
		size:   size,
		logger: logging.NewComponentLogger(logger, "batch"),
		seq:    existingArtifacts(dir),
		now:    time.Now,
	}
}

// existingArtifacts counts artifacts already in the directory. A missing or
// unreadable directory counts as empty.
func existingArtifacts(dir string) int {
	matches, err := filepath.Glob(filepath.Join(dir, "processed_batch_*.csv"))
	if err != nil {
		return 0
	}
	return len(matches)
}

// Add buffers one accepted row and flushes when the buffer reaches the
// batch size.
func (w *Writer) Add(row pipeline.Output) error {
	w.pending = append(w.pending, row)
	if len(w.pending) >= w.size {
		return w.Flush()
	}
	return nil
}

// Pending returns how many rows await the next flush.
func (w *Writer) Pending() int { return len(w.pending) }

// Flushed returns how many artifacts this run has written.
func (w *Writer) Flushed() int { return w.flushed }

// Written returns the total rows persisted across all artifacts.
func (w *Writer) Written() int { return w.written }

// Flush writes buffered rows to a new artifact. Flushing an empty buffer is
// a no-op so shutdown can always call it unconditionally.
func (w *Writer) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create batch directory: %w", err)
	}

	name := fmt.Sprintf("processed_batch_%d_%s.csv", w.seq+1, w.now().UTC().Format("20060102T150405"))
	path := filepath.Join(w.dir, name)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create batch artifact: %w", err)
	}

	cw := csv.NewWriter(file)
	if err := cw.Write(Columns); err != nil {
		file.Close()
		return fmt.Errorf("write batch header: %w", err)
	}
	for _, row := range w.pending {
		record := []string{
			row.ID, row.Name, row.Description, row.Reasoning,
			row.CreatedAt, row.SourceCode, row.RelevantSymbols,
		}
		if err := cw.Write(record); err != nil {
			file.Close()
			return fmt.Errorf("write batch row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		file.Close()
		return fmt.Errorf("flush batch artifact: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close batch artifact: %w", err)
	}

	w.seq++
	w.flushed++
	w.written += len(w.pending)
	w.logger.Info("batch artifact written",
		logging.String("path", path),
		logging.Int("rows", len(w.pending)))
	w.pending = w.pending[:0]
	return nil
}
