// Package checkpoint persists run progress so an interrupted curation run
// resumes where it stopped. The checkpoint is a single JSON file updated
// with an atomic write-then-rename after every batch and on shutdown.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"refinery/internal/logging"
)

// Stats aggregates per-run counters that survive restarts: how often each
// stage rejected an item and how the classifier split the input.
type Stats struct {
	RejectionsByStage map[string]int `json:"rejections_by_stage,omitempty"`
	Classifications   map[string]int `json:"classifications,omitempty"`
}

// Record is the on-disk checkpoint. LastProcessedIndex is -1 before any item
// completes; resumption starts at LastProcessedIndex+1.
type Record struct {
	LastProcessedIndex int       `json:"last_processed_index"`
	ProcessedCount     int       `json:"processed_count"`
	RejectedCount      int       `json:"rejected_count"`
	Timestamp          time.Time `json:"timestamp"`
	Stats              Stats     `json:"stats"`
}

// NewRecord returns a fresh checkpoint with no progress.
func NewRecord() *Record {
	return &Record{
		LastProcessedIndex: -1,
		Timestamp:          time.Now().UTC(),
		Stats: Stats{
			RejectionsByStage: map[string]int{},
			Classifications:   map[string]int{},
		},
	}
}

// Advance records completion of the item at index. Indexes are monotonic:
// an out-of-order index is ignored so a replayed item cannot move progress
// backwards.
func (r *Record) Advance(index int, rejected bool) {
	if index <= r.LastProcessedIndex {
		return
	}
	r.LastProcessedIndex = index
	r.ProcessedCount++
	if rejected {
		r.RejectedCount++
	}
	r.Timestamp = time.Now().UTC()
}

// CountRejection increments the per-stage rejection counter.
func (r *Record) CountRejection(stage string) {
	if r.Stats.RejectionsByStage == nil {
		r.Stats.RejectionsByStage = map[string]int{}
	}
	r.Stats.RejectionsByStage[stage]++
}

// CountClassification increments the classifier outcome counter.
func (r *Record) CountClassification(class string) {
	if class == "" {
		return
	}
	if r.Stats.Classifications == nil {
		r.Stats.Classifications = map[string]int{}
	}
	r.Stats.Classifications[class]++
}

// AcceptedCount derives the number of accepted items.
func (r *Record) AcceptedCount() int {
	return r.ProcessedCount - r.RejectedCount
}

// Store reads and writes the checkpoint file.
type Store struct {
	path   string
	logger *slog.Logger
}

func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logging.NewComponentLogger(logger, "checkpoint")}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string { return s.path }

// Load returns the persisted checkpoint. A missing file yields a fresh
// record. A corrupt file is logged and also yields a fresh record, so a
// damaged checkpoint costs reprocessing rather than aborting the run.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewRecord(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	record := NewRecord()
	if err := json.Unmarshal(data, record); err != nil {
		s.logger.Warn("checkpoint file is corrupt, starting fresh",
			logging.String("path", s.path),
			logging.Error(err))
		return NewRecord(), nil
	}
	if record.LastProcessedIndex < -1 {
		record.LastProcessedIndex = -1
	}
	return record, nil
}

// Save writes the checkpoint atomically: the record lands in a temp file in
// the same directory which then renames over the target, so readers never
// observe a partial write.
func (s *Store) Save(record *Record) error {
	record.Timestamp = time.Now().UTC()
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.json")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Reset moves the current checkpoint aside as a .bak file. Missing
// checkpoints reset to nothing silently.
func (s *Store) Reset() error {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat checkpoint: %w", err)
	}
	backup := s.path + ".bak"
	if err := os.Rename(s.path, backup); err != nil {
		return fmt.Errorf("back up checkpoint: %w", err)
	}
	s.logger.Info("checkpoint reset", logging.String("backup", backup))
	return nil
}
