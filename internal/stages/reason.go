package stages

import (
	"context"
	"log/slog"

	"refinery/internal/logging"
	"refinery/internal/pipeline"
)

// Reason attaches the reasoning field to the output schema. The column is
// currently populated with an empty string; a generation step can slot in
// here once the training format settles on a reasoning template.
type Reason struct {
	logger *slog.Logger
}

func NewReason(logger *slog.Logger) *Reason {
	return &Reason{logger: logging.NewComponentLogger(logger, "reason")}
}

func (r *Reason) Execute(ctx context.Context, item *pipeline.Item) error {
	item.Reasoning = ""
	return nil
}
