package stages

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"refinery/internal/logging"
	"refinery/internal/pipeline"
)

// Pine visualization calls that contribute nothing to strategy semantics.
var plotCallExpr = regexp.MustCompile(`(?i)^\s*(plot|plotshape|plotchar|plotarrow|hline|bgcolor|barcolor|fill|line\.new|box\.new|label\.new)\s*\(`)

// Scrub strips visualization statements from the Pine source before
// conversion, shrinking the prompt and removing calls the target backend has
// no equivalent for. Scrubbing never rejects: when nothing matches the
// source passes through unchanged.
type Scrub struct {
	logger *slog.Logger
}

func NewScrub(logger *slog.Logger) *Scrub {
	return &Scrub{logger: logging.NewComponentLogger(logger, "scrub")}
}

func (s *Scrub) Execute(ctx context.Context, item *pipeline.Item) error {
	source := item.Raw.String("source_code")
	cleaned, removed := StripVisualization(source)
	item.CleanSource = cleaned
	if removed > 0 {
		s.logger.Debug("removed visualization statements",
			logging.String(logging.FieldItemID, item.ID()),
			logging.Int("removed", removed))
	}
	return nil
}

// StripVisualization removes whole lines that open a plotting or drawing
// call. Multi-line calls keep their continuation lines; the converter
// tolerates the leftovers. Returns the cleaned source and the number of
// lines removed.
func StripVisualization(source string) (string, int) {
	if source == "" {
		return "", 0
	}
	lines := strings.Split(source, "\n")
	kept := lines[:0]
	removed := 0
	for _, line := range lines {
		if plotCallExpr.MatchString(line) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n"), removed
}
