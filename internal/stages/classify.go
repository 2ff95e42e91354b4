package stages

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"refinery/internal/logging"
	"refinery/internal/pipeline"
)

const (
	classStrategy  = "strategy"
	classIndicator = "indicator"
)

var (
	strategyDecl   = regexp.MustCompile(`(?i)\bstrategy\s*\(|@strategy`)
	indicatorDecl  = regexp.MustCompile(`(?i)\bindicator\s*\(|@indicator`)
	orderCallsExpr = regexp.MustCompile(`(?i)strategy\.(entry|order|exit|close)`)
)

// Classify tags each artifact as a strategy or an indicator from its Pine
// source. Only strategies continue; pure indicators carry no order logic to
// convert and are dropped by policy.
type Classify struct {
	logger *slog.Logger
}

func NewClassify(logger *slog.Logger) *Classify {
	return &Classify{logger: logging.NewComponentLogger(logger, "classify")}
}

func (c *Classify) Execute(ctx context.Context, item *pipeline.Item) error {
	code := item.Raw.String("source_code")
	item.Classification = classifySource(code)

	if item.Classification != classStrategy {
		item.RejectReason = fmt.Sprintf("detected %s, only strategies are processed", item.Classification)
		c.logger.Debug("dropping non-strategy artifact",
			logging.String(logging.FieldItemID, item.ID()),
			logging.String("classification", item.Classification))
	}
	return nil
}

// classifySource applies declaration patterns first and falls back to the
// presence of order calls when the script declares neither form.
func classifySource(code string) string {
	switch {
	case strategyDecl.MatchString(code):
		return classStrategy
	case indicatorDecl.MatchString(code):
		return classIndicator
	case orderCallsExpr.MatchString(code):
		return classStrategy
	default:
		return classIndicator
	}
}
