package stages

import (
	"context"
	"log/slog"

	"refinery/internal/config"
	"refinery/internal/pipeline"
	"refinery/internal/services/llm"
)

// Stage identifiers. This is the complete set the graph routes between;
// the executor rejects tables that reference anything else.
const (
	StageClassify pipeline.StageID = "classify"
	StageFilter   pipeline.StageID = "filter"
	StageScrub    pipeline.StageID = "scrub"
	StageConvert  pipeline.StageID = "convert"
	StageValidate pipeline.StageID = "validate"
	StageDescribe pipeline.StageID = "describe"
	StageSymbols  pipeline.StageID = "symbols"
	StageReason   pipeline.StageID = "reason"
)

// All lists every stage in traversal order, used for reporting.
var All = []pipeline.StageID{
	StageClassify, StageFilter, StageScrub, StageConvert,
	StageValidate, StageDescribe, StageSymbols, StageReason,
}

// Completer is the slice of the LLM client the stages consume. Tests
// substitute a canned implementation.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Graph assembles the stage table and retry policy for the configured
// backend. The convert stage is the retry producer and validate its checker;
// every other edge is fixed.
func Graph(cfg *config.Config, client Completer, logger *slog.Logger) (map[pipeline.StageID]pipeline.Handler, map[pipeline.StageID]pipeline.Decision, pipeline.RetryPolicy) {
	handlers := map[pipeline.StageID]pipeline.Handler{
		StageClassify: NewClassify(logger),
		StageFilter:   NewFilter(cfg, client, logger),
		StageScrub:    NewScrub(logger),
		StageConvert:  NewConvert(cfg, client, logger),
		StageValidate: NewValidate(cfg, client, logger),
		StageDescribe: NewDescribe(cfg, client, logger),
		StageSymbols:  NewSymbols(client, logger),
		StageReason:   NewReason(logger),
	}

	decisions := map[pipeline.StageID]pipeline.Decision{
		StageClassify: func(item *pipeline.Item) pipeline.StageID {
			if item.Classification == classStrategy {
				return StageFilter
			}
			return pipeline.Reject
		},
		StageFilter: func(item *pipeline.Item) pipeline.StageID {
			if item.RejectReason != "" {
				return pipeline.Reject
			}
			return StageScrub
		},
		StageScrub:    func(*pipeline.Item) pipeline.StageID { return StageConvert },
		StageConvert:  func(*pipeline.Item) pipeline.StageID { return StageValidate },
		StageValidate: func(*pipeline.Item) pipeline.StageID { return StageDescribe },
		StageDescribe: func(*pipeline.Item) pipeline.StageID { return StageSymbols },
		StageSymbols:  func(*pipeline.Item) pipeline.StageID { return StageReason },
		StageReason:   func(*pipeline.Item) pipeline.StageID { return pipeline.Accept },
	}

	retry := pipeline.RetryPolicy{
		Producer:    StageConvert,
		Checker:     StageValidate,
		MaxAttempts: cfg.Processing.MaxConvertAttempts,
	}
	return handlers, decisions, retry
}
