package stages

import (
	"context"
	"fmt"
	"log/slog"

	"refinery/internal/config"
	"refinery/internal/logging"
	"refinery/internal/pipeline"
	"refinery/internal/services"
	"refinery/internal/services/llm"
	"refinery/internal/textutil"
)

// Filter drops artifacts whose descriptions are too thin to curate. Two
// checks run in order: an objective word count and, when enabled, an LLM
// quality assessment scored 0-100 against the configured threshold. A word
// count failure skips the LLM call entirely.
type Filter struct {
	cfg    *config.Config
	client Completer
	logger *slog.Logger
}

func NewFilter(cfg *config.Config, client Completer, logger *slog.Logger) *Filter {
	return &Filter{cfg: cfg, client: client, logger: logging.NewComponentLogger(logger, "filter")}
}

type qualityAssessment struct {
	Passed            bool   `json:"passed"`
	Score             int    `json:"score"`
	Reasoning         string `json:"reasoning"`
	IndicatorsPresent bool   `json:"indicators_present"`
	StrategyPresent   bool   `json:"strategy_present"`
}

func (f *Filter) Execute(ctx context.Context, item *pipeline.Item) error {
	description := item.Raw.String("description")
	minWords := f.cfg.Processing.MinDescriptionWords

	words := textutil.WordCount(description)
	if words < minWords {
		item.RejectReason = fmt.Sprintf("description too short: %d words (minimum %d)", words, minWords)
		return nil
	}

	if !f.cfg.Processing.EnableQualityFilter {
		item.QualityScore = 100
		return nil
	}

	assessment, err := f.assessQuality(ctx, item.Raw.Name(), description)
	if err != nil {
		// An unreachable or garbled assessor rejects rather than letting
		// unvetted content through.
		item.RejectReason = "quality assessment failed: " + services.Message(err)
		f.logger.Warn("quality assessment failed",
			logging.String(logging.FieldItemID, item.ID()),
			logging.Error(err))
		return nil
	}

	item.QualityScore = assessment.Score
	if assessment.Score < f.cfg.Processing.QualityScoreThreshold {
		item.RejectReason = fmt.Sprintf("insufficient content quality (score %d/100): %s",
			assessment.Score, assessment.Reasoning)
	}
	return nil
}

func (f *Filter) assessQuality(ctx context.Context, name, description string) (*qualityAssessment, error) {
	content, err := f.client.Complete(ctx, llm.Request{
		System:   qualitySystemPrompt,
		User:     qualityUserPrompt(name, description, f.cfg.Processing.QualityScoreThreshold),
		JSONOnly: true,
	})
	if err != nil {
		return nil, err
	}

	var assessment qualityAssessment
	if err := llm.DecodeJSON(content, &assessment); err != nil {
		return nil, services.Wrap(services.ErrExternalService, string(StageFilter), "assess_quality",
			"quality response was not valid JSON", err)
	}
	if assessment.Score < 0 {
		assessment.Score = 0
	}
	if assessment.Score > 100 {
		assessment.Score = 100
	}
	return &assessment, nil
}
