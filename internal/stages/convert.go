package stages

import (
	"context"
	"log/slog"
	"strings"

	"refinery/internal/config"
	"refinery/internal/logging"
	"refinery/internal/pipeline"
	"refinery/internal/services"
	"refinery/internal/services/llm"
)

// Convert translates the scrubbed Pine source into runnable Python for the
// configured backend. Validator feedback from a previous round is folded
// into the prompt so the model can repair the specific complaint. The stage
// performs a cheap structural sniff on the response and fails fast when
// required elements are missing, which feeds the retry loop without waiting
// for the validator.
type Convert struct {
	cfg    *config.Config
	client Completer
	logger *slog.Logger
}

func NewConvert(cfg *config.Config, client Completer, logger *slog.Logger) *Convert {
	return &Convert{cfg: cfg, client: client, logger: logging.NewComponentLogger(logger, "convert")}
}

func (c *Convert) Execute(ctx context.Context, item *pipeline.Item) error {
	source := item.CleanSource
	if source == "" {
		source = item.Raw.String("source_code")
	}
	if strings.TrimSpace(source) == "" {
		return services.Wrap(services.ErrMissingInput, string(StageConvert), "convert",
			"artifact has no source code", nil)
	}

	backend := c.cfg.Processing.Backend
	content, err := c.client.Complete(ctx, llm.Request{
		System: convertSystemPrompt(backend),
		User:   convertUserPrompt(source, item.Feedback),
	})
	if err != nil {
		return services.Wrap(services.ErrExternalService, string(StageConvert), "convert",
			"conversion request failed", err)
	}

	code := llm.StripCodeFence(content)
	if strings.TrimSpace(code) == "" {
		return services.Wrap(services.ErrExternalService, string(StageConvert), "convert",
			"model returned an empty conversion", nil)
	}

	if missing := missingElements(backend, code); len(missing) > 0 {
		return services.Wrap(services.ErrValidation, string(StageConvert), "convert",
			"converted code missing required elements: "+strings.Join(missing, ", "), nil)
	}

	item.Converted = code
	c.logger.Debug("converted source",
		logging.String(logging.FieldItemID, item.ID()),
		logging.String("backend", backend),
		logging.Int("attempt", item.Attempts),
		logging.Int("bytes", len(code)))
	return nil
}

// missingElements lists the backend's structural markers absent from the
// converted code. The validate stage repeats these checks so a later manual
// edit cannot sneak a gutted conversion through.
func missingElements(backend, code string) []string {
	var missing []string
	for _, elem := range requiredElements(backend) {
		if !strings.Contains(code, elem) {
			missing = append(missing, elem)
		}
	}
	return missing
}

func requiredElements(backend string) []string {
	if backend == config.BackendPyne {
		return []string{"@pyne", "def main(", "@script."}
	}
	return []string{"import backtrader", "bt.Strategy", "def __init__", "def next"}
}
