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

// Validate checks a conversion before it advances. Structural checks run
// first since they are free; when they pass and LLM validation is enabled,
// the original and converted code go to the model for a semantic
// equivalence verdict. A failed check raises a validation error whose
// message becomes the next conversion attempt's feedback.
type Validate struct {
	cfg    *config.Config
	client Completer
	logger *slog.Logger
}

func NewValidate(cfg *config.Config, client Completer, logger *slog.Logger) *Validate {
	return &Validate{cfg: cfg, client: client, logger: logging.NewComponentLogger(logger, "validate")}
}

type semanticVerdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

func (v *Validate) Execute(ctx context.Context, item *pipeline.Item) error {
	code := item.Converted
	if strings.TrimSpace(code) == "" {
		return services.Wrap(services.ErrValidation, string(StageValidate), "validate",
			"no converted code to validate", nil)
	}

	if err := checkStructure(code); err != nil {
		return err
	}
	if missing := missingElements(v.cfg.Processing.Backend, code); len(missing) > 0 {
		return services.Wrap(services.ErrValidation, string(StageValidate), "validate",
			"converted code missing required elements: "+strings.Join(missing, ", "), nil)
	}

	if !v.cfg.Processing.UseLLMValidation {
		return nil
	}

	verdict, err := v.semanticCheck(ctx, item.Raw.String("source_code"), code)
	if err != nil {
		return services.Wrap(services.ErrValidation, string(StageValidate), "validate",
			"semantic validation failed: "+services.Message(err), err)
	}
	if !verdict.Valid {
		reason := verdict.Reason
		if reason == "" {
			reason = "converted code is not equivalent to the original"
		}
		return services.Wrap(services.ErrValidation, string(StageValidate), "validate", reason, nil)
	}

	v.logger.Debug("conversion validated",
		logging.String(logging.FieldItemID, item.ID()),
		logging.Int("attempt", item.Attempts))
	return nil
}

// checkStructure applies backend-independent sanity checks that catch the
// model's most common failure shapes without executing anything.
func checkStructure(code string) error {
	trimmed := strings.TrimSpace(code)
	if strings.HasPrefix(trimmed, "I ") || strings.HasPrefix(trimmed, "Sorry") ||
		strings.HasPrefix(trimmed, "Here") {
		return services.Wrap(services.ErrValidation, string(StageValidate), "validate",
			"response is prose, not code", nil)
	}
	if strings.Contains(code, "```") {
		return services.Wrap(services.ErrValidation, string(StageValidate), "validate",
			"converted code still contains markdown fences", nil)
	}
	if balance := delimiterBalance(code); balance != 0 {
		return services.Wrap(services.ErrValidation, string(StageValidate), "validate",
			"unbalanced brackets in converted code", nil)
	}
	return nil
}

// delimiterBalance tracks paren, bracket, and brace nesting outside string
// literals and comments. A nonzero result means truncated output.
func delimiterBalance(code string) int {
	depth := 0
	for _, line := range strings.Split(code, "\n") {
		inString := false
		var quote rune
	scan:
		for i, r := range line {
			if inString {
				if r == quote && (i == 0 || line[i-1] != '\\') {
					inString = false
				}
				continue
			}
			switch r {
			case '\'', '"':
				inString = true
				quote = r
			case '#':
				break scan
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				depth--
			}
		}
	}
	return depth
}

func (v *Validate) semanticCheck(ctx context.Context, original, converted string) (*semanticVerdict, error) {
	content, err := v.client.Complete(ctx, llm.Request{
		System:   validateSystemPrompt,
		User:     validateUserPrompt(v.cfg.Processing.Backend, original, converted),
		JSONOnly: true,
	})
	if err != nil {
		return nil, err
	}
	var verdict semanticVerdict
	if err := llm.DecodeJSON(content, &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}
