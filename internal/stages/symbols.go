package stages

import (
	"context"
	"log/slog"
	"strings"

	"refinery/internal/logging"
	"refinery/internal/pipeline"
	"refinery/internal/services/llm"
)

// Symbols infers which trading symbols the strategy targets from its
// description. Inference is best effort: any failure leaves the symbol list
// empty and the item continues.
type Symbols struct {
	client Completer
	logger *slog.Logger
}

func NewSymbols(client Completer, logger *slog.Logger) *Symbols {
	return &Symbols{client: client, logger: logging.NewComponentLogger(logger, "symbols")}
}

type symbolInference struct {
	Symbols    []string `json:"symbols"`
	Confidence string   `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

func (s *Symbols) Execute(ctx context.Context, item *pipeline.Item) error {
	description := item.Description
	if description == "" {
		description = item.Raw.String("description")
	}

	content, err := s.client.Complete(ctx, llm.Request{
		System:   symbolsSystemPrompt,
		User:     symbolsUserPrompt(item.Raw.Name(), description),
		JSONOnly: true,
	})
	if err != nil {
		s.logger.Warn("symbol inference failed",
			logging.String(logging.FieldItemID, item.ID()),
			logging.Error(err))
		item.Symbols = nil
		return nil
	}

	var inferred symbolInference
	if err := llm.DecodeJSON(content, &inferred); err != nil {
		s.logger.Warn("symbol inference returned invalid JSON",
			logging.String(logging.FieldItemID, item.ID()),
			logging.Error(err))
		item.Symbols = nil
		return nil
	}

	item.Symbols = normalizeSymbols(inferred.Symbols)
	return nil
}

// normalizeSymbols uppercases, trims, and dedupes, capping the list at five
// entries in relevance order.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
		if len(out) == 5 {
			break
		}
	}
	return out
}
