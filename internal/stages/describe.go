package stages

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"refinery/internal/config"
	"refinery/internal/logging"
	"refinery/internal/pipeline"
	"refinery/internal/services/llm"
)

// Describe replaces the artifact's marketing-flavored description with a
// structured technical analysis. It samples N candidates concurrently,
// scores each on completeness, and keeps the highest scorer. Generation
// failures only cost a candidate; when every candidate fails the original
// description is kept and the item proceeds, so this stage never rejects.
type Describe struct {
	cfg    *config.Config
	client Completer
	logger *slog.Logger
}

func NewDescribe(cfg *config.Config, client Completer, logger *slog.Logger) *Describe {
	return &Describe{cfg: cfg, client: client, logger: logging.NewComponentLogger(logger, "describe")}
}

// analysis is the structured description template. Fields mirror the output
// schema the downstream training pipeline expects.
type analysis struct {
	Title                      string   `json:"title"`
	Abstract                   string   `json:"abstract"`
	MainAlgorithms             string   `json:"main_algorithms"`
	KeyConcepts                []string `json:"key_concepts"`
	MathematicalModels         []string `json:"mathematical_models"`
	ImplementationRequirements []string `json:"implementation_requirements"`
	EvaluationMetrics          []string `json:"evaluation_metrics"`
	HighLevelLogic             string   `json:"high_level_logic"`
	ComplexityAnalysis         string   `json:"complexity_analysis"`
	Novelty                    string   `json:"novelty"`
}

type candidate struct {
	analysis *analysis
	score    float64
}

func (d *Describe) Execute(ctx context.Context, item *pipeline.Item) error {
	n := d.cfg.Processing.BestOfN
	if n < 1 {
		n = 1
	}
	workers := d.cfg.Processing.DescribeWorkers
	if workers < 1 {
		workers = 1
	}

	candidates := make([]candidate, 0, n)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			a, err := d.generate(gctx, item)
			if err != nil {
				d.logger.Debug("candidate generation failed",
					logging.String(logging.FieldItemID, item.ID()),
					logging.Error(err))
				return nil
			}
			mu.Lock()
			candidates = append(candidates, candidate{analysis: a, score: scoreAnalysis(a)})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	best := pickBest(candidates)
	if best == nil {
		item.Description = item.Raw.String("description")
		d.logger.Warn("all description candidates failed, keeping original",
			logging.String(logging.FieldItemID, item.ID()))
		return nil
	}

	encoded, err := json.MarshalIndent(best.analysis, "", "  ")
	if err != nil {
		item.Description = item.Raw.String("description")
		return nil
	}
	item.Description = string(encoded)
	d.logger.Debug("selected description candidate",
		logging.String(logging.FieldItemID, item.ID()),
		logging.Int("candidates", len(candidates)),
		logging.Float64("score", best.score))
	return nil
}

func (d *Describe) generate(ctx context.Context, item *pipeline.Item) (*analysis, error) {
	content, err := d.client.Complete(ctx, llm.Request{
		System:      describeSystemPrompt,
		User:        describeUserPrompt(item.Raw.Name(), item.Raw.String("description"), item.Converted),
		Temperature: 0.8,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, err
	}
	var a analysis
	if err := llm.DecodeJSON(content, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func pickBest(candidates []candidate) *candidate {
	var best *candidate
	for i := range candidates {
		if best == nil || candidates[i].score > best.score {
			best = &candidates[i]
		}
	}
	return best
}

// scoreAnalysis weighs each template field by how much it contributes to a
// useful training sample. Longer prose fields and fuller lists score higher;
// sparse or empty analyses sink toward zero.
func scoreAnalysis(a *analysis) float64 {
	score := 0.0
	score += proseScore(a.Title, 5, 5)
	score += proseScore(a.Abstract, 15, 20)
	score += proseScore(a.MainAlgorithms, 15, 30)
	score += listScore(a.KeyConcepts, 10)
	score += listScore(a.MathematicalModels, 10)
	score += listScore(a.ImplementationRequirements, 10)
	score += listScore(a.EvaluationMetrics, 5)
	score += proseScore(a.HighLevelLogic, 15, 20)
	score += proseScore(a.ComplexityAnalysis, 5, 20)
	score += proseScore(a.Novelty, 10, 20)

	if len(a.KeyConcepts) >= 5 {
		score += 5
	}
	if len(a.KeyConcepts) >= 10 {
		score += 5
	}
	if len(a.MathematicalModels) >= 3 {
		score += 5
	}
	return score
}

func proseScore(text string, weight float64, minLen int) float64 {
	if len(text) > minLen {
		return weight
	}
	return 0
}

func listScore(items []string, weight float64) float64 {
	switch {
	case len(items) >= 3:
		return weight
	case len(items) >= 1:
		return weight / 2
	default:
		return 0
	}
}
