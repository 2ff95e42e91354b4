package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"refinery/internal/logging"
	"refinery/internal/services"
)

// Executor drives one item at a time through the stage table. It owns the
// transition loop, the retry counter, and the guarantee that every traversal
// ends in exactly one terminal state.
type Executor struct {
	entry     StageID
	handlers  map[StageID]Handler
	decisions map[StageID]Decision
	retry     RetryPolicy
	logger    *slog.Logger
}

// NewExecutor validates the stage table and returns an executor over it.
// Every handler needs a decision, every decision a handler, and the retry
// policy may only reference stages present in the table.
func NewExecutor(entry StageID, handlers map[StageID]Handler, decisions map[StageID]Decision, retry RetryPolicy, logger *slog.Logger) (*Executor, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if _, ok := handlers[entry]; !ok {
		return nil, fmt.Errorf("pipeline: entry stage %q has no handler", entry)
	}
	for id := range handlers {
		if _, ok := decisions[id]; !ok {
			return nil, fmt.Errorf("pipeline: stage %q has no transition decision", id)
		}
	}
	for id := range decisions {
		if _, ok := handlers[id]; !ok {
			return nil, fmt.Errorf("pipeline: decision for unknown stage %q", id)
		}
	}
	if retry.enabled() {
		if _, ok := handlers[retry.Producer]; !ok {
			return nil, fmt.Errorf("pipeline: retry producer %q not in stage table", retry.Producer)
		}
		if retry.Checker != "" {
			if _, ok := handlers[retry.Checker]; !ok {
				return nil, fmt.Errorf("pipeline: retry checker %q not in stage table", retry.Checker)
			}
		}
	}
	return &Executor{
		entry:     entry,
		handlers:  handlers,
		decisions: decisions,
		retry:     retry,
		logger:    logger,
	}, nil
}

// Run traverses the item from the entry stage to a terminal state. Stage
// failures never escape: they become rejections or retry transitions, and a
// panicking stage rejects the item it was processing. Context cancellation
// rejects the in-flight item and returns the context's error so the caller
// can stop the run.
func (e *Executor) Run(ctx context.Context, item *Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("stage panic",
				logging.String(logging.FieldItemID, item.ID()),
				logging.Any("panic", r))
			item.MarkRejected(Reject, fmt.Sprintf("internal error: %v", r))
		}
	}()

	current := e.entry
	// Upper bound on transitions through the table. Any well-formed
	// traversal visits each stage once plus the retry loop; exceeding this
	// means a decision cycle and the item is rejected rather than spun.
	limit := len(e.handlers) + 2*max(e.retry.MaxAttempts, 1) + 4

	for steps := 0; !item.Terminal(); steps++ {
		if steps >= limit {
			item.MarkRejected(current, "stage transition limit exceeded")
			return nil
		}
		if ctx.Err() != nil {
			item.MarkRejected(current, "run interrupted")
			return ctx.Err()
		}

		handler, ok := e.handlers[current]
		if !ok {
			item.MarkRejected(current, fmt.Sprintf("no handler for stage %q", current))
			return nil
		}

		if e.retry.enabled() && current == e.retry.Producer {
			if item.Attempts >= e.retry.MaxAttempts {
				item.MarkRejected(current, maxAttemptsReason(item))
				continue
			}
			item.Attempts++
		}

		stageCtx := services.WithStage(ctx, string(current))
		execErr := handler.Execute(stageCtx, item)
		if execErr != nil {
			current = e.resolveFailure(current, item, execErr)
			continue
		}
		item.Status = StageDone(current)
		current = e.decide(current, item)
	}
	return nil
}

// resolveFailure routes a failed stage: covered stages feed the retry loop,
// everything else rejects the item with the failure message. Missing input
// and configuration failures never retry since no reattempt can heal them.
func (e *Executor) resolveFailure(stage StageID, item *Item, err error) StageID {
	msg := services.Message(err)
	if e.retry.covers(stage) && !errors.Is(err, services.ErrMissingInput) && !errors.Is(err, services.ErrConfiguration) {
		item.Feedback = msg
		if item.Attempts >= e.retry.MaxAttempts {
			item.MarkRejected(stage, maxAttemptsReason(item))
			return stage
		}
		e.logger.Debug("retrying after stage failure",
			logging.String(logging.FieldItemID, item.ID()),
			logging.String(logging.FieldStage, string(stage)),
			logging.Int("attempts", item.Attempts),
			logging.String("feedback", msg))
		return e.retry.Producer
	}
	item.MarkRejected(stage, msg)
	return stage
}

// decide applies the stage's transition and maps pseudo targets to terminal
// states. An unknown target rejects the item, keeping the table total.
func (e *Executor) decide(stage StageID, item *Item) StageID {
	next := e.decisions[stage](item)
	switch next {
	case Accept:
		item.MarkAccepted()
	case Reject:
		if item.RejectReason == "" {
			item.MarkRejected(stage, "rejected by "+string(stage))
		} else {
			item.MarkRejected(stage, item.RejectReason)
		}
	default:
		if _, ok := e.handlers[next]; !ok {
			item.MarkRejected(stage, fmt.Sprintf("transition to unknown stage %q", next))
		}
	}
	return next
}

func maxAttemptsReason(item *Item) string {
	if item.Feedback != "" {
		return "max attempts exceeded: " + item.Feedback
	}
	return "max attempts exceeded"
}
