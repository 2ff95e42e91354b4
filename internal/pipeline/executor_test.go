package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"refinery/internal/services"
)

const (
	stageProduce StageID = "produce"
	stageCheck   StageID = "check"
	stageFinish  StageID = "finish"
)

func linearTable(t *testing.T, produce, check, finish Handler) (map[StageID]Handler, map[StageID]Decision) {
	t.Helper()
	handlers := map[StageID]Handler{
		stageProduce: produce,
		stageCheck:   check,
		stageFinish:  finish,
	}
	decisions := map[StageID]Decision{
		stageProduce: func(*Item) StageID { return stageCheck },
		stageCheck:   func(*Item) StageID { return stageFinish },
		stageFinish:  func(*Item) StageID { return Accept },
	}
	return handlers, decisions
}

func noop(ctx context.Context, item *Item) error { return nil }

func TestExecutorAcceptsThroughAllStages(t *testing.T) {
	handlers, decisions := linearTable(t, HandlerFunc(noop), HandlerFunc(noop), HandlerFunc(noop))
	exec, err := NewExecutor(stageProduce, handlers, decisions, RetryPolicy{}, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	item := NewItem(0, Record{"id": "a"})
	if err := exec.Run(context.Background(), item); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !item.Accepted() {
		t.Fatalf("status = %s, want accepted", item.Status)
	}
	if item.Rejected() {
		t.Fatal("item is both accepted and rejected")
	}
}

func TestExecutorRetriesCheckerFailures(t *testing.T) {
	producerCalls := 0
	produce := HandlerFunc(func(ctx context.Context, item *Item) error {
		producerCalls++
		return nil
	})
	check := HandlerFunc(func(ctx context.Context, item *Item) error {
		if item.Attempts < 3 {
			return services.Wrap(services.ErrValidation, string(stageCheck), "check", "missing strategy class", nil)
		}
		return nil
	})

	handlers, decisions := linearTable(t, produce, check, HandlerFunc(noop))
	retry := RetryPolicy{Producer: stageProduce, Checker: stageCheck, MaxAttempts: 5}
	exec, err := NewExecutor(stageProduce, handlers, decisions, retry, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	item := NewItem(0, Record{"id": "a"})
	if err := exec.Run(context.Background(), item); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !item.Accepted() {
		t.Fatalf("status = %s, want accepted", item.Status)
	}
	if producerCalls != 3 {
		t.Fatalf("producer calls = %d, want 3", producerCalls)
	}
	if item.Feedback == "" {
		t.Fatal("checker feedback was not recorded")
	}
}

func TestExecutorRejectsAfterMaxAttempts(t *testing.T) {
	producerCalls := 0
	produce := HandlerFunc(func(ctx context.Context, item *Item) error {
		producerCalls++
		return nil
	})
	check := HandlerFunc(func(ctx context.Context, item *Item) error {
		return services.Wrap(services.ErrValidation, string(stageCheck), "check", "still broken", nil)
	})

	handlers, decisions := linearTable(t, produce, check, HandlerFunc(noop))
	retry := RetryPolicy{Producer: stageProduce, Checker: stageCheck, MaxAttempts: 5}
	exec, err := NewExecutor(stageProduce, handlers, decisions, retry, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	item := NewItem(0, Record{"id": "a"})
	if err := exec.Run(context.Background(), item); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !item.Rejected() {
		t.Fatalf("status = %s, want rejected", item.Status)
	}
	if producerCalls != 5 {
		t.Fatalf("producer calls = %d, want exactly the attempt budget", producerCalls)
	}
	if got := item.RejectReason; got != "max attempts exceeded: still broken" {
		t.Fatalf("reason = %q", got)
	}
}

func TestExecutorProducerFailureConsumesAttempt(t *testing.T) {
	producerCalls := 0
	produce := HandlerFunc(func(ctx context.Context, item *Item) error {
		producerCalls++
		return services.Wrap(services.ErrExternalService, string(stageProduce), "produce", "model unavailable", nil)
	})

	handlers, decisions := linearTable(t, produce, HandlerFunc(noop), HandlerFunc(noop))
	retry := RetryPolicy{Producer: stageProduce, Checker: stageCheck, MaxAttempts: 3}
	exec, err := NewExecutor(stageProduce, handlers, decisions, retry, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	item := NewItem(0, Record{"id": "a"})
	if err := exec.Run(context.Background(), item); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !item.Rejected() {
		t.Fatalf("status = %s, want rejected", item.Status)
	}
	if producerCalls != 3 {
		t.Fatalf("producer calls = %d, want 3", producerCalls)
	}
}

func TestExecutorRejectsOnUnretriedStageFailure(t *testing.T) {
	finish := HandlerFunc(func(ctx context.Context, item *Item) error {
		return errors.New("boom")
	})
	handlers, decisions := linearTable(t, HandlerFunc(noop), HandlerFunc(noop), finish)
	exec, err := NewExecutor(stageProduce, handlers, decisions, RetryPolicy{}, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	item := NewItem(0, Record{"id": "a"})
	if err := exec.Run(context.Background(), item); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !item.Rejected() {
		t.Fatalf("status = %s, want rejected", item.Status)
	}
	if item.RejectStage != stageFinish {
		t.Fatalf("reject stage = %s, want %s", item.RejectStage, stageFinish)
	}
}

func TestExecutorDecisionRejectUsesStageReason(t *testing.T) {
	handlers := map[StageID]Handler{
		stageProduce: HandlerFunc(func(ctx context.Context, item *Item) error {
			item.RejectReason = "quality score below threshold"
			return nil
		}),
	}
	decisions := map[StageID]Decision{
		stageProduce: func(*Item) StageID { return Reject },
	}
	exec, err := NewExecutor(stageProduce, handlers, decisions, RetryPolicy{}, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	item := NewItem(0, Record{"id": "a"})
	if err := exec.Run(context.Background(), item); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !item.Rejected() || item.RejectReason != "quality score below threshold" {
		t.Fatalf("status = %s reason = %q", item.Status, item.RejectReason)
	}
}

func TestExecutorRecoversFromStagePanic(t *testing.T) {
	handlers := map[StageID]Handler{
		stageProduce: HandlerFunc(func(ctx context.Context, item *Item) error {
			panic("nil map write")
		}),
	}
	decisions := map[StageID]Decision{
		stageProduce: func(*Item) StageID { return Accept },
	}
	exec, err := NewExecutor(stageProduce, handlers, decisions, RetryPolicy{}, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	item := NewItem(0, Record{"id": "a"})
	if err := exec.Run(context.Background(), item); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !item.Rejected() {
		t.Fatalf("status = %s, want rejected after panic", item.Status)
	}
}

func TestExecutorValidatesStageTable(t *testing.T) {
	handlers := map[StageID]Handler{stageProduce: HandlerFunc(noop)}
	decisions := map[StageID]Decision{}
	if _, err := NewExecutor(stageProduce, handlers, decisions, RetryPolicy{}, nil); err == nil {
		t.Fatal("expected error for stage without decision")
	}

	decisions = map[StageID]Decision{
		stageProduce: func(*Item) StageID { return Accept },
		stageCheck:   func(*Item) StageID { return Accept },
	}
	if _, err := NewExecutor(stageProduce, handlers, decisions, RetryPolicy{}, nil); err == nil {
		t.Fatal("expected error for decision without handler")
	}

	decisions = map[StageID]Decision{stageProduce: func(*Item) StageID { return Accept }}
	bad := RetryPolicy{Producer: "missing", MaxAttempts: 2}
	if _, err := NewExecutor(stageProduce, handlers, decisions, bad, nil); err == nil {
		t.Fatal("expected error for retry producer outside table")
	}
}

func TestExecutorTransitionLimitBreaksCycles(t *testing.T) {
	handlers := map[StageID]Handler{
		stageProduce: HandlerFunc(noop),
		stageCheck:   HandlerFunc(noop),
	}
	decisions := map[StageID]Decision{
		stageProduce: func(*Item) StageID { return stageCheck },
		stageCheck:   func(*Item) StageID { return stageProduce },
	}
	exec, err := NewExecutor(stageProduce, handlers, decisions, RetryPolicy{}, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	item := NewItem(0, Record{"id": "a"})
	if err := exec.Run(context.Background(), item); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !item.Rejected() {
		t.Fatalf("status = %s, want rejected for decision cycle", item.Status)
	}
}

func TestItemTerminalStateIsSticky(t *testing.T) {
	item := NewItem(0, Record{"id": "a"})
	item.MarkRejected(stageCheck, "bad input")
	item.MarkAccepted()
	if !item.Rejected() {
		t.Fatalf("status = %s, want rejected to stick", item.Status)
	}
	item.MarkRejected(stageFinish, "other")
	if item.RejectStage != stageCheck || item.RejectReason != "bad input" {
		t.Fatalf("rejection overwritten: stage=%s reason=%q", item.RejectStage, item.RejectReason)
	}
}

func TestRecordStringCoercesNumericFields(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "abc", "abc"},
		{"float without fraction", float64(9007199), "9007199"},
		{"float with fraction", 1.5, "1.5"},
		{"json number", json.Number("42"), "42"},
		{"int", 7, "7"},
		{"int64", int64(123456789012), "123456789012"},
		{"bool", true, ""},
		{"nested", map[string]any{"x": 1}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Record{"id": tt.value}
			if got := r.String("id"); got != tt.want {
				t.Fatalf("String(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestProjectNumericIDExports(t *testing.T) {
	// JSON decodes numeric identifiers as float64; the projection must still
	// carry them instead of dropping the item.
	item := NewItem(0, Record{"id": float64(31337), "name": "Numeric"})
	item.Converted = "class S: pass"
	item.MarkAccepted()
	out, ok := item.Project()
	if !ok {
		t.Fatal("item with numeric id did not project")
	}
	if out.ID != "31337" {
		t.Fatalf("id = %q", out.ID)
	}
}

func TestProjectRequiresAcceptance(t *testing.T) {
	item := NewItem(0, Record{"id": "a", "name": "Strategy"})
	item.Converted = "class S: pass"
	if _, ok := item.Project(); ok {
		t.Fatal("pending item projected")
	}
	item.MarkAccepted()
	out, ok := item.Project()
	if !ok {
		t.Fatal("accepted item did not project")
	}
	if out.ID != "a" || out.Name != "Strategy" || out.SourceCode != "class S: pass" {
		t.Fatalf("unexpected projection: %+v", out)
	}

	anon := NewItem(1, Record{"name": "no id"})
	anon.MarkAccepted()
	if _, ok := anon.Project(); ok {
		t.Fatal("item without id projected")
	}
}
