package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"refinery/internal/batch"
	"refinery/internal/checkpoint"
	"refinery/internal/ledger"
	"refinery/internal/pipeline"
)

const stageCurate pipeline.StageID = "curate"

// curateHandler accepts every record except those flagged "reject" and
// panics on those flagged "panic".
func curateHandler(ctx context.Context, item *pipeline.Item) error {
	if item.Raw.String("panic") == "yes" {
		panic("poisoned record")
	}
	if item.Raw.String("reject") == "yes" {
		item.RejectReason = "flagged by fixture"
	}
	item.Converted = "class S: pass"
	item.Description = item.Raw.String("description")
	return nil
}

func testExecutor(t *testing.T) *pipeline.Executor {
	t.Helper()
	handlers := map[pipeline.StageID]pipeline.Handler{
		stageCurate: pipeline.HandlerFunc(curateHandler),
	}
	decisions := map[pipeline.StageID]pipeline.Decision{
		stageCurate: func(item *pipeline.Item) pipeline.StageID {
			if item.RejectReason != "" {
				return pipeline.Reject
			}
			return pipeline.Accept
		},
	}
	exec, err := pipeline.NewExecutor(stageCurate, handlers, decisions, pipeline.RetryPolicy{}, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return exec
}

func writeInput(t *testing.T, dir string, records []map[string]string) string {
	t.Helper()
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "input.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func fixtureRecords(n int, rejected ...int) []map[string]string {
	isRejected := make(map[int]bool)
	for _, i := range rejected {
		isRejected[i] = true
	}
	records := make([]map[string]string, n)
	for i := range records {
		records[i] = map[string]string{
			"id":          fmt.Sprintf("item-%02d", i),
			"name":        fmt.Sprintf("Strategy %02d", i),
			"description": "uses VWAP crossings with volume confirmation",
		}
		if isRejected[i] {
			records[i]["reject"] = "yes"
		}
	}
	return records
}

func newTestProcessor(t *testing.T, dir string, batchSize int) (*Processor, *checkpoint.Store, *ledger.Store) {
	t.Helper()
	checkpoints := checkpoint.NewStore(filepath.Join(dir, "checkpoint.json"), nil)
	batches := batch.NewWriter(filepath.Join(dir, "batches"), batchSize, nil)
	outcomes, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { outcomes.Close() })
	return New(testExecutor(t), checkpoints, batches, outcomes, nil), checkpoints, outcomes
}

func countArtifacts(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRunProcessesAllRecords(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, fixtureRecords(12, 2, 7))
	proc, checkpoints, outcomes := newTestProcessor(t, dir, 5)

	summary, err := proc.Run(context.Background(), Options{InputPath: input, RunID: "run-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 12 || summary.Accepted != 10 || summary.Rejected != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.BatchesWritten != 2 {
		t.Fatalf("batches = %d", summary.BatchesWritten)
	}

	record, err := checkpoints.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if record.LastProcessedIndex != 11 {
		t.Fatalf("index = %d", record.LastProcessedIndex)
	}
	if record.ProcessedCount != 12 || record.RejectedCount != 2 {
		t.Fatalf("counts = %d/%d", record.ProcessedCount, record.RejectedCount)
	}
	if record.Stats.RejectionsByStage[string(stageCurate)] != 2 {
		t.Fatalf("stats = %+v", record.Stats)
	}

	breakdown, err := outcomes.RejectionBreakdown(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("RejectionBreakdown: %v", err)
	}
	if breakdown[string(stageCurate)] != 2 {
		t.Fatalf("ledger breakdown = %v", breakdown)
	}

	if names := countArtifacts(t, filepath.Join(dir, "batches")); len(names) != 2 {
		t.Fatalf("artifacts = %v", names)
	}
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, fixtureRecords(10))
	proc, checkpoints, _ := newTestProcessor(t, dir, 3)

	first, err := proc.Run(context.Background(), Options{InputPath: input, RunID: "run-1", Samples: 4})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Processed != 4 {
		t.Fatalf("first processed = %d", first.Processed)
	}

	// A new processor simulates a fresh process resuming the same workspace.
	proc2 := New(testExecutor(t), checkpoints, batch.NewWriter(filepath.Join(dir, "batches"), 3, nil), nil, nil)
	second, err := proc2.Run(context.Background(), Options{InputPath: input, RunID: "run-2"})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.StartIndex != 4 {
		t.Fatalf("resume index = %d", second.StartIndex)
	}
	if second.Processed != 6 {
		t.Fatalf("second processed = %d", second.Processed)
	}

	record, err := checkpoints.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if record.LastProcessedIndex != 9 || record.ProcessedCount != 10 {
		t.Fatalf("checkpoint = %+v", record)
	}
}

func TestRunFreshDiscardsCheckpoint(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, fixtureRecords(4))
	proc, checkpoints, _ := newTestProcessor(t, dir, 2)

	if _, err := proc.Run(context.Background(), Options{InputPath: input, RunID: "run-1"}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	summary, err := proc.Run(context.Background(), Options{InputPath: input, RunID: "run-2", Fresh: true})
	if err != nil {
		t.Fatalf("fresh Run: %v", err)
	}
	if summary.StartIndex != 0 || summary.Processed != 4 {
		t.Fatalf("summary = %+v", summary)
	}
	if _, err := os.Stat(checkpoints.Path() + ".bak"); err != nil {
		t.Fatalf("backup missing: %v", err)
	}
}

func TestRunIsolatesPanickingItems(t *testing.T) {
	dir := t.TempDir()
	records := fixtureRecords(3)
	records[1]["panic"] = "yes"
	input := writeInput(t, dir, records)
	proc, _, _ := newTestProcessor(t, dir, 10)

	summary, err := proc.Run(context.Background(), Options{InputPath: input, RunID: "run-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 3 || summary.Accepted != 2 || summary.Rejected != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunContinuesPastBatchWriteFailures(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, fixtureRecords(5))
	// A regular file where the batch directory belongs makes every flush
	// fail. Mid-run failures must not stop the remaining items.
	if err := os.WriteFile(filepath.Join(dir, "batches"), []byte("occupied"), 0o644); err != nil {
		t.Fatal(err)
	}
	proc, checkpoints, _ := newTestProcessor(t, dir, 2)

	summary, err := proc.Run(context.Background(), Options{InputPath: input, RunID: "run-1"})
	if err == nil {
		t.Fatal("expected final flush error")
	}
	if summary == nil {
		t.Fatal("summary missing")
	}
	if summary.Processed != 5 || summary.Accepted != 5 {
		t.Fatalf("summary = %+v", summary)
	}

	record, loadErr := checkpoints.Load()
	if loadErr != nil {
		t.Fatalf("Load: %v", loadErr)
	}
	if record.LastProcessedIndex != 4 || record.ProcessedCount != 5 {
		t.Fatalf("checkpoint = %+v", record)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, fixtureRecords(5))
	proc, checkpoints, _ := newTestProcessor(t, dir, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := proc.Run(ctx, Options{InputPath: input, RunID: "run-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Interrupted || summary.Processed != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	record, err := checkpoints.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if record.LastProcessedIndex != -1 {
		t.Fatalf("index = %d", record.LastProcessedIndex)
	}
}

func TestRunNoItemsLeftIsHarmless(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, fixtureRecords(2))
	proc, _, _ := newTestProcessor(t, dir, 10)

	if _, err := proc.Run(context.Background(), Options{InputPath: input, RunID: "run-1"}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	summary, err := proc.Run(context.Background(), Options{InputPath: input, RunID: "run-2"})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Processed != 0 || summary.StartIndex != 2 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestLoadInputSamples(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, fixtureRecords(8))

	records, err := LoadInput(input, 3)
	if err != nil {
		t.Fatalf("LoadInput: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d", len(records))
	}

	all, err := LoadInput(input, 0)
	if err != nil {
		t.Fatalf("LoadInput: %v", err)
	}
	if len(all) != 8 {
		t.Fatalf("len = %d", len(all))
	}

	if _, err := LoadInput(filepath.Join(dir, "missing.json"), 0); err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestRenderSummary(t *testing.T) {
	summary := &Summary{
		RunID:          "run-1",
		TotalInput:     12,
		Processed:      12,
		Accepted:       10,
		Rejected:       2,
		BatchesWritten: 2,
		Rejections:     map[string]int{"filter": 1, "classify": 1},
	}
	var sb strings.Builder
	RenderSummary(&sb, summary, true)
	out := sb.String()
	for _, want := range []string{"run-1", "Accepted", "10", "83.3%", "filter", "classify"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}
