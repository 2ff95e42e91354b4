package ledger

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	outcomes := []Outcome{
		{RunID: "run-1", ItemID: "a", ItemIndex: 0, ItemName: "first", Status: "accepted", Attempts: 1},
		{RunID: "run-1", ItemID: "b", ItemIndex: 1, Status: "rejected", RejectStage: "filter", RejectReason: "too short"},
		{RunID: "run-2", ItemID: "c", ItemIndex: 0, Status: "accepted", Attempts: 2},
	}
	for _, o := range outcomes {
		if err := store.Record(ctx, o); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	all, err := store.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d", len(all))
	}
	if all[0].ItemID != "c" {
		t.Fatalf("newest first violated: %+v", all[0])
	}

	run1, err := store.Recent(ctx, "run-1", 10)
	if err != nil {
		t.Fatalf("Recent run-1: %v", err)
	}
	if len(run1) != 2 {
		t.Fatalf("run-1 len = %d", len(run1))
	}
	if run1[0].ItemID != "b" || run1[0].RejectReason != "too short" {
		t.Fatalf("row = %+v", run1[0])
	}

	limited, err := store.Recent(ctx, "", 1)
	if err != nil {
		t.Fatalf("Recent limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit ignored: %d rows", len(limited))
	}
}

func TestRejectionBreakdown(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rows := []Outcome{
		{RunID: "run-1", ItemID: "a", Status: "rejected", RejectStage: "classify"},
		{RunID: "run-1", ItemID: "b", Status: "rejected", RejectStage: "filter"},
		{RunID: "run-1", ItemID: "c", Status: "rejected", RejectStage: "filter"},
		{RunID: "run-1", ItemID: "d", Status: "accepted"},
		{RunID: "run-2", ItemID: "e", Status: "rejected", RejectStage: "filter"},
	}
	for _, o := range rows {
		if err := store.Record(ctx, o); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	breakdown, err := store.RejectionBreakdown(ctx, "run-1")
	if err != nil {
		t.Fatalf("RejectionBreakdown: %v", err)
	}
	if breakdown["filter"] != 2 || breakdown["classify"] != 1 {
		t.Fatalf("breakdown = %v", breakdown)
	}
	if _, ok := breakdown[""]; ok {
		t.Fatal("accepted rows leaked into breakdown")
	}
}

func TestReopenPreservesSchemaAndRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Record(context.Background(), Outcome{RunID: "r", ItemID: "a", Status: "accepted"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	rows, err := reopened.Recent(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 1 || rows[0].ItemID != "a" {
		t.Fatalf("rows = %+v", rows)
	}
}
