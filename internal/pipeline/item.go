package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one raw scraped artifact as decoded from the input file. Field
// names follow the scraper's schema; stages read the fields they need and
// tolerate absent ones.
type Record map[string]any

// String returns the named field coerced to a string, or "" when the field
// is absent or has no sensible textual form. Numeric values are coerced so
// that datasets with numeric identifiers still export.
func (r Record) String(key string) string {
	if r == nil {
		return ""
	}
	v, ok := r[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case fmt.Stringer:
		return s.String()
	default:
		return ""
	}
}

// ID returns the record's unique identifier.
func (r Record) ID() string { return r.String("id") }

// Name returns the record's display name.
func (r Record) Name() string { return r.String("name") }

// Status tracks an item's position in its lifecycle. Non-terminal items
// carry either StatusPending or a per-stage done marker; terminal items are
// exactly one of accepted or rejected.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// StageDone returns the status marking completion of the given stage.
func StageDone(id StageID) Status {
	return Status(string(id) + "_done")
}

// Item is the mutable context threaded through every stage an artifact
// visits. Stage outputs live in dedicated fields rather than a generic bag
// so that readers can see at a glance what each stage contributes.
type Item struct {
	Index int
	Raw   Record

	// Stage outputs, populated as the item advances.
	Classification string
	QualityScore   int
	CleanSource    string
	Converted      string
	Description    string
	Symbols        []string
	Reasoning      string

	// Retry bookkeeping. Attempts counts producer invocations; Feedback
	// carries the most recent checker or producer complaint into the next
	// producer prompt.
	Attempts int
	Feedback string

	Status       Status
	RejectStage  StageID
	RejectReason string
}

// NewItem wraps a raw record for traversal.
func NewItem(index int, raw Record) *Item {
	return &Item{Index: index, Raw: raw, Status: StatusPending}
}

// ID returns the underlying record's identifier.
func (i *Item) ID() string { return i.Raw.ID() }

// Terminal reports whether the item has reached accepted or rejected.
func (i *Item) Terminal() bool {
	return i.Status == StatusAccepted || i.Status == StatusRejected
}

// Accepted reports whether the item completed the full workflow.
func (i *Item) Accepted() bool { return i.Status == StatusAccepted }

// Rejected reports whether the item was dropped.
func (i *Item) Rejected() bool { return i.Status == StatusRejected }

// MarkAccepted moves the item to its accepted terminal state. Once terminal
// the item never changes state again.
func (i *Item) MarkAccepted() {
	if i.Terminal() {
		return
	}
	i.Status = StatusAccepted
}

// MarkRejected moves the item to its rejected terminal state and records
// which stage dropped it and why.
func (i *Item) MarkRejected(stage StageID, reason string) {
	if i.Terminal() {
		return
	}
	i.Status = StatusRejected
	i.RejectStage = stage
	i.RejectReason = reason
}

// Output is the fixed-column projection of an accepted item, in the order
// the batch writer emits them.
type Output struct {
	ID              string
	Name            string
	Description     string
	Reasoning       string
	CreatedAt       string
	SourceCode      string
	RelevantSymbols string
}

// Project flattens an accepted item into its output row. The second return
// is false when the item is not accepted or lacks an identifier, in which
// case the row must not be written.
func (i *Item) Project() (Output, bool) {
	if !i.Accepted() || i.ID() == "" {
		return Output{}, false
	}
	created := i.Raw.String("created_at")
	if created == "" {
		created = i.Raw.String("preview_created_at")
	}
	if created == "" {
		created = time.Now().UTC().Format(time.RFC3339)
	}
	return Output{
		ID:              i.ID(),
		Name:            i.Raw.Name(),
		Description:     i.Description,
		Reasoning:       i.Reasoning,
		CreatedAt:       created,
		SourceCode:      i.Converted,
		RelevantSymbols: strings.Join(i.Symbols, ", "),
	}, true
}
