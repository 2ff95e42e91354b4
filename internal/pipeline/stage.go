package pipeline

import "context"

// StageID names one stage in the workflow table. Stage identifiers come from
// a closed set declared alongside the stage implementations; the executor
// refuses to construct over a table that routes to an identifier it does not
// know.
type StageID string

// Pseudo targets recognized by transition decisions. They terminate the
// item's traversal rather than naming another stage.
const (
	Accept StageID = "accept"
	Reject StageID = "reject"
)

// Handler executes one stage against an item. Implementations mutate the
// item context with their outputs and return an error to signal that the
// item cannot proceed through this stage. Errors classified as validation
// failures participate in the retry loop when the stage is wrapped by a
// retry policy; everything else rejects the item.
type Handler interface {
	Execute(ctx context.Context, item *Item) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, item *Item) error

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, item *Item) error {
	return f(ctx, item)
}

// Decision selects the next stage after a successful execution. Decisions
// must be total: any item state maps to another stage, Accept, or Reject.
type Decision func(item *Item) StageID

// RetryPolicy couples a producer stage with the checker that evaluates its
// output. When either fails with retryable feedback the executor routes back
// to the producer until MaxAttempts invocations have been spent, at which
// point the item is rejected. The attempt counter is owned by the executor
// and incremented once per producer invocation.
type RetryPolicy struct {
	Producer    StageID
	Checker     StageID
	MaxAttempts int
}

func (p RetryPolicy) enabled() bool {
	return p.Producer != "" && p.MaxAttempts > 0
}

func (p RetryPolicy) covers(id StageID) bool {
	return p.enabled() && (id == p.Producer || id == p.Checker)
}
