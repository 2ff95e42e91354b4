// Package pipeline implements the per-item workflow engine: a table of named
// stages with conditional transitions, a bounded retry loop between a
// producer stage and its checker, and the item context that records stage
// outputs until the item reaches a terminal state.
//
// The engine is deliberately ignorant of what any stage computes. Stages
// receive the item context, write their outputs into it, and report failure
// through an error; the executor converts failures into rejections or retry
// transitions and guarantees that no stage error escapes an item's traversal.
package pipeline
