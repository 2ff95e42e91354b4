// Package services defines the shared error taxonomy for pipeline stages and
// the context keys used to correlate logs across one item's traversal.
package services
