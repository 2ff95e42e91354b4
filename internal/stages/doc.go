// Package stages implements the concrete curation stages and wires them into
// a pipeline stage table. The flow classifies raw Pine Script artifacts,
// filters thin descriptions, scrubs visualization noise, converts the script
// to a Python backend with a bounded repair loop against the validator, then
// augments the surviving items with an enhanced description, inferred
// symbols, and a reasoning field.
package stages
