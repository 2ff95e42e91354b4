// Package config loads, validates, and normalizes refinery's TOML
// configuration. Callers receive a fully expanded Config; no other package
// reads configuration files or environment fallbacks directly.
package config
