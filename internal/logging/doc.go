// Package logging builds slog loggers with refinery's console and JSON
// handlers and carries standardized item/stage/run attributes through
// context so every component logs with consistent field names.
package logging
