// Package logging provides structured logging helpers built on log/slog.
//
// It defines the canonical attribute keys used across the codebase so that
// log output stays queryable (operation, entity, session, tool, status), a
// small Logger interface for code that should not depend on slog directly,
// and sanitization helpers for values that must never appear in logs
// verbatim (bearer tokens, client secrets).
package logging
