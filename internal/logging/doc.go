// Package logging configures log/slog for envmatrix and provides attribute
// helpers so every package logs with the same key names.
//
// Logs go to stderr. Command output of the environments themselves is
// streamed separately and never passes through the logger.
package logging
