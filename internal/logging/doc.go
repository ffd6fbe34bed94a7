// Package logging builds the slog loggers used across parcelwatch.
//
// Two output formats are supported: a compact console format for
// interactive use and JSON for log files and machine consumption. The
// logger writes to stdout and, when a log directory is configured, to
// parcelwatch.log inside it.
package logging
