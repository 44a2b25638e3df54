// Package listener provides lifecycle listeners that the scheduler notifies
// before a run starts and after it has drained.
//
// Log writes one structured line at each end of a run. History persists run
// summaries and their outputs to SQLite. Tracing wraps each run in an
// OpenTelemetry span.
package listener
