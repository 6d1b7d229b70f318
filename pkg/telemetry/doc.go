// Package telemetry provides logging, metrics and tracing for wavectl.
//
// The metrics collector implements the engine's Instruments interface so
// the scheduler stays free of prometheus types; the tracer does the same
// for run, wave and component spans. Everything here is optional: the
// engine runs identically with the no-op sinks.
package telemetry
