// Package errors provides structured error types for the FFI bridge.
//
// Every error carries a Phase (where in processing it occurred) and a Kind
// (what category of failure), plus an optional path locating the failing
// argument or binding. Construction-time failures (signature or binding
// inconsistency, return-buffer mismatches) and call-time failures (scratch
// exhaustion, scope violations) share one shape so callers can match with
// errors.Is on (Phase, Kind) pairs.
package errors
