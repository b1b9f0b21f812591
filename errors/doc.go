// Package errors provides structured error types for the protocol bridge.
//
// Errors carry a Phase (where in processing the failure occurred) and a Kind
// (what went wrong) so callers can match on them with errors.Is without
// parsing message text. A malformed wire frame surfaces as a decode-phase
// error rather than an unrelated runtime failure.
package errors
