// Package engine owns the compiled database server: it instantiates the
// engine binary with wazero, binds the two stream callbacks the engine
// imports, and exposes the single "serve one client interaction" entry point.
//
// Each Handle owns a private wazero runtime, so callback state is scoped to
// one engine instance and handles never share anything. All pointer/length
// pairs the engine passes to the callbacks are validated against the current
// linear memory extent at the moment of use; the extent can grow between
// calls and is never cached.
package engine
