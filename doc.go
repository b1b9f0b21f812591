// Package pgwasm embeds a Postgres server compiled to WebAssembly and drives
// it in-process over the native client/server wire protocol, exactly as if it
// were a remote database reachable over a socket.
//
// No real socket exists. The engine binary is a black box that consumes bytes
// through a read callback and emits bytes through a write callback, both
// invoked synchronously from inside a single "serve one client interaction"
// entry point. This library simulates the bidirectional stream those
// callbacks expect, speaks the wire protocol over it, serializes concurrent
// callers onto the engine's single execution context, and materializes the
// resulting protocol messages into typed query results.
//
// # Architecture Overview
//
// The library is organized into packages with distinct responsibilities:
//
//	pgwasm/          Root package with the StreamIO and Engine capability interfaces
//	├── bridge/      Public facade: Query, Exec, Transaction; serializer and result materializer
//	├── wire/        Wire-protocol framing: frame decoder, message encoder, message variants
//	├── engine/      wazero-backed engine handle and host callback binding
//	├── errors/      Structured error types for decode, bridge and engine failures
//	└── cmd/pgwasm/  CLI: one-shot statements and an interactive REPL
//
// # Quick Start
//
//	eng, err := engine.Open(ctx, wasmBytes, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	db, err := bridge.Open(ctx, eng, bridge.Config{Database: "postgres", User: "postgres"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close(ctx)
//
//	res, err := db.Query(ctx, "SELECT 1 AS one")
//	fmt.Println(res.Rows[0]["one"]) // 1
//
// # Concurrency
//
// A Bridge serializes all requests: the embedded engine has exactly one
// execution context and is not reentrant. Calls from multiple goroutines are
// queued FIFO and executed one at a time. Independent Bridge instances own
// independent engine instances and run concurrently relative to each other.
//
// # Memory Model
//
// The engine's linear memory can grow between calls. Every pointer/length
// pair crossing the host/engine boundary is re-validated against the current
// memory extent at the moment of use; absolute bounds are never cached across
// engine re-entry.
package pgwasm
