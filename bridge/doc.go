// Package bridge is the public facade over the embedded engine: it owns the
// simulated byte stream, serializes callers onto the engine's single
// execution context, and materializes decoded protocol messages into typed
// results.
//
// A Bridge is created with Open, which runs the connection startup exchange,
// and is used through Query, Exec, QueryArgs and Transaction. All requests
// on one Bridge execute strictly in submission order; a request that fails
// never wedges the bridge for subsequent callers.
package bridge
