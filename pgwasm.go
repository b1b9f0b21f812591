package pgwasm

import "context"

// StreamIO simulates the two halves of a socket for the embedded engine.
// The engine handle invokes it synchronously from inside ServeOne while the
// engine is blocked in its read/write callbacks. Implementations own the
// outbound buffer and inbound accumulator; the handle only moves bytes
// between them and the engine's linear memory.
type StreamIO interface {
	// EngineWrite accepts bytes the engine emitted. p is a view into the
	// engine's linear memory valid only for the duration of the call;
	// implementations must copy what they keep. Returns the number of bytes
	// accepted, or a negative value to fail the engine's write.
	EngineWrite(p []byte) int

	// EngineRead returns up to max outbound bytes for the engine to consume,
	// advancing the stream position. An empty slice signals end-of-input for
	// the current interaction.
	EngineRead(max int) []byte
}

// Engine is one instantiated execution module: the compiled database server
// plus its linear memory. It is exclusively owned by a single bridge and is
// not safe for concurrent use.
type Engine interface {
	// BindIO installs the stream capability the engine's read/write callbacks
	// are routed to. Must be called before the first ServeOne.
	BindIO(io StreamIO) error

	// ServeOne drives one protocol interaction: the engine reads the
	// outbound bytes available through StreamIO and writes its responses
	// back. available is the total outbound byte count and first the leading
	// byte of the outbound buffer; the engine's own protocol state machine
	// decides when the interaction ends.
	ServeOne(ctx context.Context, available int, first byte) error

	// Close releases the execution module and its memory.
	Close(ctx context.Context) error
}
