package engine

// Names of the wasm import/export surface the engine binary is built with.
const (
	// hostModule is the import namespace the engine resolves its stream
	// callbacks from.
	hostModule = "env"

	// importWrite is write(ptr, len) -> accepted: the engine hands the host
	// bytes it emitted. A negative result fails the engine-side write.
	importWrite = "pgwire_write"

	// importRead is read(ptr, maxLen) -> copied: the host fills engine
	// memory with outbound bytes. Zero signals end-of-input for this round.
	importRead = "pgwire_read"

	// exportServe drives one protocol interaction:
	// serve(available, firstByte) -> status, nonzero meaning engine fault.
	exportServe = "pg_serve"

	// exportBoot is the optional one-time initialization entry point
	// (catalog bootstrap) called before the first interaction.
	exportBoot = "pg_boot"
)
