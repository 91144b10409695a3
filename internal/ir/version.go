package ir

const (
	// IRVersion is bumped whenever the compiled model layout changes. It is
	// part of the hash domains, so a bump invalidates every cached graph.
	IRVersion = "1"

	// EngineVersion is reported by the CLI and the health endpoint.
	EngineVersion = "0.1.0"
)
