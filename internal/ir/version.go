package ir

// Version constants for on-disk artifacts and the engine.
const (
	// ArtifactVersion is recorded in headers of files this module writes.
	ArtifactVersion = "1"

	// EngineVersion is the shaderhunt engine version.
	EngineVersion = "0.1.0"
)
