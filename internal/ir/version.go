package ir

// Version constants for the journal format and engine.
const (
	// FormatVersion is the version of the canonical value encoding.
	FormatVersion = "1"

	// EngineVersion is the topic update engine version.
	EngineVersion = "0.1.0"
)
