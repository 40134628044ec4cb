package ir

// Version constants for the loop-nest format and the compiler.
const (
	// IRVersion is the loop-nest program format version. Bump it whenever
	// the encoded Program layout changes.
	IRVersion = "1"

	// CompilerVersion is the nestc compiler version.
	CompilerVersion = "0.1.0"
)
