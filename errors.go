package tex2html

import "errors"

// Sentinel errors for library operations.
var (
	ErrEmptySource        = errors.New("LaTeX source cannot be empty")
	ErrConversionInFlight = errors.New("a conversion is already in progress")
	ErrSessionClosed      = errors.New("session is closed")
	ErrEngineUnavailable  = errors.New("conversion engine unavailable")

	// Classified engine failures, surfaced after recovery is exhausted.
	ErrEngineMemory  = errors.New("engine memory exhausted")
	ErrEngineTrap    = errors.New("engine trap")
	ErrEngineTimeout = errors.New("engine timed out")
	ErrEngineSyntax  = errors.New("document conversion error")

	// Resource limits validation errors.
	ErrInvalidInterval = errors.New("invalid watchdog interval")
	ErrInvalidLimit    = errors.New("invalid resource limit")
)
