package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FaultKind classifies an engine failure for recovery selection.
type FaultKind int

const (
	// FaultSyntax covers ordinary conversion errors: bad input, undefined
	// commands, anything the engine reports as a document problem.
	FaultSyntax FaultKind = iota

	// FaultMemory is engine memory exhaustion; recovered by falling back
	// to chunked conversion.
	FaultMemory

	// FaultTrap is a fatal low-level engine fault, distinct from an
	// ordinary error return; recovered by one retry with ReducedArgs.
	FaultTrap

	// FaultTimeout means the deadline won the race against the engine
	// call. The call itself may still be running; its result is discarded.
	FaultTimeout
)

func (k FaultKind) String() string {
	switch k {
	case FaultMemory:
		return "memory"
	case FaultTrap:
		return "trap"
	case FaultTimeout:
		return "timeout"
	default:
		return "syntax"
	}
}

// UserMessage returns the plain-language text surfaced for this fault
// kind. Raw engine error text never reaches users.
func (k FaultKind) UserMessage() string {
	switch k {
	case FaultMemory:
		return "The document is too large for the converter's memory. It was split into parts and retried."
	case FaultTrap:
		return "The converter hit an internal fault. A simplified conversion was attempted."
	case FaultTimeout:
		return "The conversion took too long and was stopped. Try splitting the document."
	default:
		return "The document could not be converted. Check it for LaTeX syntax errors."
	}
}

// Fault is a classified engine failure.
type Fault struct {
	Kind   FaultKind
	Stderr string
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("engine fault (%s): %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Failure-text signatures, checked in order: memory exhaustion first
// because OOM kills also look like signals.
var (
	memorySignatures = []string{
		"out of memory",
		"memory exhausted",
		"cannot allocate",
		"allocation failed",
		"heap overflow",
		"signal: killed",
	}
	trapSignatures = []string{
		"trap",
		"segmentation",
		"stack overflow",
		"panic",
		"internal error",
		"signal:",
	}
	timeoutSignatures = []string{
		"timed out",
		"timeout",
	}
)

// Classify inspects a failure's text for memory-exhaustion, engine-trap
// or timeout signatures. Anything unmatched is an ordinary syntax-level
// conversion error.
func Classify(err error, stderr string) FaultKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FaultTimeout
	}

	text := strings.ToLower(stderr)
	if err != nil {
		text += " " + strings.ToLower(err.Error())
	}

	for _, sig := range memorySignatures {
		if strings.Contains(text, sig) {
			return FaultMemory
		}
	}
	for _, sig := range timeoutSignatures {
		if strings.Contains(text, sig) {
			return FaultTimeout
		}
	}
	for _, sig := range trapSignatures {
		if strings.Contains(text, sig) {
			return FaultTrap
		}
	}
	return FaultSyntax
}
