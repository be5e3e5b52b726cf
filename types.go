package tex2html

import (
	"fmt"
	"log/slog"
	"time"
)

// Input contains conversion parameters.
type Input struct {
	Source string // LaTeX source (required)
}

// ConvertResult holds the rendered HTML and the statistics of the run.
type ConvertResult struct {
	HTML  []byte
	Stats ConvertStats
}

// ConvertStats summarizes one conversion: how the document was assessed,
// which path it took, what was recovered, and what the preprocessor and
// typesetter did.
type ConvertStats struct {
	Score         float64
	Level         string
	Chunked       bool
	ChunkCount    int
	FailedChunks  int
	Attempts      int
	Recoveries    []string // escalations applied, e.g. "chunked fallback"
	Duration      time.Duration
	CrossRefs     CrossRefStats
	MathTypeset   int
	MathUntypeset int
}

// CrossRefStats mirrors the preprocessor's per-run statistics.
type CrossRefStats struct {
	Labels             int
	References         int
	AnchorsInjected    int
	EquationAnchors    int
	NumberedEquations  int
	OrphanedReferences []string
}

// State is the orchestrator's position in the conversion lifecycle.
type State int32

// Conversion lifecycle states. ERROR is reachable from any active state.
const (
	StateIdle State = iota
	StateAssessing
	StateConverting
	StateChunkConverting
	StateCleaning
	StateTypesetting
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAssessing:
		return "assessing"
	case StateConverting:
		return "converting"
	case StateChunkConverting:
		return "chunk-converting"
	case StateCleaning:
		return "cleaning"
	case StateTypesetting:
		return "typesetting"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StatusObserver receives discrete lifecycle notifications. Purely
// observational; nothing flows back into the pipeline.
type StatusObserver interface {
	Loading(message string, percent int)
	Ready(message string)
	Error(message string)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) Loading(string, int) {}
func (NopObserver) Ready(string)        {}
func (NopObserver) Error(string)        {}

// ResourceLimits configures the resource guardian's thresholds.
type ResourceLimits struct {
	HeapBytes         uint64        // heap-in-use cleanup threshold
	MaxNodes          int           // rendered node count threshold
	MaxMathNodes      int           // live math element threshold
	WatchdogInterval  time.Duration // sampling interval
	AnnotationRecheck time.Duration // annotation-protection recheck delay
}

// DefaultResourceLimits returns the standard thresholds.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		HeapBytes:         512 << 20,
		MaxNodes:          60_000,
		MaxMathNodes:      2_000,
		WatchdogInterval:  10 * time.Second,
		AnnotationRecheck: 500 * time.Millisecond,
	}
}

// Validate checks that the limits are usable.
func (l ResourceLimits) Validate() error {
	if l.WatchdogInterval <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, l.WatchdogInterval)
	}
	if l.AnnotationRecheck < 0 {
		return fmt.Errorf("%w: negative annotation recheck delay", ErrInvalidLimit)
	}
	if l.MaxNodes < 0 || l.MaxMathNodes < 0 {
		return fmt.Errorf("%w: negative node threshold", ErrInvalidLimit)
	}
	return nil
}

// Option configures a Session.
type Option func(*Session)

// sessionConfig holds internal configuration for Session.
type sessionConfig struct {
	timeout        time.Duration
	engineBinary   string
	chunkWindow    int
	highlightStyle string
	limits         ResourceLimits
	noWatchdog     bool
}

// defaultTimeout caps the complexity-derived deadline when no timeout
// is specified.
const defaultTimeout = 60 * time.Second

// WithTimeout caps the per-document conversion deadline. The effective
// deadline is the complexity estimate, never more than d.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("tex2html: WithTimeout duration must be positive")
	}
	return func(s *Session) {
		s.cfg.timeout = d
	}
}

// WithEngineBinary selects the conversion engine executable.
// Default is "pandoc" resolved from PATH.
func WithEngineBinary(path string) Option {
	return func(s *Session) {
		s.cfg.engineBinary = path
	}
}

// WithChunkWindow sets the character window size used when a document
// has no usable sectioning boundaries.
func WithChunkWindow(chars int) Option {
	return func(s *Session) {
		s.cfg.chunkWindow = chars
	}
}

// WithHighlighting enables chroma highlighting of converted code blocks
// with the named style (e.g. "github", "monokai").
func WithHighlighting(style string) Option {
	return func(s *Session) {
		s.cfg.highlightStyle = style
	}
}

// WithResourceLimits overrides the guardian thresholds.
func WithResourceLimits(l ResourceLimits) Option {
	return func(s *Session) {
		s.cfg.limits = l
	}
}

// WithLogger sets the structured logger. Default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithStatusObserver sets the lifecycle notification receiver.
func WithStatusObserver(obs StatusObserver) Option {
	return func(s *Session) {
		s.observer = obs
	}
}

// WithoutWatchdog disables the background sampling loop. Cleanup still
// runs at the orchestrator's lifecycle points. Intended for one-shot
// CLI conversions and tests.
func WithoutWatchdog() Option {
	return func(s *Session) {
		s.cfg.noWatchdog = true
	}
}
