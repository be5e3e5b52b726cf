package tex2html

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alnah/go-tex2html/internal/engine"
	"github.com/alnah/go-tex2html/internal/guardian"
	"github.com/alnah/go-tex2html/internal/pipeline"
	"github.com/alnah/go-tex2html/internal/typeset"
)

// Compile-time interface implementation checks.
var (
	_ conversionEngine = (*engine.Pandoc)(nil)
	_ guardian.Probe   = guardianProbe{}
	_ guardian.Cleaner = guardianCleaner{}
	_ StatusObserver   = NopObserver{}
)

// conversionEngine abstracts the external converter: argument flags and
// source text in, HTML text out. Implementations may return *engine.Fault.
type conversionEngine interface {
	Convert(args []string, source string) (string, error)
}

// Chunk deadline bounds. Each chunk gets a share of the document
// estimate, clamped so a single chunk can neither starve nor stall.
const (
	minChunkDeadline = 5 * time.Second
	maxChunkDeadline = 20 * time.Second
)

// chunkBoundaryPattern matches the temporary markers the chunked path
// leaves between fragment outputs. Safe cleanup removes them.
var chunkBoundaryPattern = regexp.MustCompile(`<div class="chunk-boundary" data-chunk="\d+" hidden="hidden"></div>\n?`)

// attempt records one engine invocation. Retained only for the duration
// of the current operation.
type attempt struct {
	args    []string
	started time.Time
	ended   time.Time
	err     error
	kind    engine.FaultKind
}

// Session is a long-lived conversion orchestrator. It owns the
// cross-reference registry, the typesetter and the resource guardian,
// and drives engine invocations through the adaptive pipeline:
// assess, preprocess, convert whole or chunked, clean, typeset.
//
// At most one conversion is in flight per session; a second request is
// rejected with ErrConversionInFlight rather than queued.
type Session struct {
	cfg      sessionConfig
	log      *slog.Logger
	observer StatusObserver

	engine     conversionEngine
	registry   *pipeline.Registry
	typesetter *typeset.Typesetter
	guardian   *guardian.Guardian

	state      atomic.Int32
	converting atomic.Bool
	closed     atomic.Bool

	mu       sync.Mutex
	lastHTML string
	attempts []attempt
}

// NewSession creates a Session with default configuration and starts
// its resource guardian. Close releases the guardian.
func NewSession(opts ...Option) *Session {
	s := &Session{
		cfg: sessionConfig{
			timeout: defaultTimeout,
			limits:  DefaultResourceLimits(),
		},
		log:      slog.New(slog.DiscardHandler),
		observer: NopObserver{},
		registry: pipeline.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Create engine and typesetter if not injected (e.g., by tests).
	if s.engine == nil {
		s.engine = engine.NewPandoc(s.cfg.engineBinary)
	}
	if s.typesetter == nil {
		s.typesetter = typeset.New()
	}

	s.guardian = guardian.New(
		toGuardianLimits(s.cfg.limits),
		guardianProbe{s},
		guardianCleaner{s},
		s.log,
	)
	if !s.cfg.noWatchdog {
		s.guardian.Start()
	}

	return s
}

// Convert runs the adaptive pipeline over input.Source and returns the
// rendered HTML. Rejects a new request while one is already active.
// Recovers from internal panics to prevent crashes from propagating to
// callers.
func (s *Session) Convert(input Input) (result *ConvertResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.setState(StateError)
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if strings.TrimSpace(input.Source) == "" {
		return nil, ErrEmptySource
	}
	if !s.converting.CompareAndSwap(false, true) {
		return nil, ErrConversionInFlight
	}
	defer s.converting.Store(false)

	// Lifecycle point: reclaim between requests before any work starts.
	s.guardian.Check()
	s.clearAttempts()

	started := time.Now()
	s.setState(StateAssessing)
	s.observer.Loading("Assessing document", 10)

	doc := pipeline.SplitDocument(input.Source)
	pre := pipeline.PreprocessCrossRefs(input.Source, s.registry)
	if !pre.Success {
		// Preprocessing degrades gracefully: convert the original source.
		s.log.Warn("cross-reference preprocessing degraded", "err", pre.Err)
	}

	profile := pipeline.Assess(doc.Body)
	s.log.Debug("document assessed",
		"score", profile.Score,
		"level", profile.Level,
		"requiresChunking", profile.RequiresChunking,
	)

	stats := ConvertStats{
		Score:     profile.Score,
		Level:     profile.Level,
		CrossRefs: toCrossRefStats(pre.Stats),
	}

	var htmlOut string
	if profile.RequiresChunking {
		htmlOut, err = s.convertChunked(pre.Source, profile, &stats)
	} else {
		htmlOut, err = s.convertWhole(pre.Source, profile, &stats)
	}
	stats.Attempts = s.attemptCount()

	if err != nil {
		s.setState(StateError)
		s.observer.Error(userMessage(err))
		// Lifecycle point: reclaim after a failed attempt.
		s.Cleanup(CleanupMinimal)
		return nil, err
	}

	htmlOut = s.finish(htmlOut, &stats)
	stats.Duration = time.Since(started)

	s.mu.Lock()
	s.lastHTML = htmlOut
	s.mu.Unlock()

	s.setState(StateReady)
	s.observer.Ready("Conversion complete")

	return &ConvertResult{HTML: []byte(htmlOut), Stats: stats}, nil
}

// convertWhole takes the single-invocation path, racing the engine call
// against a deadline derived from the complexity estimate. Memory
// exhaustion falls back to the chunked path; an engine trap earns one
// retry with the reduced argument set. At most two escalations total.
func (s *Session) convertWhole(source string, profile pipeline.ComplexityProfile, stats *ConvertStats) (string, error) {
	s.setState(StateConverting)
	s.observer.Loading("Converting document", 30)

	deadline := s.documentDeadline(profile)
	out, att := s.raceEngine(engine.FullArgs(), source, deadline)
	if att.err == nil {
		return pipeline.StripDocumentWrapper(out), nil
	}

	switch att.kind {
	case engine.FaultMemory:
		s.log.Warn("memory exhaustion, falling back to chunked conversion")
		stats.Recoveries = append(stats.Recoveries, "chunked fallback")
		return s.convertChunked(source, profile, stats)

	case engine.FaultTrap:
		s.log.Warn("engine trap, retrying with reduced arguments")
		stats.Recoveries = append(stats.Recoveries, "reduced-argument retry")
		out, att = s.raceEngine(engine.ReducedArgs(), source, deadline)
		if att.err == nil {
			return pipeline.StripDocumentWrapper(out), nil
		}
		return "", s.surface(att)

	default:
		return "", s.surface(att)
	}
}

// convertChunked decomposes the document and converts the chunks
// strictly sequentially to bound peak engine memory, each under its own
// shorter deadline. One chunk's failure becomes inline error markup in
// that chunk's place; the rest of the document still converts. Output
// order always matches input order.
func (s *Session) convertChunked(source string, profile pipeline.ComplexityProfile, stats *ConvertStats) (string, error) {
	s.setState(StateChunkConverting)

	doc := pipeline.SplitDocument(source)
	chunks := pipeline.Decompose(doc, s.cfg.chunkWindow)

	stats.Chunked = true
	stats.ChunkCount = len(chunks)

	deadline := s.chunkDeadline(profile, len(chunks))
	parts := make([]string, 0, len(chunks))

	for i, chunk := range chunks {
		s.observer.Loading(
			fmt.Sprintf("Converting part %d of %d", i+1, len(chunks)),
			30+40*(i+1)/len(chunks),
		)

		out, att := s.raceEngine(engine.FullArgs(), chunk.WrappedContent, deadline)
		if att.err != nil {
			stats.FailedChunks++
			s.log.Warn("chunk conversion failed",
				"chunk", i,
				"title", chunk.Title,
				"kind", att.kind.String(),
			)
			out = pipeline.ChunkErrorHTML(chunk.Title, att.kind.UserMessage())
		} else {
			out = pipeline.StripDocumentWrapper(out)
		}

		parts = append(parts, out,
			fmt.Sprintf(`<div class="chunk-boundary" data-chunk="%d" hidden="hidden"></div>`, i))
	}

	return strings.Join(parts, "\n"), nil
}

// finish runs the cleaning and typesetting stages over the converted
// output. Typesetting failures are logged, never fatal.
func (s *Session) finish(htmlOut string, stats *ConvertStats) string {
	s.setState(StateCleaning)
	s.observer.Loading("Cleaning output", 70)

	// Chunk assembly markers are processing-internal; the exported
	// document never carries them.
	htmlOut = chunkBoundaryPattern.ReplaceAllString(htmlOut, "")
	htmlOut = pipeline.RemoveDuplicateTitleBlocks(htmlOut)

	var anchored int
	htmlOut, anchored = pipeline.FixEquationAnchors(htmlOut, s.registry.EquationLabels())
	stats.CrossRefs.EquationAnchors = anchored

	if s.cfg.highlightStyle != "" {
		htmlOut = pipeline.HighlightCode(htmlOut, s.cfg.highlightStyle)
	}

	s.setState(StateTypesetting)
	s.observer.Loading("Typesetting mathematics", 85)

	out, typesetCount, failedCount := s.typesetter.Typeset(htmlOut)
	stats.MathTypeset = typesetCount
	stats.MathUntypeset = failedCount
	if failedCount > 0 {
		s.log.Warn("some math could not be typeset", "failed", failedCount)
	}
	return out
}

// raceEngine races one engine invocation against a deadline. The engine
// call cannot be forcibly interrupted; when the timer wins, the call
// keeps running in the background and its result, if it ever arrives,
// is discarded through the buffered channel.
func (s *Session) raceEngine(args []string, source string, deadline time.Duration) (string, attempt) {
	att := attempt{args: args, started: time.Now()}

	type outcome struct {
		html string
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		html, err := s.engine.Convert(args, source)
		ch <- outcome{html, err}
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	var out outcome
	select {
	case out = <-ch:
	case <-timer.C:
		out = outcome{err: fmt.Errorf("engine call abandoned after %v: %w", deadline, context.DeadlineExceeded)}
	}

	att.ended = time.Now()
	att.err = out.err
	if out.err != nil {
		att.kind = classifyAttempt(out.err)
	}

	s.mu.Lock()
	s.attempts = append(s.attempts, att)
	s.mu.Unlock()

	return out.html, att
}

// classifyAttempt maps an engine error to its fault kind.
func classifyAttempt(err error) engine.FaultKind {
	var fault *engine.Fault
	if errors.As(err, &fault) {
		return fault.Kind
	}
	return engine.Classify(err, "")
}

// surface maps an exhausted attempt to its public sentinel error with a
// plain-language message. Raw engine output never reaches callers.
func (s *Session) surface(att attempt) error {
	s.log.Error("conversion failed", "kind", att.kind.String(), "err", att.err)

	if errors.Is(att.err, engine.ErrEngineMissing) {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, att.err)
	}

	sentinel := ErrEngineSyntax
	switch att.kind {
	case engine.FaultMemory:
		sentinel = ErrEngineMemory
	case engine.FaultTrap:
		sentinel = ErrEngineTrap
	case engine.FaultTimeout:
		sentinel = ErrEngineTimeout
	}
	return fmt.Errorf("%w: %s", sentinel, att.kind.UserMessage())
}

// userMessage extracts the plain-language part of a surfaced error.
func userMessage(err error) string {
	if i := strings.Index(err.Error(), ": "); i >= 0 {
		return err.Error()[i+2:]
	}
	return err.Error()
}

// documentDeadline derives the whole-document deadline from the
// complexity estimate, capped by the configured timeout.
func (s *Session) documentDeadline(profile pipeline.ComplexityProfile) time.Duration {
	d := profile.EstimatedTime
	if s.cfg.timeout > 0 && d > s.cfg.timeout {
		d = s.cfg.timeout
	}
	return d
}

// chunkDeadline gives each chunk its share of the document estimate,
// clamped to sane bounds.
func (s *Session) chunkDeadline(profile pipeline.ComplexityProfile, chunks int) time.Duration {
	if chunks < 1 {
		chunks = 1
	}
	d := s.documentDeadline(profile) / time.Duration(chunks)
	if d < minChunkDeadline {
		d = minChunkDeadline
	}
	if d > maxChunkDeadline {
		d = maxChunkDeadline
	}
	return d
}

// State reports the orchestrator's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// HTML returns the last completed output, for diagnostics and export.
func (s *Session) HTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHTML
}

// RegistryStats exposes the cross-reference registry statistics for
// external diagnostic consumption.
func (s *Session) RegistryStats() CrossRefStats {
	return toCrossRefStats(s.registry.Stats())
}

// ResourceSnapshots returns the guardian's rolling sample history.
func (s *Session) ResourceSnapshots() []guardian.Snapshot {
	return s.guardian.Snapshots()
}

// CleanupHistory returns the guardian's rolling cleanup event history.
func (s *Session) CleanupHistory() []guardian.CleanupEvent {
	return s.guardian.CleanupHistory()
}

// Close stops the resource guardian and marks the session closed.
// Safe to call more than once.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.guardian.Stop()
	return nil
}

func (s *Session) clearAttempts() {
	s.mu.Lock()
	s.attempts = nil
	s.mu.Unlock()
}

func (s *Session) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

func toGuardianLimits(l ResourceLimits) guardian.Limits {
	return guardian.Limits{
		HeapBytes:    l.HeapBytes,
		MaxNodes:     l.MaxNodes,
		MaxMathNodes: l.MaxMathNodes,
		Interval:     l.WatchdogInterval,
		RecheckDelay: l.AnnotationRecheck,
	}
}

func toCrossRefStats(st pipeline.CrossRefStats) CrossRefStats {
	return CrossRefStats{
		Labels:             st.Labels,
		References:         st.References,
		AnchorsInjected:    st.AnchorsInjected,
		NumberedEquations:  st.NumberedEquations,
		OrphanedReferences: append([]string(nil), st.OrphanedReferences...),
	}
}
