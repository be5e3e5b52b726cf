package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tex2html "github.com/alnah/go-tex2html"
	"github.com/alnah/go-tex2html/internal/config"
	"github.com/alnah/go-tex2html/internal/diag"
	"github.com/alnah/go-tex2html/internal/hints"
)

// Sentinel errors for CLI operations.
var (
	ErrInvalidArgs      = errors.New("usage: tex2html <input.tex> [more.tex ...] [flags]")
	ErrReadSource       = errors.New("failed to read LaTeX file")
	ErrWriteOutput      = errors.New("failed to write HTML file")
	ErrInvalidExtension = errors.New("file must have .tex or .latex extension")
)

// run converts every input file, in parallel when more than one worker
// is available.
func run(inputs []string, fl *cliFlags, cfg *config.Config, log *slog.Logger) error {
	if len(inputs) == 0 {
		return ErrInvalidArgs
	}
	for _, in := range inputs {
		if err := validateLatexExtension(in); err != nil {
			return err
		}
	}
	if fl.output != "" && len(inputs) > 1 {
		return fmt.Errorf("%w: --output is only valid with a single input", ErrInvalidArgs)
	}

	opts := buildOptions(fl, cfg, log)

	if len(inputs) == 1 {
		return convertOne(inputs[0], fl, cfg, opts, log)
	}
	return convertBatch(inputs, fl, opts, log)
}

// convertOne handles the single-input path, optionally serving
// diagnostics for the session's lifetime.
func convertOne(input string, fl *cliFlags, cfg *config.Config, opts []tex2html.Option, log *slog.Logger) error {
	sess := tex2html.NewSession(opts...)
	defer func() { _ = sess.Close() }()

	diagAddr := fl.diag
	if diagAddr == "" && cfg.Diag.Enabled {
		diagAddr = cfg.Diag.Addr
	}
	if diagAddr != "" {
		srv := diag.New(diag.Sources{
			State:     func() string { return sess.State().String() },
			Registry:  func() any { return sess.RegistryStats() },
			Snapshots: sess.ResourceSnapshots,
			Cleanups:  sess.CleanupHistory,
		}, log)
		srv.Start(diagAddr)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	return convertFile(sess, input, outputPath(input, fl.output), fl.verbose)
}

// convertBatch converts inputs through a session pool.
func convertBatch(inputs []string, fl *cliFlags, opts []tex2html.Option, log *slog.Logger) error {
	pool := tex2html.NewSessionPool(tex2html.ResolvePoolSize(fl.workers), opts...)
	defer func() { _ = pool.Close() }()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, input := range inputs {
		wg.Add(1)
		go func(input string) {
			defer wg.Done()

			sess := pool.Acquire()
			defer pool.Release(sess)

			if err := convertFile(sess, input, outputPath(input, ""), fl.verbose); err != nil {
				log.Error("conversion failed", "input", input, "err", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", input, err))
				mu.Unlock()
			}
		}(input)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// convertFile reads one LaTeX file, converts it, and writes the HTML.
func convertFile(sess *tex2html.Session, inputPath, outPath string, verbose bool) error {
	source, err := os.ReadFile(inputPath) // #nosec G304 -- user-provided path
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReadSource, err)
	}

	result, err := sess.Convert(tex2html.Input{Source: string(source)})
	if err != nil {
		return withHint(err)
	}

	if err := os.WriteFile(outPath, result.HTML, 0o644); err != nil { // #nosec G306 -- rendered output
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}

	fmt.Printf("Created %s\n", outPath)
	if verbose {
		printStats(result.Stats)
	}
	return nil
}

// withHint appends an actionable hint for the failure classes users can
// act on.
func withHint(err error) error {
	switch {
	case errors.Is(err, tex2html.ErrEngineUnavailable):
		return fmt.Errorf("%w%s", err, hints.ForEngineMissing(""))
	case errors.Is(err, tex2html.ErrEngineTimeout):
		return fmt.Errorf("%w%s", err, hints.ForTimeout())
	case errors.Is(err, tex2html.ErrEngineMemory):
		return fmt.Errorf("%w%s", err, hints.ForMemory())
	}
	return err
}

// buildOptions merges config file values and flags; flags take priority.
func buildOptions(fl *cliFlags, cfg *config.Config, log *slog.Logger) []tex2html.Option {
	opts := []tex2html.Option{tex2html.WithLogger(log)}

	timeout := fl.timeout
	if timeout == 0 && cfg.Engine.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Engine.TimeoutSeconds) * time.Second
	}
	if timeout > 0 {
		opts = append(opts, tex2html.WithTimeout(timeout))
	}

	engineBinary := fl.engine
	if engineBinary == "" {
		engineBinary = cfg.Engine.Binary
	}
	if engineBinary != "" {
		opts = append(opts, tex2html.WithEngineBinary(engineBinary))
	}

	chunkWindow := fl.chunkWindow
	if chunkWindow == 0 {
		chunkWindow = cfg.Chunking.WindowChars
	}
	if chunkWindow > 0 {
		opts = append(opts, tex2html.WithChunkWindow(chunkWindow))
	}

	style := fl.highlight
	if style == "" && cfg.Highlight.Enabled {
		style = cfg.Highlight.Style
	}
	if style != "" {
		opts = append(opts, tex2html.WithHighlighting(style))
	}

	limits := tex2html.DefaultResourceLimits()
	if cfg.Guardian.HeapMB > 0 {
		limits.HeapBytes = uint64(cfg.Guardian.HeapMB) << 20
	}
	if cfg.Guardian.MaxNodes > 0 {
		limits.MaxNodes = cfg.Guardian.MaxNodes
	}
	if cfg.Guardian.MaxMathNodes > 0 {
		limits.MaxMathNodes = cfg.Guardian.MaxMathNodes
	}
	if cfg.Guardian.IntervalSeconds > 0 {
		limits.WatchdogInterval = time.Duration(cfg.Guardian.IntervalSeconds) * time.Second
	}
	opts = append(opts, tex2html.WithResourceLimits(limits))

	if fl.verbose {
		opts = append(opts, tex2html.WithStatusObserver(&statusPrinter{}))
	}

	return opts
}

// validateLatexExtension checks that the file has a .tex or .latex extension.
func validateLatexExtension(path string) error {
	ext := filepath.Ext(path)
	if ext != ".tex" && ext != ".latex" {
		return fmt.Errorf("%w: got %q", ErrInvalidExtension, ext)
	}
	return nil
}

// outputPath derives the HTML output path from the input path unless an
// explicit output was given.
func outputPath(input, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".html"
}

func printStats(st tex2html.ConvertStats) {
	fmt.Fprintf(os.Stderr, "  complexity: %.1f (%s)\n", st.Score, st.Level)
	if st.Chunked {
		fmt.Fprintf(os.Stderr, "  chunks: %d (%d failed)\n", st.ChunkCount, st.FailedChunks)
	}
	fmt.Fprintf(os.Stderr, "  labels: %d, references: %d, orphaned: %d\n",
		st.CrossRefs.Labels, st.CrossRefs.References, len(st.CrossRefs.OrphanedReferences))
	fmt.Fprintf(os.Stderr, "  math typeset: %d (%d failed)\n", st.MathTypeset, st.MathUntypeset)
	if len(st.Recoveries) > 0 {
		fmt.Fprintf(os.Stderr, "  recoveries: %s\n", strings.Join(st.Recoveries, ", "))
	}
	fmt.Fprintf(os.Stderr, "  duration: %v\n", st.Duration.Round(time.Millisecond))
}

// statusPrinter writes lifecycle notifications to stderr.
type statusPrinter struct{}

func (statusPrinter) Loading(message string, percent int) {
	fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", percent, message)
}

func (statusPrinter) Ready(message string) {
	fmt.Fprintf(os.Stderr, "[done] %s\n", message)
}

func (statusPrinter) Error(message string) {
	fmt.Fprintf(os.Stderr, "[fail] %s\n", message)
}
