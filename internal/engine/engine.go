// Package engine invokes the external conversion engine (pandoc) and
// classifies its failure modes. The engine is treated as an opaque
// function from argument flags and LaTeX source to HTML text.
package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/alnah/go-tex2html/internal/fileutil"
)

// DefaultBinary is the conversion engine executable resolved from PATH.
const DefaultBinary = "pandoc"

// Sentinel errors for engine invocation.
var (
	ErrEmptyInput    = errors.New("source content cannot be empty")
	ErrEngineMissing = errors.New("conversion engine not found")
)

// FullArgs is the standard argument set: a standalone HTML5 document
// with math left as TeX for the typesetting stage.
func FullArgs() []string {
	return []string{"--from", "latex", "--to", "html5", "--mathjax", "--standalone", "--wrap=none"}
}

// ReducedArgs is the simplified argument set used on the engine-trap
// retry path: fragment output, no standalone template processing.
func ReducedArgs() []string {
	return []string{"--from", "latex", "--to", "html5", "--mathjax"}
}

// CommandRunner abstracts command execution to enable testing without
// real subprocesses.
type CommandRunner interface {
	Run(name string, args ...string) (stdout string, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(name string, args ...string) (string, string, error) {
	cmd := exec.Command(name, args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("starting command: %w", err)
	}

	stderrContent, err := io.ReadAll(stderrPipe)
	if err != nil {
		return "", "", fmt.Errorf("reading stderr: %w", err)
	}

	err = cmd.Wait()
	return stdout.String(), string(stderrContent), err
}

// Pandoc converts LaTeX source to HTML by invoking the pandoc CLI.
type Pandoc struct {
	Binary string
	Runner CommandRunner
}

// NewPandoc creates a Pandoc engine with a real command runner.
// An empty binary selects DefaultBinary.
func NewPandoc(binary string) *Pandoc {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Pandoc{Binary: binary, Runner: &ExecRunner{}}
}

// Convert runs one engine invocation over the given source with the
// given flag set. Failures come back as a *Fault carrying the
// classified kind and the engine's stderr.
func (p *Pandoc) Convert(args []string, source string) (string, error) {
	if source == "" {
		return "", ErrEmptyInput
	}

	tmpPath, cleanup, err := fileutil.WriteTempFile(source, "tex")
	if err != nil {
		return "", err
	}
	defer cleanup()

	fullArgs := append(append([]string{}, args...), tmpPath)
	stdout, stderr, err := p.Runner.Run(p.Binary, fullArgs...)
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", fmt.Errorf("%w: %q", ErrEngineMissing, p.Binary)
		}
		return "", &Fault{Kind: Classify(err, stderr), Stderr: stderr, Err: err}
	}

	return stdout, nil
}
