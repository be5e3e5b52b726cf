package engine

import (
	"errors"
	"os/exec"
	"strings"
	"testing"
)

// MockRunner implements CommandRunner for testing without subprocesses.
type MockRunner struct {
	Stdout string
	Stderr string
	Err    error

	// Recorded invocation.
	Name string
	Args []string
}

func (m *MockRunner) Run(name string, args ...string) (string, string, error) {
	m.Name = name
	m.Args = args
	return m.Stdout, m.Stderr, m.Err
}

func TestPandocConvert_Success(t *testing.T) {
	mock := &MockRunner{Stdout: "<p>converted</p>"}
	p := &Pandoc{Binary: "pandoc", Runner: mock}

	out, err := p.Convert(FullArgs(), "\\documentclass{article}\\begin{document}x\\end{document}")
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if out != "<p>converted</p>" {
		t.Errorf("Convert() = %q, want engine stdout", out)
	}
	if mock.Name != "pandoc" {
		t.Errorf("ran %q, want pandoc", mock.Name)
	}
}

func TestPandocConvert_PassesArgsAndSourceFile(t *testing.T) {
	mock := &MockRunner{Stdout: "ok"}
	p := &Pandoc{Binary: "pandoc", Runner: mock}

	if _, err := p.Convert(ReducedArgs(), "x"); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	joined := strings.Join(mock.Args, " ")
	if !strings.Contains(joined, "--from latex") || !strings.Contains(joined, "--to html5") {
		t.Errorf("args = %v, missing format flags", mock.Args)
	}
	if strings.Contains(joined, "--standalone") {
		t.Errorf("reduced args must not include --standalone: %v", mock.Args)
	}
	last := mock.Args[len(mock.Args)-1]
	if !strings.HasSuffix(last, ".tex") {
		t.Errorf("last arg = %q, want temp .tex path", last)
	}
}

func TestPandocConvert_EmptyInput(t *testing.T) {
	p := &Pandoc{Binary: "pandoc", Runner: &MockRunner{}}
	if _, err := p.Convert(FullArgs(), ""); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Convert(\"\") error = %v, want ErrEmptyInput", err)
	}
}

func TestPandocConvert_EngineMissing(t *testing.T) {
	mock := &MockRunner{Err: &exec.Error{Name: "pandoc", Err: exec.ErrNotFound}}
	p := &Pandoc{Binary: "pandoc", Runner: mock}

	_, err := p.Convert(FullArgs(), "x")
	if !errors.Is(err, ErrEngineMissing) {
		t.Errorf("Convert() error = %v, want ErrEngineMissing", err)
	}
}

func TestPandocConvert_FailureReturnsClassifiedFault(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   FaultKind
	}{
		{"syntax error", "Error at line 3: undefined control sequence", FaultSyntax},
		{"memory exhaustion", "pandoc: out of memory", FaultMemory},
		{"engine trap", "pandoc: internal error: pattern match failure", FaultTrap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockRunner{Stderr: tt.stderr, Err: errors.New("exit status 1")}
			p := &Pandoc{Binary: "pandoc", Runner: mock}

			_, err := p.Convert(FullArgs(), "x")
			var fault *Fault
			if !errors.As(err, &fault) {
				t.Fatalf("Convert() error = %T, want *Fault", err)
			}
			if fault.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", fault.Kind, tt.want)
			}
			if fault.Stderr != tt.stderr {
				t.Errorf("Stderr = %q, want preserved", fault.Stderr)
			}
		})
	}
}

func TestNewPandoc_DefaultBinary(t *testing.T) {
	if p := NewPandoc(""); p.Binary != DefaultBinary {
		t.Errorf("Binary = %q, want %q", p.Binary, DefaultBinary)
	}
	if p := NewPandoc("/opt/pandoc"); p.Binary != "/opt/pandoc" {
		t.Errorf("Binary = %q, want explicit path", p.Binary)
	}
}
