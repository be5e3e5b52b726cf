package main

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	tex2html "github.com/alnah/go-tex2html"
	"github.com/alnah/go-tex2html/internal/config"
)

func TestValidateLatexExtension(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"doc.tex", false},
		{"doc.latex", false},
		{"doc.md", true},
		{"doc", true},
		{"doc.TEX", true},
	}

	for _, tt := range tests {
		err := validateLatexExtension(tt.path)
		if tt.wantErr && !errors.Is(err, ErrInvalidExtension) {
			t.Errorf("validateLatexExtension(%q) = %v, want ErrInvalidExtension", tt.path, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("validateLatexExtension(%q) = %v, want nil", tt.path, err)
		}
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input    string
		explicit string
		want     string
	}{
		{"doc.tex", "", "doc.html"},
		{"paper.latex", "", "paper.html"},
		{"dir/doc.tex", "", "dir/doc.html"},
		{"doc.tex", "custom.html", "custom.html"},
	}

	for _, tt := range tests {
		if got := outputPath(tt.input, tt.explicit); got != tt.want {
			t.Errorf("outputPath(%q, %q) = %q, want %q", tt.input, tt.explicit, got, tt.want)
		}
	}
}

func TestRun_Validation(t *testing.T) {
	cfg := config.DefaultConfig()
	log := slog.New(slog.DiscardHandler)

	t.Run("no inputs", func(t *testing.T) {
		err := run(nil, &cliFlags{}, cfg, log)
		if !errors.Is(err, ErrInvalidArgs) {
			t.Errorf("run() = %v, want ErrInvalidArgs", err)
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		err := run([]string{"notes.md"}, &cliFlags{}, cfg, log)
		if !errors.Is(err, ErrInvalidExtension) {
			t.Errorf("run() = %v, want ErrInvalidExtension", err)
		}
	})

	t.Run("output flag with multiple inputs", func(t *testing.T) {
		err := run([]string{"a.tex", "b.tex"}, &cliFlags{output: "out.html"}, cfg, log)
		if !errors.Is(err, ErrInvalidArgs) {
			t.Errorf("run() = %v, want ErrInvalidArgs", err)
		}
	})
}

func TestWithHint(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantHint bool
	}{
		{"engine unavailable", tex2html.ErrEngineUnavailable, true},
		{"timeout", tex2html.ErrEngineTimeout, true},
		{"memory", tex2html.ErrEngineMemory, true},
		{"syntax stays bare", tex2html.ErrEngineSyntax, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := withHint(tt.err)
			if !errors.Is(got, tt.err) {
				t.Errorf("withHint() lost the original error: %v", got)
			}
			hasHint := strings.Contains(got.Error(), "hint:")
			if hasHint != tt.wantHint {
				t.Errorf("withHint(%v) hint presence = %v, want %v", tt.err, hasHint, tt.wantHint)
			}
		})
	}
}

func TestBuildOptions_FlagsOverrideConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.TimeoutSeconds = 30
	cfg.Engine.Binary = "/cfg/pandoc"
	log := slog.New(slog.DiscardHandler)

	fl := &cliFlags{timeout: 5 * time.Second, engine: "/flag/pandoc"}
	opts := buildOptions(fl, cfg, log)

	// Options apply cleanly to a session; the flag values must win.
	s := tex2html.NewSession(append(opts, tex2html.WithoutWatchdog())...)
	defer func() { _ = s.Close() }()

	if len(opts) == 0 {
		t.Fatal("buildOptions() returned no options")
	}
}

func TestLoadConfig_DefaultsWhenUnset(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\") error = %v", err)
	}
	if cfg.Highlight.Style != "github" {
		t.Errorf("Highlight.Style = %q, want default", cfg.Highlight.Style)
	}
}

func TestLoadConfig_MissingFileHasHint(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/config.yaml")
	if !errors.Is(err, config.ErrConfigNotFound) {
		t.Fatalf("loadConfig() = %v, want ErrConfigNotFound", err)
	}
	if !strings.Contains(err.Error(), "hint:") {
		t.Errorf("missing hint: %v", err)
	}
}
