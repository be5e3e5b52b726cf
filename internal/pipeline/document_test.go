package pipeline

import (
	"strings"
	"testing"
)

func TestSplitDocument(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantPreamble string
		wantBody     string
	}{
		{
			name:         "full document",
			input:        "\\documentclass{article}\n\\begin{document}\nHello\n\\end{document}",
			wantPreamble: "\\documentclass{article}",
			wantBody:     "Hello",
		},
		{
			name:         "bare body gets minimal preamble",
			input:        "Just some text with $x$",
			wantPreamble: MinimalPreamble,
			wantBody:     "Just some text with $x$",
		},
		{
			name:         "missing end of document",
			input:        "\\documentclass{book}\n\\begin{document}\nUnterminated",
			wantPreamble: "\\documentclass{book}",
			wantBody:     "Unterminated",
		},
		{
			name:         "empty preamble before begin",
			input:        "\\begin{document}\nBody only\n\\end{document}",
			wantPreamble: MinimalPreamble,
			wantBody:     "Body only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitDocument(tt.input)
			if got.Preamble != tt.wantPreamble {
				t.Errorf("Preamble = %q, want %q", got.Preamble, tt.wantPreamble)
			}
			if got.Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", got.Body, tt.wantBody)
			}
		})
	}
}

func TestDocumentJoin_RoundTrip(t *testing.T) {
	input := "\\documentclass{article}\n\\usepackage{amsmath}\n\\begin{document}\nContent here\n\\end{document}\n"

	doc := SplitDocument(input)
	joined := doc.Join()

	if !strings.Contains(joined, "\\begin{document}") || !strings.Contains(joined, "\\end{document}") {
		t.Errorf("joined document missing document markers: %q", joined)
	}

	// Splitting the rejoined document must be stable.
	again := SplitDocument(joined)
	if again.Preamble != doc.Preamble || again.Body != doc.Body {
		t.Errorf("round trip changed document: %+v vs %+v", again, doc)
	}
}

func TestCleanPreamble(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantLines   []string
		rejectLines []string
	}{
		{
			name:      "keeps class and packages, adds math packages",
			input:     "\\documentclass[12pt]{article}\n\\usepackage{graphicx}\n\\title{My Doc}",
			wantLines: []string{"\\documentclass[12pt]{article}", "\\usepackage{graphicx}", "\\usepackage{amsmath}", "\\usepackage{amssymb}"},
			rejectLines: []string{
				"\\title{My Doc}",
			},
		},
		{
			name:      "synthesizes class when absent",
			input:     "\\usepackage{amsmath}",
			wantLines: []string{"\\documentclass{article}", "\\usepackage{amsmath}", "\\usepackage{amssymb}"},
		},
		{
			name:        "does not duplicate math packages",
			input:       "\\documentclass{article}\n\\usepackage{amsmath}\n\\usepackage{amssymb}",
			wantLines:   []string{"\\usepackage{amsmath}"},
			rejectLines: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanPreamble(tt.input)
			for _, want := range tt.wantLines {
				if !strings.Contains(got, want) {
					t.Errorf("CleanPreamble() missing %q in %q", want, got)
				}
			}
			for _, reject := range tt.rejectLines {
				if strings.Contains(got, reject) {
					t.Errorf("CleanPreamble() should not contain %q: %q", reject, got)
				}
			}
			if strings.Count(got, "{amsmath}") != 1 {
				t.Errorf("amsmath appears %d times, want 1", strings.Count(got, "{amsmath}"))
			}
		})
	}
}

func TestStripTitleCommands(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "removes title author date maketitle",
			input: "\\title{T}\\author{A}\\date{D}\\maketitle Content",
			want:  " Content",
		},
		{
			name:  "content without metadata unchanged",
			input: "\\section{Intro} text",
			want:  "\\section{Intro} text",
		},
		{
			name:  "nested braces in title",
			input: "\\title{The \\textbf{Big} One}rest",
			want:  "rest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTitleCommands(tt.input); got != tt.want {
				t.Errorf("StripTitleCommands() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractTitleCommands(t *testing.T) {
	preamble := "\\documentclass{article}\n\\title{T}\n\\author{A}\n\\date{2024}"
	got := ExtractTitleCommands(preamble)
	if len(got) != 3 {
		t.Fatalf("ExtractTitleCommands() returned %d commands, want 3: %v", len(got), got)
	}
	if got[0] != "\\title{T}" {
		t.Errorf("first command = %q, want \\title{T}", got[0])
	}
}
