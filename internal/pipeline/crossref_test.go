package pipeline

import (
	"reflect"
	"strings"
	"testing"
)

func TestPreprocessCrossRefs_AnchorsOnlyForNonEquationLabels(t *testing.T) {
	source := "\\section{A}\\label{sec:a}\n" +
		"Some prose.\n" +
		"\\begin{equation}\\label{eq:a}E=mc^2\\end{equation}\n"

	res := PreprocessCrossRefs(source, nil)
	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if res.Stats.Labels != 2 {
		t.Errorf("Labels = %d, want 2", res.Stats.Labels)
	}
	if res.Stats.AnchorsInjected != 1 {
		t.Errorf("AnchorsInjected = %d, want 1", res.Stats.AnchorsInjected)
	}
	if !strings.Contains(res.Source, `\label{sec:a}\hypertarget{sec:a}{}`) {
		t.Errorf("missing section anchor in %q", res.Source)
	}
	if strings.Contains(res.Source, `\hypertarget{eq:a}`) {
		t.Errorf("equation label must not receive an inline anchor: %q", res.Source)
	}
}

func TestPreprocessCrossRefs_Stats(t *testing.T) {
	source := "\\section{Intro}\\label{sec:intro}\n" +
		"See \\ref{sec:intro}, \\eqref{eq:main} and \\ref{sec:missing}.\n" +
		"\\begin{equation}\\label{eq:main}x\\end{equation}\n"

	res := PreprocessCrossRefs(source, nil)
	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if res.Stats.References != 3 {
		t.Errorf("References = %d, want 3", res.Stats.References)
	}
	if got, want := res.Stats.OrphanedReferences, []string{"sec:missing"}; !reflect.DeepEqual(got, want) {
		t.Errorf("OrphanedReferences = %v, want %v", got, want)
	}
	if res.Stats.NumberedEquations != 1 {
		t.Errorf("NumberedEquations = %d, want 1", res.Stats.NumberedEquations)
	}
}

func TestPreprocessCrossRefs_DuplicateLabelsKeepFirst(t *testing.T) {
	source := "\\section{A}\\label{dup}\ntext\n\\section{B}\\label{dup}\n"
	res := PreprocessCrossRefs(source, nil)
	if res.Stats.Labels != 1 {
		t.Errorf("Labels = %d, want 1 (duplicates dropped)", res.Stats.Labels)
	}
	if strings.Count(res.Source, `\hypertarget{dup}{}`) != 1 {
		t.Errorf("anchor injected %d times, want 1: %q",
			strings.Count(res.Source, `\hypertarget{dup}{}`), res.Source)
	}
}

func TestPreprocessCrossRefs_BuildsRegistry(t *testing.T) {
	reg := NewRegistry()
	source := "\\section{A}\\label{sec:a} see \\ref{sec:a}"

	// Pre-seed stale state to verify the rebuild clears it.
	reg.Build([]Label{{Name: "stale"}}, nil, CrossRefStats{Labels: 1})

	PreprocessCrossRefs(source, reg)

	labels := reg.Labels()
	if len(labels) != 1 {
		t.Fatalf("registry labels = %+v, want exactly one", labels)
	}
	if _, ok := labels["sec:a"]; !ok {
		t.Errorf("registry labels = %+v, want sec:a", labels)
	}
	if _, ok := labels["stale"]; ok {
		t.Error("stale label survived the rebuild")
	}
	if refs := reg.References(); len(refs) != 1 || refs[0].Name != "sec:a" {
		t.Errorf("registry references = %+v, want single sec:a", refs)
	}
}

func TestInferLabelType(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   LabelType
	}{
		{
			name:   "theorem environment",
			source: "\\begin{theorem}Statement \\label{thm:x}",
			want:   LabelTheorem,
		},
		{
			name:   "figure environment",
			source: "\\begin{figure}\\includegraphics{a} \\label{fig:x}",
			want:   LabelFigure,
		},
		{
			name:   "table environment",
			source: "\\begin{table}\\begin{tabular}{cc}\\end{tabular}\\caption{c}\\label{tab:x}",
			want:   LabelTable,
		},
		{
			name:   "sectioning command",
			source: "\\section{Results}\\label{sec:x}",
			want:   LabelSection,
		},
		{
			name:   "closed environment does not leak",
			source: "\\begin{theorem}t\\end{theorem} prose \\label{x}",
			want:   LabelGeneric,
		},
		{
			name:   "unknown environment",
			source: "\\begin{itemize}\\item a \\label{item:x}",
			want:   LabelGeneric,
		},
		{
			name:   "bare label",
			source: "just text \\label{x}",
			want:   LabelGeneric,
		},
		{
			name:   "display math brackets",
			source: "prose \\[ E=mc^2 \\label{eq:d}",
			want:   LabelEquation,
		},
		{
			name:   "closed display math does not leak",
			source: "\\[x\\] prose \\label{x}",
			want:   LabelGeneric,
		},
		{
			name:   "dollar display math",
			source: "prose $$ E=mc^2 \\label{eq:dd}",
			want:   LabelEquation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := strings.Index(tt.source, `\label`)
			if got := inferLabelType(tt.source, pos); got != tt.want {
				t.Errorf("inferLabelType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssignEquationNumbers(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		wantCounter int
		wantNumbers map[string]int
	}{
		{
			name:        "single equation",
			source:      "\\begin{equation}\\label{eq:a}x\\end{equation}",
			wantCounter: 1,
			wantNumbers: map[string]int{"eq:a": 1},
		},
		{
			name:        "starred environment does not advance",
			source:      "\\begin{equation*}\\label{eq:a}x\\end{equation*}\\begin{equation}\\label{eq:b}y\\end{equation}",
			wantCounter: 1,
			wantNumbers: map[string]int{"eq:a": 0, "eq:b": 1},
		},
		{
			name: "align rows each get a number",
			source: "\\begin{align}\n" +
				"a &= b \\label{eq:one} \\\\\n" +
				"c &= d \\label{eq:two}\n" +
				"\\end{align}",
			wantCounter: 2,
			wantNumbers: map[string]int{"eq:one": 1, "eq:two": 2},
		},
		{
			name: "multline numbered once despite breaks",
			source: "\\begin{multline}\\label{eq:long}\n" +
				"a + b \\\\\n" +
				"+ c\n" +
				"\\end{multline}",
			wantCounter: 1,
			wantNumbers: map[string]int{"eq:long": 1},
		},
		{
			name: "nested environment rows do not advance the counter",
			source: "\\begin{align}\n" +
				"f(x) &= \\begin{cases} 1 \\\\ 2 \\end{cases} \\label{eq:f}\n" +
				"\\end{align}",
			wantCounter: 1,
			wantNumbers: map[string]int{"eq:f": 1},
		},
		{
			name: "nested matrix rows inside gather",
			source: "\\begin{gather}\n" +
				"\\begin{pmatrix} a \\\\ b \\end{pmatrix} \\label{eq:m} \\\\\n" +
				"c \\label{eq:c}\n" +
				"\\end{gather}",
			wantCounter: 2,
			wantNumbers: map[string]int{"eq:m": 1, "eq:c": 2},
		},
		{
			name: "counter spans environments",
			source: "\\begin{equation}\\label{eq:a}x\\end{equation}\n" +
				"\\begin{gather}y \\label{eq:b}\\\\ z \\label{eq:c}\\end{gather}",
			wantCounter: 3,
			wantNumbers: map[string]int{"eq:a": 1, "eq:b": 2, "eq:c": 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := extractLabels(tt.source)
			counter := assignEquationNumbers(tt.source, labels)
			if counter != tt.wantCounter {
				t.Errorf("counter = %d, want %d", counter, tt.wantCounter)
			}
			for _, l := range labels {
				if want, ok := tt.wantNumbers[l.Name]; ok && l.EquationNumber != want {
					t.Errorf("label %q number = %d, want %d", l.Name, l.EquationNumber, want)
				}
			}
		})
	}
}

func TestPreprocessCrossRefs_DisplayMathLabelNotAnchored(t *testing.T) {
	source := "Intro prose.\n\\[\nE=mc^2 \\label{eq:disp}\n\\]\nmore prose\n"
	res := PreprocessCrossRefs(source, nil)
	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if res.Stats.AnchorsInjected != 0 {
		t.Errorf("AnchorsInjected = %d, want 0", res.Stats.AnchorsInjected)
	}
	if strings.Contains(res.Source, `\hypertarget`) {
		t.Errorf("anchor injected inside display math: %q", res.Source)
	}
}

func TestPreprocessCrossRefs_NoLabelsUnchanged(t *testing.T) {
	source := "Plain document with $math$ but no labels."
	res := PreprocessCrossRefs(source, nil)
	if res.Source != source {
		t.Errorf("source changed without labels: %q", res.Source)
	}
	if res.Stats.AnchorsInjected != 0 {
		t.Errorf("AnchorsInjected = %d, want 0", res.Stats.AnchorsInjected)
	}
}
