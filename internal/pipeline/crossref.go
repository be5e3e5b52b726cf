package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// LabelType classifies a cross-reference target by its enclosing construct.
type LabelType string

// Label types inferred from the construct surrounding a \label command.
const (
	LabelTheorem  LabelType = "theorem"
	LabelEquation LabelType = "equation"
	LabelFigure   LabelType = "figure"
	LabelTable    LabelType = "table"
	LabelSection  LabelType = "section"
	LabelGeneric  LabelType = "generic"
)

// typeWindow bounds how far back type inference looks for an enclosing
// construct. Labels normally sit within a few lines of their environment.
const typeWindow = 400

// Label is a named cross-reference target.
type Label struct {
	Name     string
	Position int // byte offset of the \label command
	End      int // byte offset just past the closing brace
	Type     LabelType

	// EquationNumber is the running equation counter value assigned to
	// labels inside numbered math environments; zero means unnumbered.
	EquationNumber int
}

// Reference is a citation of a label: \ref, \eqref or \pageref.
type Reference struct {
	Name     string
	Kind     string // "ref", "eqref", "pageref"
	Position int
}

// CrossRefStats summarizes one preprocessor run.
type CrossRefStats struct {
	Labels             int
	References         int
	AnchorsInjected    int
	NumberedEquations  int
	OrphanedReferences []string
}

// PreprocessResult carries the rewritten source and run statistics.
// On internal failure Success is false and Source is the original,
// un-rewritten input; conversion proceeds either way.
type PreprocessResult struct {
	Success bool
	Source  string
	Stats   CrossRefStats
	Err     error
}

// Cross-reference scanning patterns.
var (
	labelPattern     = regexp.MustCompile(`\\label\{([^}]+)\}`)
	referencePattern = regexp.MustCompile(`\\(ref|eqref|pageref)\{([^}]+)\}`)
	envMarkerPattern = regexp.MustCompile(`\\(begin|end)\{([a-zA-Z]+\*?)\}`)
	sectioningCmd    = regexp.MustCompile(`\\(chapter|section|subsection|subsubsection)\*?\{`)
	lineBreakPattern = regexp.MustCompile(`\\\\`)
)

// Environment name sets for label type inference.
var (
	theoremEnvs = map[string]bool{
		"theorem": true, "lemma": true, "corollary": true, "proposition": true,
		"definition": true, "remark": true, "example": true, "conjecture": true,
		"claim": true, "proof": true,
	}
	mathEnvs = map[string]bool{
		"equation": true, "align": true, "gather": true, "multline": true,
		"eqnarray": true, "alignat": true, "math": true, "displaymath": true,
		"split": true,
	}

	// Numbered environments increment the equation counter. Starred
	// variants never do.
	numberedEnvs = map[string]bool{
		"equation": true, "align": true, "gather": true, "multline": true,
		"eqnarray": true, "alignat": true,
	}

	// Multi-row environments additionally advance the counter on each
	// interior line break. multline is numbered once for the whole block.
	multiRowEnvs = map[string]bool{
		"align": true, "gather": true, "eqnarray": true, "alignat": true,
	}
)

// PreprocessCrossRefs rewrites source so cross-references resolve in the
// converted output without engine support: it extracts labels and
// references, computes equation numbers, and injects \hypertarget anchors
// after every non-equation label. Equation labels are left un-anchored
// here; several can collapse onto one rendered math block, so their
// anchors are placed by the post-conversion fixer instead.
//
// The registry, when non-nil, is cleared and rebuilt from this run.
// Any internal panic degrades to returning the original source.
func PreprocessCrossRefs(source string, reg *Registry) (result PreprocessResult) {
	defer func() {
		if r := recover(); r != nil {
			result = PreprocessResult{
				Success: false,
				Source:  source,
				Err:     fmt.Errorf("cross-reference preprocessing failed: %v", r),
			}
		}
	}()

	labels := extractLabels(source)
	numbered := assignEquationNumbers(source, labels)
	references := extractReferences(source)
	orphaned := findOrphans(labels, references)

	rewritten, injected := injectAnchors(source, labels)

	stats := CrossRefStats{
		Labels:             len(labels),
		References:         len(references),
		AnchorsInjected:    injected,
		NumberedEquations:  numbered,
		OrphanedReferences: orphaned,
	}

	if reg != nil {
		reg.Build(labels, references, stats)
	}

	return PreprocessResult{Success: true, Source: rewritten, Stats: stats}
}

// extractLabels scans for \label commands and infers each label's type
// from the surrounding text. Duplicate names keep the first occurrence.
func extractLabels(source string) []Label {
	matches := labelPattern.FindAllStringSubmatchIndex(source, -1)
	labels := make([]Label, 0, len(matches))
	seen := make(map[string]bool, len(matches))

	for _, m := range matches {
		name := source[m[2]:m[3]]
		if seen[name] {
			continue
		}
		seen[name] = true
		labels = append(labels, Label{
			Name:     name,
			Position: m[0],
			End:      m[1],
			Type:     inferLabelType(source, m[0]),
		})
	}
	return labels
}

// inferLabelType inspects a bounded window of preceding text and returns
// the type of the nearest enclosing construct.
func inferLabelType(source string, pos int) LabelType {
	start := pos - typeWindow
	if start < 0 {
		start = 0
	}
	window := source[start:pos]

	// Display-math delimiters carry no environment markers: an unclosed
	// \[ or an odd run of $$ before the label puts it inside math, where
	// an injected anchor would corrupt the block.
	if open := strings.LastIndex(window, `\[`); open > strings.LastIndex(window, `\]`) {
		return LabelEquation
	}
	if strings.Count(window, "$$")%2 == 1 {
		return LabelEquation
	}

	// Track environment nesting within the window; the deepest unclosed
	// environment is the enclosing construct.
	var stack []string
	for _, m := range envMarkerPattern.FindAllStringSubmatch(window, -1) {
		switch m[1] {
		case "begin":
			stack = append(stack, m[2])
		case "end":
			if len(stack) > 0 && stack[len(stack)-1] == m[2] {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(stack) > 0 {
		env := strings.TrimSuffix(stack[len(stack)-1], "*")
		switch {
		case theoremEnvs[env]:
			return LabelTheorem
		case mathEnvs[env]:
			return LabelEquation
		case env == "figure":
			return LabelFigure
		case env == "table" || env == "tabular" || env == "longtable":
			return LabelTable
		}
		return LabelGeneric
	}

	if sectioningCmd.MatchString(window) {
		return LabelSection
	}
	return LabelGeneric
}

// extractReferences scans for \ref, \eqref and \pageref commands.
func extractReferences(source string) []Reference {
	matches := referencePattern.FindAllStringSubmatchIndex(source, -1)
	refs := make([]Reference, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, Reference{
			Kind:     source[m[2]:m[3]],
			Name:     source[m[4]:m[5]],
			Position: m[0],
		})
	}
	return refs
}

// findOrphans lists reference names with no matching label, in first-seen
// order. Orphans are recorded, never fatal.
func findOrphans(labels []Label, refs []Reference) []string {
	known := make(map[string]bool, len(labels))
	for _, l := range labels {
		known[l.Name] = true
	}

	var orphans []string
	seen := make(map[string]bool)
	for _, r := range refs {
		if !known[r.Name] && !seen[r.Name] {
			seen[r.Name] = true
			orphans = append(orphans, r.Name)
		}
	}
	return orphans
}

// Equation-numbering event kinds, in tie-break order at equal positions:
// an environment must open before a label inside it is processed.
const (
	evBegin = iota
	evBreak
	evLabel
	evEnd
)

type eqEvent struct {
	pos      int
	kind     int
	env      string // normalized, without star
	starred  bool
	labelIdx int
}

// assignEquationNumbers walks a merged, position-sorted stream of
// environment markers, line breaks and labels, mutating labels in place.
// Only non-starred numbered environments advance the counter; multi-row
// environments advance it again on each interior line break, but only
// for their own row breaks: a \\ inside a nested environment (cases, a
// matrix) belongs to that environment's rows. Every environment is
// tracked on the stack so nesting is visible. Returns the final counter
// value.
func assignEquationNumbers(source string, labels []Label) int {
	var events []eqEvent

	for _, m := range envMarkerPattern.FindAllStringSubmatchIndex(source, -1) {
		marker := source[m[2]:m[3]]
		name := source[m[4]:m[5]]
		kind := evBegin
		if marker == "end" {
			kind = evEnd
		}
		events = append(events, eqEvent{
			pos:     m[0],
			kind:    kind,
			env:     strings.TrimSuffix(name, "*"),
			starred: strings.HasSuffix(name, "*"),
		})
	}

	for _, m := range lineBreakPattern.FindAllStringIndex(source, -1) {
		events = append(events, eqEvent{pos: m[0], kind: evBreak})
	}

	for i := range labels {
		events = append(events, eqEvent{pos: labels[i].Position, kind: evLabel, labelIdx: i})
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].pos != events[j].pos {
			return events[i].pos < events[j].pos
		}
		return events[i].kind < events[j].kind
	})

	type frame struct {
		env     string
		starred bool
	}
	var stack []frame
	counter := 0
	current := 0

	// Innermost frame from the numbered-environment family, starred or
	// not. A label binds to this frame, never to a nested cases/matrix.
	enclosingNumbered := func() (frame, bool) {
		for i := len(stack) - 1; i >= 0; i-- {
			if numberedEnvs[stack[i].env] {
				return stack[i], true
			}
		}
		return frame{}, false
	}

	for _, ev := range events {
		switch ev.kind {
		case evBegin:
			stack = append(stack, frame{env: ev.env, starred: ev.starred})
			if numberedEnvs[ev.env] && !ev.starred {
				counter++
				current = counter
			}
		case evEnd:
			if len(stack) > 0 && stack[len(stack)-1].env == ev.env {
				stack = stack[:len(stack)-1]
			}
			if _, ok := enclosingNumbered(); !ok {
				current = 0
			}
		case evBreak:
			// A row break advances the counter only when it belongs to the
			// multi-row environment itself, not to a nested environment.
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				if !top.starred && multiRowEnvs[top.env] {
					counter++
					current = counter
				}
			}
		case evLabel:
			f, ok := enclosingNumbered()
			if !ok || f.starred {
				continue
			}
			labels[ev.labelIdx].EquationNumber = current
			labels[ev.labelIdx].Type = LabelEquation
		}
	}

	return counter
}

// injectAnchors inserts a \hypertarget marker immediately after every
// non-equation label. A single left-to-right pass over the original
// source keeps recorded offsets valid as insertions accumulate.
func injectAnchors(source string, labels []Label) (string, int) {
	var b strings.Builder
	b.Grow(len(source) + len(labels)*24)

	last := 0
	injected := 0
	for _, l := range labels {
		if l.Type == LabelEquation {
			continue
		}
		b.WriteString(source[last:l.End])
		b.WriteString(`\hypertarget{` + l.Name + `}{}`)
		last = l.End
		injected++
	}
	b.WriteString(source[last:])
	return b.String(), injected
}
