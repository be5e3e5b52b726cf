package pipeline

import (
	"regexp"
	"strings"
)

// Markers delimiting the document body in LaTeX source.
const (
	beginDocument = `\begin{document}`
	endDocument   = `\end{document}`
)

// MinimalPreamble is used when a document carries no preamble of its own,
// or when preamble reconstruction fails. It guarantees the math packages
// the conversion engine needs for typical scientific content.
const MinimalPreamble = `\documentclass{article}
\usepackage{amsmath}
\usepackage{amssymb}`

// Document is LaTeX source split into its preamble and body.
// Join() always reconstructs a structurally valid document.
type Document struct {
	Preamble string
	Body     string
}

// Precompiled patterns for preamble cleaning and metadata stripping.
var (
	documentClassPattern = regexp.MustCompile(`(?m)^\\documentclass(\[[^\]]*\])?\{[^}]*\}.*$`)
	usePackagePattern    = regexp.MustCompile(`(?m)^\\usepackage(\[[^\]]*\])?\{[^}]*\}.*$`)
	titleMetaPattern     = regexp.MustCompile(`\\(title|author|date)\{(?:[^{}]|\{[^{}]*\})*\}`)
	makeTitlePattern     = regexp.MustCompile(`\\maketitle`)
)

// SplitDocument separates LaTeX source into preamble and body.
// Source without \begin{document} is treated as bare body under a
// synthesized minimal preamble.
func SplitDocument(source string) Document {
	begin := strings.Index(source, beginDocument)
	if begin < 0 {
		return Document{
			Preamble: MinimalPreamble,
			Body:     source,
		}
	}

	preamble := strings.TrimSpace(source[:begin])
	rest := source[begin+len(beginDocument):]

	if end := strings.LastIndex(rest, endDocument); end >= 0 {
		rest = rest[:end]
	}

	if preamble == "" {
		preamble = MinimalPreamble
	}

	return Document{
		Preamble: preamble,
		Body:     strings.TrimSpace(rest),
	}
}

// Join reassembles the document into valid LaTeX source.
func (d Document) Join() string {
	return d.Preamble + "\n" + beginDocument + "\n" + d.Body + "\n" + endDocument + "\n"
}

// CleanPreamble reduces a preamble to its document class and package
// declarations, guaranteeing amsmath and amssymb are present. Fragments
// wrapped with the result stay independently convertible without
// dragging in preamble code that only makes sense once per document
// (custom counters, title metadata, hyphenation setup).
func CleanPreamble(preamble string) string {
	var lines []string

	if class := documentClassPattern.FindString(preamble); class != "" {
		lines = append(lines, class)
	} else {
		lines = append(lines, `\documentclass{article}`)
	}

	packages := usePackagePattern.FindAllString(preamble, -1)
	lines = append(lines, packages...)

	joined := strings.Join(lines, "\n")
	for _, pkg := range []string{"amsmath", "amssymb"} {
		if !strings.Contains(joined, "{"+pkg+"}") {
			joined += "\n\\usepackage{" + pkg + "}"
		}
	}
	return joined
}

// StripTitleCommands removes \title, \author, \date and \maketitle from a
// fragment. Applied to every chunk after the first so the reassembled
// output contains a single title block.
func StripTitleCommands(fragment string) string {
	fragment = titleMetaPattern.ReplaceAllString(fragment, "")
	fragment = makeTitlePattern.ReplaceAllString(fragment, "")
	return fragment
}

// ExtractTitleCommands returns the title metadata commands found in the
// preamble or body, in source order. The decomposer carries them onto the
// first chunk only.
func ExtractTitleCommands(source string) []string {
	return titleMetaPattern.FindAllString(source, -1)
}
