package pipeline

import (
	"regexp"
	"strings"
)

// Chunk kinds, by the boundary that produced them.
const (
	ChunkIntro      = "intro"
	ChunkSection    = "section"
	ChunkSubsection = "subsection"
	ChunkWindow     = "window"
	ChunkDocument   = "document"
)

// Window-splitting constants for documents without usable sectioning.
const (
	// DefaultWindowSize is the target fragment size in characters.
	DefaultWindowSize = 20_000

	// windowSearch bounds how far from the target cut a paragraph break
	// is searched before falling back to a hard cut.
	windowSearch = 2_000
)

// Chunk is an ordered, independently convertible fragment of a larger
// document. WrappedContent carries the cleaned preamble and an explicit
// document-begin/end pair; only the first chunk keeps title metadata.
type Chunk struct {
	Type           string
	Title          string
	RawContent     string
	WrappedContent string
}

var (
	sectionBoundary    = regexp.MustCompile(`(?m)^[ \t]*\\section\*?\{`)
	subsectionBoundary = regexp.MustCompile(`(?m)^[ \t]*\\subsection\*?\{`)
	headingTitle       = regexp.MustCompile(`\\(?:sub)*section\*?\{([^}]*)\}`)
)

// Decompose splits a document body into ordered convertible chunks,
// trying top-level sections first, then subsections, then fixed-size
// windows snapped to the nearest paragraph break. Never fails: on any
// internal fault it degrades to a single whole-document chunk under a
// minimal synthesized preamble.
func Decompose(doc Document, windowSize int) (chunks []Chunk) {
	defer func() {
		if r := recover(); r != nil {
			chunks = []Chunk{wholeDocumentChunk(doc)}
		}
	}()

	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}

	fragments, kind := splitBody(doc.Body, windowSize)
	if len(fragments) < 2 {
		return []Chunk{soleChunk(doc)}
	}

	preamble := CleanPreamble(doc.Preamble)
	titleCmds := ExtractTitleCommands(doc.Preamble)

	chunks = make([]Chunk, 0, len(fragments))
	for i, frag := range fragments {
		raw := frag
		if i > 0 {
			raw = StripTitleCommands(raw)
		}

		chunkPreamble := preamble
		if i == 0 && len(titleCmds) > 0 {
			chunkPreamble += "\n" + strings.Join(titleCmds, "\n")
		}

		chunkKind := kind
		if i == 0 && kind != ChunkWindow && !headingTitle.MatchString(firstLine(raw)) {
			chunkKind = ChunkIntro
		}

		chunks = append(chunks, Chunk{
			Type:           chunkKind,
			Title:          fragmentTitle(raw),
			RawContent:     raw,
			WrappedContent: wrapFragment(chunkPreamble, raw),
		})
	}
	return chunks
}

// splitBody tries each boundary strategy in order of coarseness and
// returns the fragments of the first one that actually divides the body.
func splitBody(body string, windowSize int) ([]string, string) {
	if frags := splitAt(body, sectionBoundary); len(frags) >= 2 {
		return frags, ChunkSection
	}
	if frags := splitAt(body, subsectionBoundary); len(frags) >= 2 {
		return frags, ChunkSubsection
	}
	return splitWindows(body, windowSize), ChunkWindow
}

// splitAt divides body at every match of boundary, keeping the boundary
// with the fragment it opens. Introductory text before the first match
// becomes its own fragment.
func splitAt(body string, boundary *regexp.Regexp) []string {
	marks := boundary.FindAllStringIndex(body, -1)
	if len(marks) == 0 {
		return []string{body}
	}

	var frags []string
	prev := 0
	for _, m := range marks {
		if head := strings.TrimSpace(body[prev:m[0]]); head != "" {
			frags = append(frags, body[prev:m[0]])
		}
		prev = m[0]
	}
	frags = append(frags, body[prev:])

	for i := range frags {
		frags[i] = strings.TrimSpace(frags[i])
	}
	return frags
}

// splitWindows cuts body into fixed-size character windows, snapping
// each cut to the nearest paragraph break. When no break exists within
// the search distance in either direction, the cut is taken at the
// window size verbatim.
func splitWindows(body string, windowSize int) []string {
	if len(body) <= windowSize {
		return []string{body}
	}

	var frags []string
	rest := body
	for len(rest) > windowSize {
		cut := snapToParagraph(rest, windowSize)
		frags = append(frags, strings.TrimSpace(rest[:cut]))
		rest = rest[cut:]
	}
	if trimmed := strings.TrimSpace(rest); trimmed != "" {
		frags = append(frags, trimmed)
	}
	return frags
}

// snapToParagraph finds a paragraph break near target, preferring the
// nearest one before it, then the nearest one after.
func snapToParagraph(s string, target int) int {
	lo := target - windowSearch
	if lo < 0 {
		lo = 0
	}
	if i := strings.LastIndex(s[lo:target], "\n\n"); i >= 0 {
		return lo + i + 2
	}

	hi := target + windowSearch
	if hi > len(s) {
		hi = len(s)
	}
	if i := strings.Index(s[target:hi], "\n\n"); i >= 0 {
		return target + i + 2
	}

	return target
}

// wrapFragment re-wraps a fragment as a standalone document.
func wrapFragment(preamble, fragment string) string {
	return Document{Preamble: preamble, Body: fragment}.Join()
}

// soleChunk wraps an indivisible document as a single chunk under its
// own cleaned preamble, keeping the packages the body depends on.
func soleChunk(doc Document) Chunk {
	preamble := CleanPreamble(doc.Preamble)
	if titleCmds := ExtractTitleCommands(doc.Preamble); len(titleCmds) > 0 {
		preamble += "\n" + strings.Join(titleCmds, "\n")
	}
	return Chunk{
		Type:           ChunkDocument,
		RawContent:     doc.Body,
		WrappedContent: wrapFragment(preamble, doc.Body),
	}
}

// wholeDocumentChunk is the internal-failure fallback: the original
// preamble cannot be trusted after a panic, so a minimal synthesized
// one takes its place.
func wholeDocumentChunk(doc Document) Chunk {
	return Chunk{
		Type:           ChunkDocument,
		RawContent:     doc.Body,
		WrappedContent: wrapFragment(MinimalPreamble, doc.Body),
	}
}

func fragmentTitle(fragment string) string {
	if m := headingTitle.FindStringSubmatch(fragment); m != nil {
		return m[1]
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}
