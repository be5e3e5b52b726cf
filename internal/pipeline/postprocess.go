package pipeline

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"golang.org/x/net/html"
)

// Post-conversion patterns over the engine's HTML output. The engine
// emits stable markup for title blocks and math spans, so string-level
// matching is safe here.
var (
	titleBlockPattern = regexp.MustCompile(`(?s)<header id="title-block-header">.*?</header>`)
	titleHeadPattern  = regexp.MustCompile(`(?s)<h1 class="title">.*?</h1>`)
	mathSpanPattern   = regexp.MustCompile(`(?s)<span class="math (inline|display)">(.*?)</span>`)
	mathLabelPattern  = regexp.MustCompile(`\\label\{([^}]+)\}`)
	codeBlockPattern  = regexp.MustCompile(`(?s)<pre><code class="language-([A-Za-z0-9_+-]+)">(.*?)</code></pre>`)
)

// StripDocumentWrapper reduces a full standalone HTML document to its
// body content. Input that is already a fragment passes through
// unchanged, as does anything the HTML parser cannot handle.
func StripDocumentWrapper(doc string) string {
	if !strings.Contains(doc, "<body") {
		return doc
	}

	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return doc
	}
	body := findElement(root, "body")
	if body == nil {
		return doc
	}

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return doc
		}
	}
	return strings.TrimSpace(buf.String())
}

// RemoveDuplicateTitleBlocks keeps the first rendered title block and
// removes every later one. Chunked conversion can only duplicate titles
// if metadata stripping missed a fragment, but the engine also emits a
// second block for some documents with both \maketitle and metadata.
func RemoveDuplicateTitleBlocks(doc string) string {
	doc = keepFirst(doc, titleBlockPattern)
	doc = keepFirst(doc, titleHeadPattern)
	return doc
}

func keepFirst(doc string, pattern *regexp.Regexp) string {
	first := true
	return pattern.ReplaceAllStringFunc(doc, func(m string) string {
		if first {
			first = false
			return m
		}
		return ""
	})
}

// ChunkErrorHTML renders the inline error markup that takes a failed
// chunk's place in the reassembled output.
func ChunkErrorHTML(title, message string) string {
	heading := "This part of the document could not be converted."
	if title != "" {
		heading = fmt.Sprintf("The part %q could not be converted.", title)
	}
	return fmt.Sprintf(
		`<div class="chunk-conversion-error" role="alert"><p>%s</p><p>%s</p></div>`,
		html.EscapeString(heading),
		html.EscapeString(message),
	)
}

// FixEquationAnchors places anchors for equation labels after
// conversion, next to the rendered math elements. The preprocessor
// deliberately skips these labels: several can collapse onto a single
// math block, so only the rendered output shows where anchors belong.
// The \label commands are stripped from the math text so the typesetter
// never sees them. Returns the rewritten document and the anchor count.
func FixEquationAnchors(doc string, eqLabels map[string]Label) (string, int) {
	if len(eqLabels) == 0 {
		return doc, 0
	}

	anchored := 0
	out := mathSpanPattern.ReplaceAllStringFunc(doc, func(span string) string {
		labels := mathLabelPattern.FindAllStringSubmatch(span, -1)
		if len(labels) == 0 {
			return span
		}

		var anchors strings.Builder
		for _, m := range labels {
			name := m[1]
			if _, ok := eqLabels[name]; !ok {
				continue
			}
			anchors.WriteString(`<span id="` + html.EscapeString(name) + `" class="equation-anchor"></span>`)
			anchored++
		}

		cleaned := mathLabelPattern.ReplaceAllString(span, "")
		return anchors.String() + cleaned
	})
	return out, anchored
}

// HighlightCode runs the engine's plain code blocks through chroma with
// the named style. Blocks with unknown languages fall back to chroma's
// plaintext lexer; a block that fails to tokenize is left untouched.
func HighlightCode(doc, styleName string) string {
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	formatter := chromahtml.New(chromahtml.WithClasses(false))

	return codeBlockPattern.ReplaceAllStringFunc(doc, func(block string) string {
		m := codeBlockPattern.FindStringSubmatch(block)
		if m == nil {
			return block
		}
		lang, code := m[1], html.UnescapeString(m[2])

		lexer := lexers.Get(lang)
		if lexer == nil {
			lexer = lexers.Fallback
		}
		lexer = chroma.Coalesce(lexer)

		iterator, err := lexer.Tokenise(nil, code)
		if err != nil {
			return block
		}
		var buf bytes.Buffer
		if err := formatter.Format(&buf, style, iterator); err != nil {
			return block
		}
		return buf.String()
	})
}

// findElement returns the first element with the given tag, depth-first.
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
