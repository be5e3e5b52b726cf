// Package typeset renders the math left in converted HTML to MathML.
// The conversion engine emits math spans with the original TeX inside;
// this package replaces each span with a MathML element carrying the
// TeX source as its alttext annotation.
package typeset

import (
	"bytes"
	"errors"
	"regexp"
	"strings"

	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
)

var (
	mathSpanPattern = regexp.MustCompile(`(?s)<span class="math (inline|display)">(.*?)</span>`)
	mathElemPattern = regexp.MustCompile(`(?s)<math[^>]*>.*?</math>`)
)

// ErrNoMathOutput means the renderer produced no MathML for the input.
var ErrNoMathOutput = errors.New("no MathML produced")

// Typesetter renders TeX math to MathML.
type Typesetter struct {
	md goldmark.Markdown
}

// New creates a Typesetter backed by the treeblood MathML renderer.
func New() *Typesetter {
	return &Typesetter{
		md: goldmark.New(
			goldmark.WithExtensions(
				treeblood.MathML(),
			),
		),
	}
}

// Typeset renders every math span in the document. Returns the rewritten
// document plus the counts of spans typeset and spans left untouched
// because rendering failed. Per-span failures are non-fatal: the
// original span stays in place.
func (t *Typesetter) Typeset(doc string) (out string, typeset, failed int) {
	out = mathSpanPattern.ReplaceAllStringFunc(doc, func(span string) string {
		m := mathSpanPattern.FindStringSubmatch(span)
		if m == nil {
			return span
		}
		display := m[1] == "display"
		tex := stripDelimiters(html.UnescapeString(m[2]))
		if strings.TrimSpace(tex) == "" {
			return span
		}

		rendered, err := t.render(tex, display)
		if err != nil {
			failed++
			return span
		}
		typeset++
		return rendered
	})
	return out, typeset, failed
}

// render converts one TeX fragment to an annotated MathML element.
func (t *Typesetter) render(tex string, display bool) (string, error) {
	delim := "$"
	if display {
		delim = "$$"
	}

	var buf bytes.Buffer
	if err := t.md.Convert([]byte(delim+tex+delim), &buf); err != nil {
		return "", err
	}

	mathml := mathElemPattern.FindString(buf.String())
	if mathml == "" {
		return "", ErrNoMathOutput
	}
	return addAltText(mathml, tex), nil
}

// addAltText attaches the TeX source as the element's alttext attribute.
// Accessibility annotation tooling looks for this attribute; the resource
// guardian treats math elements without it as annotation-in-flight.
func addAltText(mathml, tex string) string {
	if strings.Contains(mathml[:strings.Index(mathml, ">")+1], "alttext=") {
		return mathml
	}
	escaped := html.EscapeString(strings.TrimSpace(tex))
	return `<math alttext="` + escaped + `"` + strings.TrimPrefix(mathml, "<math")
}

// stripDelimiters removes the \(..\), \[..\] or $ fences the engine
// keeps around math content.
func stripDelimiters(tex string) string {
	tex = strings.TrimSpace(tex)
	switch {
	case strings.HasPrefix(tex, `\(`) && strings.HasSuffix(tex, `\)`):
		return tex[2 : len(tex)-2]
	case strings.HasPrefix(tex, `\[`) && strings.HasSuffix(tex, `\]`):
		return tex[2 : len(tex)-2]
	case strings.HasPrefix(tex, "$$") && strings.HasSuffix(tex, "$$") && len(tex) > 4:
		return tex[2 : len(tex)-2]
	case strings.HasPrefix(tex, "$") && strings.HasSuffix(tex, "$") && len(tex) > 2:
		return tex[1 : len(tex)-1]
	}
	return tex
}
