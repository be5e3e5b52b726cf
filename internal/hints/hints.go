// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"strings"
)

// ForEngineMissing returns hints for a missing conversion engine binary.
func ForEngineMissing(binary string) string {
	var hints []string

	if binary == "" || binary == "pandoc" {
		hints = append(hints, "install pandoc (https://pandoc.org/installing.html)")
	}
	hints = append(hints, "use --engine /path/to/pandoc to select a custom binary")

	return formatHints(hints)
}

// ForTimeout returns a hint about increasing timeout for slow conversions.
func ForTimeout() string {
	return format("for large documents, use --timeout flag")
}

// ForMemory returns a hint for engine memory exhaustion that chunking
// could not recover.
func ForMemory() string {
	return format("split the document into smaller files, or lower --chunk-window")
}

// ForConfigNotFound returns hints for config file not found errors.
// Suggests --config flag and creating a config in ~/.config/go-tex2html/.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/file.yaml"

	// Find a user config path (contains .config/go-tex2html) to suggest
	for _, p := range searchedPaths {
		if strings.Contains(p, ".config/go-tex2html") {
			hint += " or create " + p
			break
		}
	}

	return format(hint)
}

// formatHints joins multiple hints, each on its own line.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	var b strings.Builder
	for _, h := range hints {
		b.WriteString(format(h))
	}
	return b.String()
}

// format renders a single hint line.
func format(hint string) string {
	return "\n  hint: " + hint
}
