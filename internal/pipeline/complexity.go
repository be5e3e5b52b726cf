package pipeline

import (
	"regexp"
	"strings"
	"time"
)

// Complexity levels in ascending order of expected processing cost.
const (
	LevelBasic        = "basic"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
	LevelComplex      = "complex"
)

// Scoring thresholds. A document above either threshold is decomposed
// into chunks before conversion.
const (
	// ScoreThreshold is the complexity score above which chunking is required.
	ScoreThreshold = 50.0

	// LengthThreshold is the raw character count above which chunking is
	// required regardless of score.
	LengthThreshold = 50_000

	// Level boundaries.
	intermediateScore = 10.0
	advancedScore     = 25.0
	complexScore      = 50.0
)

// Processing-time estimation constants.
const (
	baseProcessingTime = 3 * time.Second
	timePerScorePoint  = 150 * time.Millisecond

	// MaxProcessingTime caps the estimate for pathological documents.
	MaxProcessingTime = 45 * time.Second
)

// ComplexityProfile scores a document's likely conversion cost from
// structural indicators. Pure function of the input text.
type ComplexityProfile struct {
	Score            float64
	Level            string
	RequiresChunking bool
	EstimatedTime    time.Duration

	// Raw indicator counts, retained for diagnostics.
	Equations    int
	DisplayMath  int
	Matrices     int
	Environments int
	Sections     int
	Tables       int
	Figures      int
	Commands     int
	Characters   int
	Lines        int
}

// Precompiled structural indicator patterns.
var (
	equationEnvPattern = regexp.MustCompile(`\\begin\{(equation|align|gather|multline|eqnarray)\*?\}`)
	displayMathPattern = regexp.MustCompile(`\\\[|\$\$`)
	matrixEnvPattern   = regexp.MustCompile(`\\begin\{(p|b|v|V|small)?matrix\}`)
	anyEnvPattern      = regexp.MustCompile(`\\begin\{[a-zA-Z*]+\}`)
	sectionPattern     = regexp.MustCompile(`\\(chapter|section|subsection|subsubsection)\*?\{`)
	tableEnvPattern    = regexp.MustCompile(`\\begin\{(table|tabular|longtable)\*?\}`)
	figurePattern      = regexp.MustCompile(`\\begin\{figure\*?\}|\\includegraphics`)
	commandPattern     = regexp.MustCompile(`\\[a-zA-Z]+`)
)

// Indicator weights. Matrix environments dominate because the engine's
// memory use grows sharply with matrix cell count.
const (
	weightEquation    = 1.0
	weightDisplayMath = 2.0
	weightMatrix      = 5.0
	weightEnvironment = 2.0
	weightSection     = 3.0
	weightTable       = 3.0
	weightFigure      = 2.0
	weightCommand     = 0.1
)

// Assess scores document body text. Deterministic and side-effect free;
// empty input yields a zero profile rather than an error.
func Assess(body string) ComplexityProfile {
	if strings.TrimSpace(body) == "" {
		return ComplexityProfile{Level: LevelBasic, EstimatedTime: baseProcessingTime}
	}

	p := ComplexityProfile{
		Equations:    len(equationEnvPattern.FindAllString(body, -1)),
		DisplayMath:  len(displayMathPattern.FindAllString(body, -1)),
		Matrices:     len(matrixEnvPattern.FindAllString(body, -1)),
		Environments: len(anyEnvPattern.FindAllString(body, -1)),
		Sections:     len(sectionPattern.FindAllString(body, -1)),
		Tables:       len(tableEnvPattern.FindAllString(body, -1)),
		Figures:      len(figurePattern.FindAllString(body, -1)),
		Commands:     len(commandPattern.FindAllString(body, -1)),
		Characters:   len(body),
		Lines:        strings.Count(body, "\n") + 1,
	}

	p.Score = float64(p.Equations)*weightEquation +
		float64(p.DisplayMath)*weightDisplayMath +
		float64(p.Matrices)*weightMatrix +
		float64(p.Environments)*weightEnvironment +
		float64(p.Sections)*weightSection +
		float64(p.Tables)*weightTable +
		float64(p.Figures)*weightFigure +
		float64(p.Commands)*weightCommand +
		float64(p.Characters)/1000 +
		float64(p.Lines)/100

	p.Level = levelForScore(p.Score)
	p.RequiresChunking = p.Score > ScoreThreshold || p.Characters > LengthThreshold

	estimate := baseProcessingTime + time.Duration(p.Score)*timePerScorePoint
	if estimate > MaxProcessingTime {
		estimate = MaxProcessingTime
	}
	p.EstimatedTime = estimate

	return p
}

func levelForScore(score float64) string {
	switch {
	case score < intermediateScore:
		return LevelBasic
	case score < advancedScore:
		return LevelIntermediate
	case score < complexScore:
		return LevelAdvanced
	default:
		return LevelComplex
	}
}
