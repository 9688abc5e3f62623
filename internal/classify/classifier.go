// Package classify labels a query's text and derives its QueryFeatures.
// Classification is rule-based and deterministic — no LLM in the hot
// path.
package classify

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agentmem/hrce/pkg/hrce"
)

var (
	exactIDRegex = regexp.MustCompile(`^[A-Za-z]{1,5}\d{2,}$`)
	uuidRegex    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	isoDateRegex = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

	temporalTokens = map[string]bool{
		"yesterday": true, "today": true, "tomorrow": true,
		"last week": true, "this week": true, "last month": true, "this month": true,
		"last year": true, "this year": true,
	}

	interrogativePrefixes = []string{
		"what", "why", "how", "when", "where", "who", "can", "do", "does", "is", "are",
	}
)

// Classifier assigns a QueryType and computes QueryFeatures. It is pure,
// total, and O(|text|).
type Classifier struct{}

// New constructs a Classifier. There is no configuration: every rule is
// a fixed constant, baked into package-level values rather than a config
// struct for this kind of pure-function component.
func New() *Classifier {
	return &Classifier{}
}

// Classify labels query and returns its derived features.
// First-match-wins precedence: ExactID, Temporal, ShortKeyword,
// NaturalLanguage, then Semantic as the default.
func (c *Classifier) Classify(text string) (hrce.QueryType, hrce.QueryFeatures) {
	features := computeFeatures(text)
	trimmed := strings.TrimSpace(text)

	if isExactID(trimmed) {
		return hrce.QueryTypeExactID, features
	}
	if features.HasTemporalIndicator {
		return hrce.QueryTypeTemporal, features
	}
	tokenCount := len(strings.Fields(trimmed))
	if tokenCount <= 3 && !strings.Contains(trimmed, "?") {
		return hrce.QueryTypeShortKeyword, features
	}
	if features.IsQuestion {
		return hrce.QueryTypeNaturalLanguage, features
	}
	return hrce.QueryTypeSemantic, features
}

func isExactID(text string) bool {
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		return true
	}
	if len(text) >= 2 && strings.HasPrefix(text, "'") && strings.HasSuffix(text, "'") {
		return true
	}
	if exactIDRegex.MatchString(text) {
		return true
	}
	if uuidRegex.MatchString(text) {
		return true
	}
	return false
}

func computeFeatures(text string) hrce.QueryFeatures {
	trimmed := strings.TrimSpace(text)
	tokens := strings.Fields(trimmed)

	return hrce.QueryFeatures{
		HasExactTerms:        hasExactTerms(trimmed),
		SemanticComplexity:   semanticComplexity(trimmed, tokens),
		HasTemporalIndicator: hasTemporalIndicator(trimmed),
		EntityCount:          entityCount(tokens),
		QueryLength:          len(trimmed),
		IsQuestion:           isQuestion(trimmed),
	}
}

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	urlRegex   = regexp.MustCompile(`https?://\S+`)
)

// hasExactTerms detects email/URL/quoted/id-like tokens.
func hasExactTerms(text string) bool {
	if emailRegex.MatchString(text) || urlRegex.MatchString(text) {
		return true
	}
	if strings.Contains(text, `"`) {
		return true
	}
	for _, tok := range strings.Fields(text) {
		if exactIDRegex.MatchString(tok) || uuidRegex.MatchString(tok) {
			return true
		}
	}
	return false
}

// semanticComplexity blends token count, average word length, and
// punctuation density into a 0..1 score.
func semanticComplexity(text string, tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	tokenScore := clamp01(float64(len(tokens)) / 20.0)

	totalLen := 0
	for _, t := range tokens {
		totalLen += len(t)
	}
	avgWordLen := float64(totalLen) / float64(len(tokens))
	wordLenScore := clamp01((avgWordLen - 3) / 7.0)

	punctCount := 0
	for _, r := range text {
		if unicode.IsPunct(r) {
			punctCount++
		}
	}
	punctDensity := 0.0
	if len(text) > 0 {
		punctDensity = float64(punctCount) / float64(len(text))
	}
	punctScore := clamp01(punctDensity * 10)

	return clamp01((tokenScore + wordLenScore + punctScore) / 3.0)
}

func hasTemporalIndicator(text string) bool {
	lower := strings.ToLower(text)
	for token := range temporalTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return isoDateRegex.MatchString(text)
}

// entityCount is a capitalized-word heuristic: count tokens that start with
// an uppercase letter and aren't the first word of a sentence (first word
// is excluded to avoid over-counting plain sentence-initial capitalization).
func entityCount(tokens []string) int {
	count := 0
	for i, t := range tokens {
		if i == 0 {
			continue
		}
		cleaned := strings.TrimFunc(t, func(r rune) bool { return !unicode.IsLetter(r) })
		if cleaned == "" {
			continue
		}
		r := []rune(cleaned)[0]
		if unicode.IsUpper(r) {
			count++
		}
	}
	return count
}

func isQuestion(text string) bool {
	if strings.HasSuffix(strings.TrimSpace(text), "?") {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, prefix := range interrogativePrefixes {
		if strings.HasPrefix(lower, prefix+" ") || lower == prefix {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
