// Package confidence scores a model completion with a fixed four-factor
// heuristic. The arithmetic is calibrated against the 0.70 delivery
// threshold; changing any constant changes which answers reach customers.
package confidence

import (
	"math"
	"regexp"
	"strings"
)

const (
	DefaultMinConfidence = 0.5
	DefaultMaxConfidence = 1.0
)

var (
	// Unicode separators and BOM count as whitespace, so non-breaking spaces
	// in completions still split words.
	whitespaceSplit = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)
	sentenceSplit   = regexp.MustCompile(`[.!?]+`)

	evidenceKeywords = []string{"specifically", "according to", "research shows", "data indicates"}
	hedgingPhrases   = []string{"may", "might", "could", "possibly", "perhaps", "im not sure"}
)

type Scorer struct {
	minConfidence float64
	maxConfidence float64
}

func NewScorer(minConfidence, maxConfidence float64) *Scorer {
	if minConfidence > maxConfidence {
		minConfidence, maxConfidence = maxConfidence, minConfidence
	}
	return &Scorer{minConfidence: minConfidence, maxConfidence: maxConfidence}
}

func NewDefaultScorer() *Scorer {
	return NewScorer(DefaultMinConfidence, DefaultMaxConfidence)
}

// Score returns the mean of the four factors clamped to [min, max].
func (s *Scorer) Score(response string) float64 {
	factors := Factors(response)
	avg := (factors.Length + factors.Keyword + factors.Uncertainty + factors.Coherence) / 4

	if math.IsNaN(avg) {
		return s.minConfidence
	}
	return math.Min(math.Max(avg, s.minConfidence), s.maxConfidence)
}

type FactorScores struct {
	Length      float64
	Keyword     float64
	Uncertainty float64
	Coherence   float64
}

func Factors(response string) FactorScores {
	return FactorScores{
		Length:      lengthFactor(response),
		Keyword:     keywordFactor(response),
		Uncertainty: uncertaintyFactor(response),
		Coherence:   coherenceFactor(response),
	}
}

// wordCount splits on whitespace runs and counts the pieces, including the
// empty pieces produced by leading or trailing whitespace.
func wordCount(text string) int {
	return len(whitespaceSplit.Split(text, -1))
}

func lengthFactor(response string) float64 {
	if strings.TrimSpace(response) == "" {
		return 0.5
	}

	words := wordCount(response)
	if words < 10 {
		return 0.5
	}
	if words > 100 {
		return 1.0
	}
	return 0.5 + float64(words-10)/180
}

func keywordFactor(response string) float64 {
	lower := strings.ToLower(response)
	count := 0
	for _, keyword := range evidenceKeywords {
		if strings.Contains(lower, keyword) {
			count++
		}
	}
	return 0.7 + float64(count)*0.1
}

func uncertaintyFactor(response string) float64 {
	lower := strings.ToLower(response)
	count := 0
	for _, phrase := range hedgingPhrases {
		if strings.Contains(lower, phrase) {
			count++
		}
	}
	return 1 - float64(count)*0.1
}

func coherenceFactor(response string) float64 {
	if strings.TrimSpace(response) == "" {
		return 0.5
	}

	sentences := sentenceSplit.Split(response, -1)
	total := 0
	for _, sentence := range sentences {
		total += wordCount(sentence)
	}

	avg := float64(total) / float64(len(sentences))
	if avg > 5 && avg < 20 {
		return 0.9
	}
	return 0.7
}
