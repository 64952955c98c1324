package mockup

import (
	"regexp"
)

// Weight ties a keyword or pattern to the score it contributes on a match.
type Weight struct {
	Term  string
	Value float64
}

type weightedPattern struct {
	pattern *regexp.Regexp
	value   float64
}

// Rules is the keyword and pattern vocabulary used to recognise mockup
// imagery. A Rules value is never modified after construction and is safe to
// share between goroutines.
type Rules struct {
	keywords       []string
	patterns       []*regexp.Regexp
	keywordWeights []Weight
	patternWeights []weightedPattern
}

// DefaultRules covers English and Turkish listing vocabulary.
func DefaultRules() *Rules {
	return &Rules{
		keywords: []string{
			"mockup", "mokap", "frame", "psd", "mock",
			"template", "placeholder", "sample", "preview",
			"çerçeve", "şablon", "örnek", "önizleme",
		},
		patterns: []*regexp.Regexp{
			mockUpPattern,
			framePattern,
			regexp.MustCompile(`(?i)psd[-_]?\d*`),
			regexp.MustCompile(`(?i)template[-_]?\d*`),
			regexp.MustCompile(`(?i)placeholder[-_]?\d*`),
			regexp.MustCompile(`(?i)çerçeve[-_]?\d*`),
			regexp.MustCompile(`(?i)şablon[-_]?\d*`),
		},
		keywordWeights: []Weight{
			{Term: "mockup", Value: 0.9},
			{Term: "mokap", Value: 0.9},
			{Term: "frame", Value: 0.8},
			{Term: "çerçeve", Value: 0.8},
			{Term: "psd", Value: 0.7},
			{Term: "template", Value: 0.6},
			{Term: "şablon", Value: 0.6},
			{Term: "placeholder", Value: 0.5},
			// Weak signals. Every classify keyword carries some weight so a
			// positive classification never scores zero.
			{Term: "mock", Value: 0.3},
			{Term: "sample", Value: 0.3},
			{Term: "preview", Value: 0.3},
			{Term: "örnek", Value: 0.3},
			{Term: "önizleme", Value: 0.3},
		},
		patternWeights: []weightedPattern{
			{pattern: mockUpPattern, value: 0.9},
			{pattern: framePattern, value: 0.8},
		},
	}
}

var (
	mockUpPattern = regexp.MustCompile(`(?i)mock[-_ ]?up`)
	framePattern  = regexp.MustCompile(`(?i)frame[-_]?\d*`)
)

// Keywords returns a copy of the keyword list.
func (r *Rules) Keywords() []string {
	return append([]string(nil), r.keywords...)
}

// KeywordWeights returns a copy of the keyword weight table.
func (r *Rules) KeywordWeights() []Weight {
	return append([]Weight(nil), r.keywordWeights...)
}

func (r *Rules) matches(text string) bool {
	for _, keyword := range r.keywords {
		if containsFold(text, keyword) {
			return true
		}
	}

	for _, pattern := range r.patterns {
		if pattern.MatchString(text) {
			return true
		}
	}

	return false
}
