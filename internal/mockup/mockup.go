// Package mockup flags listing images that are template or placeholder
// renderings rather than product photographs. Detection works on the image
// URL or alt text only; no pixel data is inspected.
package mockup

import (
	"net/url"
	"strings"
)

// TextScorer ranks how strongly a piece of text points at a mockup image.
// Scores are in [0, 1] and only meaningful relative to each other.
type TextScorer interface {
	Score(text string) float64
}

// KeywordScorer scores text by the heaviest keyword or pattern it contains.
type KeywordScorer struct {
	rules *Rules
}

func NewKeywordScorer(rules *Rules) *KeywordScorer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &KeywordScorer{rules: rules}
}

// Score matches the lower-cased text as given. Unlike Classify it does not
// look at the decoded file name.
func (s *KeywordScorer) Score(text string) float64 {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0.0
	}

	score := 0.0
	for _, w := range s.rules.keywordWeights {
		if strings.Contains(text, w.Term) {
			score = max(score, w.Value)
		}
	}

	for _, wp := range s.rules.patternWeights {
		if wp.pattern.MatchString(text) {
			score = max(score, wp.value)
		}
	}

	return clamp(score)
}

// Detector answers the yes/no mockup question and delegates ranking to a
// TextScorer.
type Detector struct {
	rules  *Rules
	scorer TextScorer
}

type Option func(*Detector)

func WithRules(rules *Rules) Option {
	return func(d *Detector) {
		if rules != nil {
			d.rules = rules
		}
	}
}

// WithScorer replaces the scoring strategy. Classify is unaffected.
func WithScorer(scorer TextScorer) Option {
	return func(d *Detector) {
		if scorer != nil {
			d.scorer = scorer
		}
	}
}

func NewDetector(opts ...Option) *Detector {
	d := &Detector{rules: DefaultRules()}
	for _, opt := range opts {
		opt(d)
	}
	if d.scorer == nil {
		d.scorer = NewKeywordScorer(d.rules)
	}
	return d
}

// Classify reports whether text (an image URL or alt text) looks like a
// mockup. Empty input is never a mockup.
func (d *Detector) Classify(text string) bool {
	text = searchText(text)
	if text == "" {
		return false
	}
	return d.rules.matches(text)
}

// Score returns the scorer's confidence clamped to [0, 1].
func (d *Detector) Score(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0.0
	}
	return clamp(d.scorer.Score(text))
}

// BatchResult splits a product's images into mockups and regular photos,
// preserving input order within each group.
type BatchResult struct {
	MockupImages  []string `json:"mockup_images"`
	RegularImages []string `json:"regular_images"`
	MockupCount   int      `json:"mockup_count"`
	TotalCount    int      `json:"total_count"`
}

func (d *Detector) AnalyzeBatch(images []string) BatchResult {
	result := BatchResult{
		MockupImages:  make([]string, 0),
		RegularImages: make([]string, 0),
		TotalCount:    len(images),
	}

	for _, image := range images {
		if d.Classify(image) {
			result.MockupImages = append(result.MockupImages, image)
		} else {
			result.RegularImages = append(result.RegularImages, image)
		}
	}
	result.MockupCount = len(result.MockupImages)

	return result
}

// searchText lower-cases and trims text and, when it parses as a URL, appends
// the final path segment so a keyword that only appears in the decoded file
// name still matches.
func searchText(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return ""
	}

	u, err := url.Parse(text)
	if err != nil {
		return text
	}

	segments := strings.Split(u.Path, "/")
	filename := strings.ToLower(segments[len(segments)-1])
	return text + " " + filename
}

func containsFold(text, keyword string) bool {
	return strings.Contains(text, strings.ToLower(keyword))
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0.0
	}
	if score > 1 {
		return 1.0
	}
	return score
}
