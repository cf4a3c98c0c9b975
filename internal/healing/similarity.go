package healing

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/testmaster-ai/testmaster/internal/browser"
)

// SimilarityStrategy compares the failed element's structural signature (tag,
// attributes, text, extracted from the pre-failure page snapshot) against
// every element on the live page and proposes the closest match.
type SimilarityStrategy struct {
	driver browser.Driver
}

func NewSimilarityStrategy(driver browser.Driver) *SimilarityStrategy {
	return &SimilarityStrategy{driver: driver}
}

func (s *SimilarityStrategy) Name() StrategyName {
	return StrategySimilarity
}

// elementSignature is the comparable shape of one element.
type elementSignature struct {
	Tag     string
	ID      string
	Classes []string
	Name    string
	Type    string
	Text    string
	Attrs   map[string]string
}

func (s *SimilarityStrategy) AttemptHeal(ctx context.Context, hctx *Context, cfg *Config) (*Result, error) {
	// Structurally requires the snapshot; self-excludes without it.
	if s.driver == nil || hctx.PageSnapshot == "" {
		return nil, nil
	}

	target, err := signatureFromSnapshot(hctx.PageSnapshot, hctx.FailedLocator)
	if err != nil || target == nil {
		return nil, nil
	}

	html, err := s.driver.PageHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read live page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse live page: %w", err)
	}

	minScore := cfg.Similarity.MinSimilarityScore
	if minScore <= 0 {
		minScore = 0.8
	}

	var (
		best         *elementSignature
		bestScore    float64
		bestSelector string
		runnersUp    []string
	)
	doc.Find(target.Tag).Each(func(_ int, sel *goquery.Selection) {
		cand := signatureFromSelection(sel)
		score := similarityScore(target, cand)
		if score > bestScore {
			if bestSelector != "" && bestScore >= minScore {
				runnersUp = append(runnersUp, bestSelector)
			}
			best, bestScore, bestSelector = cand, score, selectorFor(sel, cand)
		} else if score >= minScore {
			runnersUp = append(runnersUp, selectorFor(sel, cand))
		}
	})

	if best == nil || bestScore < minScore || bestSelector == "" {
		return nil, nil
	}
	return &Result{
		Strategy:   StrategySimilarity,
		NewLocator: bestSelector,
		Confidence: bestScore,
		Metadata: map[string]any{
			"reason":              fmt.Sprintf("element <%s> matched structural signature with score %.2f", best.Tag, bestScore),
			"alternativeLocators": runnersUp,
		},
	}, nil
}

// signatureFromSnapshot locates the failed element in the pre-failure
// snapshot and extracts its signature. Returns nil when the locator cannot be
// resolved in the snapshot (e.g. XPath locators, which goquery cannot
// evaluate).
func signatureFromSnapshot(snapshot, failedLocator string) (*elementSignature, error) {
	if browser.GuessLocatorType(failedLocator) != "css" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page snapshot: %w", err)
	}
	sel := doc.Find(failedLocator)
	if sel.Length() == 0 {
		return nil, nil
	}
	return signatureFromSelection(sel.First()), nil
}

func signatureFromSelection(sel *goquery.Selection) *elementSignature {
	node := sel.Get(0)
	sig := &elementSignature{
		Tag:   goquery.NodeName(sel),
		Text:  strings.TrimSpace(sel.Text()),
		Attrs: make(map[string]string),
	}
	if len(sig.Text) > 120 {
		sig.Text = sig.Text[:120]
	}
	for _, attr := range node.Attr {
		sig.Attrs[attr.Key] = attr.Val
	}
	sig.ID = sig.Attrs["id"]
	sig.Name = sig.Attrs["name"]
	sig.Type = sig.Attrs["type"]
	if cls := sig.Attrs["class"]; cls != "" {
		sig.Classes = strings.Fields(cls)
	}
	return sig
}

// similarityScore weighs the signals that survive the kind of churn healing
// deals with: ids and names change rarely, classes and text churn more.
func similarityScore(a, b *elementSignature) float64 {
	if a.Tag != b.Tag {
		return 0
	}
	const (
		wID    = 0.30
		wName  = 0.20
		wType  = 0.10
		wClass = 0.15
		wText  = 0.15
		wAttrs = 0.10
	)
	// Tag equality is the entry ticket.
	score := 0.0
	total := 0.0

	if a.ID != "" || b.ID != "" {
		total += wID
		score += wID * stringSimilarity(a.ID, b.ID)
	}
	if a.Name != "" || b.Name != "" {
		total += wName
		if a.Name == b.Name {
			score += wName
		}
	}
	if a.Type != "" || b.Type != "" {
		total += wType
		if a.Type == b.Type {
			score += wType
		}
	}
	if len(a.Classes) > 0 || len(b.Classes) > 0 {
		total += wClass
		score += wClass * setOverlap(a.Classes, b.Classes)
	}
	if a.Text != "" || b.Text != "" {
		total += wText
		score += wText * stringSimilarity(a.Text, b.Text)
	}
	total += wAttrs
	score += wAttrs * attributeOverlap(a.Attrs, b.Attrs)

	if total == 0 {
		return 0
	}
	return score / total
}

// stringSimilarity is a normalized Levenshtein ratio in [0,1].
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	dist := levenshtein(a, b)
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return 1 - float64(dist)/float64(longer)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func setOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	common := 0
	for _, v := range b {
		if set[v] {
			common++
		}
	}
	union := len(a) + len(b) - common
	return float64(common) / float64(union)
}

func attributeOverlap(a, b map[string]string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	union := len(b)
	for k, v := range a {
		if bv, ok := b[k]; ok {
			if bv == v {
				common++
			}
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(common) / float64(union)
}

// selectorFor builds the most specific cheap selector for a matched element.
func selectorFor(sel *goquery.Selection, sig *elementSignature) string {
	if sig.ID != "" {
		return "#" + sig.ID
	}
	if v, ok := sig.Attrs["data-testid"]; ok && v != "" {
		return fmt.Sprintf(`[data-testid=%q]`, v)
	}
	if sig.Name != "" {
		return fmt.Sprintf(`%s[name=%q]`, sig.Tag, sig.Name)
	}
	if len(sig.Classes) > 0 {
		return sig.Tag + "." + strings.Join(sig.Classes, ".")
	}
	return sig.Tag
}

var _ Strategy = (*SimilarityStrategy)(nil)
