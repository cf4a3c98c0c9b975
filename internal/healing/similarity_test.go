package healing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const similaritySnapshot = `<html><body>
<form id="checkout">
  <button id="submit-btn" class="btn primary" type="submit">Submit order</button>
</form>
</body></html>`

func TestSimilarityHealsRenamedID(t *testing.T) {
	// Same button, id renamed in a redeploy.
	driver := &stubDriver{html: `<html><body>
<form id="checkout">
  <button id="submit-button" class="btn primary" type="submit">Submit order</button>
</form>
</body></html>`}
	strat := NewSimilarityStrategy(driver)

	hctx := testContext()
	hctx.FailedLocator = "#submit-btn"
	hctx.PageSnapshot = similaritySnapshot

	res, err := strat.AttemptHeal(context.Background(), hctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StrategySimilarity, res.Strategy)
	assert.Equal(t, "#submit-button", res.NewLocator)
	assert.GreaterOrEqual(t, res.Confidence, 0.8)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestSimilarityPrefersExactStructuralMatch(t *testing.T) {
	driver := &stubDriver{html: `<html><body>
<button class="nav-toggle">Menu</button>
<button id="submit-btn" class="btn primary" type="submit">Submit order</button>
</body></html>`}
	strat := NewSimilarityStrategy(driver)

	hctx := testContext()
	hctx.FailedLocator = "#submit-btn"
	hctx.PageSnapshot = similaritySnapshot

	res, err := strat.AttemptHeal(context.Background(), hctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "#submit-btn", res.NewLocator)
	assert.InDelta(t, 1.0, res.Confidence, 0.001)
}

func TestSimilarityNoMatchBelowThreshold(t *testing.T) {
	driver := &stubDriver{html: `<html><body>
<button class="nav-toggle">Menu</button>
</body></html>`}
	strat := NewSimilarityStrategy(driver)

	hctx := testContext()
	hctx.FailedLocator = "#submit-btn"
	hctx.PageSnapshot = similaritySnapshot

	res, err := strat.AttemptHeal(context.Background(), hctx, DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestSimilaritySelfExcludesOnXPath(t *testing.T) {
	strat := NewSimilarityStrategy(&stubDriver{html: "<html></html>"})

	hctx := testContext()
	hctx.FailedLocator = "//button[@id='submit-btn']"
	hctx.PageSnapshot = similaritySnapshot

	res, err := strat.AttemptHeal(context.Background(), hctx, DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestSimilaritySelfExcludesWithoutSnapshot(t *testing.T) {
	strat := NewSimilarityStrategy(&stubDriver{html: "<html></html>"})

	hctx := testContext()
	hctx.PageSnapshot = ""

	res, err := strat.AttemptHeal(context.Background(), hctx, DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestSimilarityScore(t *testing.T) {
	base := &elementSignature{
		Tag:     "input",
		ID:      "email",
		Name:    "email",
		Type:    "email",
		Classes: []string{"form-control"},
		Attrs:   map[string]string{"id": "email", "name": "email", "type": "email", "class": "form-control"},
	}

	tests := []struct {
		name string
		cand *elementSignature
		min  float64
		max  float64
	}{
		{
			name: "identical",
			cand: base,
			min:  1.0,
			max:  1.0,
		},
		{
			name: "different tag scores zero",
			cand: &elementSignature{Tag: "button", ID: "email"},
			min:  0,
			max:  0,
		},
		{
			name: "same name and type, renamed id",
			cand: &elementSignature{
				Tag:     "input",
				ID:      "user-email",
				Name:    "email",
				Type:    "email",
				Classes: []string{"form-control"},
				Attrs:   map[string]string{"id": "user-email", "name": "email", "type": "email", "class": "form-control"},
			},
			min: 0.7,
			max: 0.99,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := similarityScore(base, tt.cand)
			assert.GreaterOrEqual(t, score, tt.min)
			assert.LessOrEqual(t, score, tt.max)
		})
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 1, levenshtein("abc", "abd"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}
