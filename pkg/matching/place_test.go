package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/bynight/pkg/models"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestScorer(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name string
		fn   func(a, b string) float64
		a, b string
		min  float64
		max  float64
	}{
		{name: "jaro-winkler identical", fn: s.JaroWinkler, a: "bikini", b: "bikini", min: 1, max: 1},
		{name: "jaro-winkler close", fn: s.JaroWinkler, a: "bikini", b: "bikinis", min: 0.95, max: 1},
		{name: "jaro-winkler unrelated", fn: s.JaroWinkler, a: "bikini", b: "zenith", min: 0, max: 0.6},
		{name: "jaro empty", fn: s.Jaro, a: "", b: "zenith", min: 0, max: 0},
		{name: "levenshtein one edit", fn: s.Levenshtein, a: "capitole", b: "capitolé", min: 0.87, max: 0.88},
		{name: "levenshtein both empty", fn: s.Levenshtein, a: "", b: "", min: 1, max: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := tt.fn(tt.a, tt.b)
			assert.GreaterOrEqual(t, score, tt.min)
			assert.LessOrEqual(t, score, tt.max)
		})
	}
}

func TestBestPrefersExternalID(t *testing.T) {
	m := NewPlaceMatcher(DefaultPlaceMatcherConfig())
	byName := &models.Place{ID: 1, Name: "Le Bikini"}
	byExternalID := &models.Place{ID: 2, Name: "Salle municipale", ExternalID: "FB-1"}

	match := m.Best(&models.Place{Name: "Le Bikini", ExternalID: "FB-1"}, []*models.Place{byName, byExternalID})
	require.NotNil(t, match)
	assert.Same(t, byExternalID, match.Place)
	assert.Equal(t, 1.0, match.Score)
}

func TestBestByName(t *testing.T) {
	m := NewPlaceMatcher(DefaultPlaceMatcherConfig())
	bikini := &models.Place{ID: 1, Name: "Bikini", Street: "Rue Théodore Monod"}
	zenith := &models.Place{ID: 2, Name: "Zénith de Toulouse", Street: "11 Avenue Raymond Badiou"}

	match := m.Best(&models.Place{Name: "LE BIKINI", Street: "rue Theodore Monod"}, []*models.Place{zenith, bikini})
	require.NotNil(t, match)
	assert.Same(t, bikini, match.Place)

	assert.Nil(t, m.Best(&models.Place{Name: "Halle aux Grains"}, []*models.Place{zenith, bikini}))
	assert.Nil(t, m.Best(nil, []*models.Place{bikini}))
	assert.Nil(t, m.Best(&models.Place{Name: "Bikini"}, nil))
}

func TestBestSkipsItself(t *testing.T) {
	m := NewPlaceMatcher(DefaultPlaceMatcherConfig())
	p := &models.Place{Name: "Bikini"}
	assert.Nil(t, m.Best(p, []*models.Place{p}))
}

func TestScoreNearbyBonus(t *testing.T) {
	m := NewPlaceMatcher(DefaultPlaceMatcherConfig())
	a := &models.Place{Name: "Café des Sports", Latitude: floatPtr(43.6045), Longitude: floatPtr(1.4440)}
	near := &models.Place{Name: "Cafe Sports", Latitude: floatPtr(43.6046), Longitude: floatPtr(1.4441)}
	far := &models.Place{Name: "Cafe Sports", Latitude: floatPtr(48.8566), Longitude: floatPtr(2.3522)}

	assert.Greater(t, m.Score(a, near), m.Score(a, far))
	assert.LessOrEqual(t, m.Score(a, near), 1.0)
}

func TestDistance(t *testing.T) {
	// Toulouse Capitole to Paris Notre-Dame is roughly 588 km.
	d := Distance(43.6045, 1.4440, 48.8530, 2.3499)
	assert.InDelta(t, 588000, d, 5000)
	assert.Equal(t, 0.0, Distance(43.6, 1.44, 43.6, 1.44))
}
