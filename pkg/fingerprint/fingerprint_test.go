package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/bynight/pkg/models"
)

func TestGenerateIsOrderIndependent(t *testing.T) {
	a := map[string]any{"name": "Bikini", "nested": map[string]any{"b": 2, "a": 1}}
	b := map[string]any{"nested": map[string]any{"a": 1, "b": 2}, "name": "Bikini"}
	assert.Equal(t, Generate(a), Generate(b))
	assert.Len(t, Generate(a), 64)
}

func TestGenerateNested(t *testing.T) {
	a := map[string]any{"name": "Bikini", "tags": []any{"jazz", map[string]any{"seen_at": "monday"}}}
	b := map[string]any{"name": "Bikini", "tags": []any{"jazz", map[string]any{"seen_at": "tuesday"}}}
	c := map[string]any{"name": "Bikini", "tags": []any{map[string]any{"seen_at": "monday"}, "jazz"}}

	assert.NotEqual(t, Generate(a), Generate(b))
	assert.NotEqual(t, Generate(a), Generate(c))
}

func TestForEvent(t *testing.T) {
	start := time.Date(2024, 1, 12, 20, 0, 0, 0, time.UTC)
	toulouse := &models.City{ID: 42, Name: "Toulouse", Slug: "toulouse"}
	base := func() *models.Event {
		return &models.Event{
			ExternalID: "TOU-1",
			Name:       "Concert",
			StartDate:  &start,
			Place:      &models.Place{Name: "Le Bikini", Location: models.CityLocation(toulouse)},
		}
	}

	reference := ForEvent(base())

	sameContent := base()
	sameContent.ID = 12
	sameContent.ParserVersion = "2.0"
	sameContent.FromData = "toulouse"
	sameContent.Place.Name = "le bikini"
	assert.Equal(t, reference, ForEvent(sameContent), "bookkeeping and case must not change the fingerprint")

	renamed := base()
	renamed.Name = "Concert annulé"
	assert.NotEqual(t, reference, ForEvent(renamed))

	moved := base()
	moved.Place.Location = models.UnknownLocation()
	assert.NotEqual(t, reference, ForEvent(moved))

	noPlace := base()
	noPlace.Place = nil
	assert.NotEqual(t, reference, ForEvent(noPlace))
}

func TestHasChanged(t *testing.T) {
	assert.True(t, HasChanged("", "abc"))
	assert.True(t, HasChanged("abc", "def"))
	assert.False(t, HasChanged("abc", "abc"))
}
