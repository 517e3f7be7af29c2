package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickCity(t *testing.T) {
	candidates := []CityCandidate{
		{ZipName: "Saint-Jean", ZipPostalCode: "31240", CityID: 1},
		{ZipName: "Saint-Jean", ZipPostalCode: "31240", CityID: 1},
		{ZipName: "Saint-Jean", ZipPostalCode: "06230", CityID: 2},
		{ZipName: "L'Union", ZipPostalCode: "31240", CityID: 3},
		{ZipName: "Toulouse", ZipPostalCode: "31000", CityID: 4},
	}

	tests := []struct {
		name     string
		variants []string
		postal   string
		expected int64
	}{
		{name: "name and postal code", variants: []string{"saint-jean"}, postal: "31240", expected: 1},
		{name: "ambiguous name without postal code", variants: []string{"saint-jean"}},
		{name: "ambiguous name with unknown postal code", variants: []string{"saint-jean"}, postal: "99999"},
		{name: "unique name", variants: []string{"toulouse"}, postal: "31400", expected: 4},
		{name: "unique postal code", postal: "31000", expected: 4},
		{name: "ambiguous postal code", postal: "31240"},
		{name: "unknown name falls back to postal code", variants: []string{"toulouze"}, postal: "31000", expected: 4},
		{name: "nothing", variants: []string{"paris"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			picked := PickCity(candidates, tt.variants, tt.postal)
			if tt.expected == 0 {
				assert.Nil(t, picked)
				return
			}
			if assert.NotNil(t, picked) {
				assert.Equal(t, tt.expected, picked.CityID)
			}
		})
	}
}
