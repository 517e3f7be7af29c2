package matching

import (
	"math"

	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/normalizers"
)

const earthRadiusMeters = 6371000.0

// PlaceMatcherConfig weighs the signals used to pick a place among candidates.
// Threshold is the minimum score a candidate needs. NearbyMeters is the distance under
// which two coordinates count as the same spot and earn NearbyBonus.
type PlaceMatcherConfig struct {
	Threshold    float64
	NameWeight   float64
	StreetWeight float64
	NearbyMeters float64
	NearbyBonus  float64
}

func DefaultPlaceMatcherConfig() PlaceMatcherConfig {
	return PlaceMatcherConfig{
		Threshold:    0.85,
		NameWeight:   0.8,
		StreetWeight: 0.2,
		NearbyMeters: 150,
		NearbyBonus:  0.1,
	}
}

// PlaceMatch is a candidate with its score.
type PlaceMatch struct {
	Place *models.Place
	Score float64
}

// PlaceMatcher picks, among the candidates of a place, the one that is the same venue.
type PlaceMatcher struct {
	scorer *Scorer
	config PlaceMatcherConfig
}

func NewPlaceMatcher(config PlaceMatcherConfig) *PlaceMatcher {
	return &PlaceMatcher{
		scorer: NewScorer(),
		config: config,
	}
}

// Best returns the best scoring candidate at or above the threshold, or nil.
// A candidate sharing the place's external id wins outright.
func (m *PlaceMatcher) Best(place *models.Place, candidates []*models.Place) *PlaceMatch {
	if place == nil {
		return nil
	}

	var best *PlaceMatch
	for _, candidate := range candidates {
		if candidate == nil || candidate == place {
			continue
		}
		if place.ExternalID != "" && candidate.ExternalID == place.ExternalID {
			return &PlaceMatch{Place: candidate, Score: 1.0}
		}
		score := m.Score(place, candidate)
		if score < m.config.Threshold {
			continue
		}
		if best == nil || score > best.Score {
			best = &PlaceMatch{Place: candidate, Score: score}
		}
	}
	return best
}

// Score compares two places by name, street and distance.
func (m *PlaceMatcher) Score(a, b *models.Place) float64 {
	nameA := normalizers.NormalizePlaceName(a.Name)
	nameB := normalizers.NormalizePlaceName(b.Name)
	if nameA == "" || nameB == "" {
		return 0
	}
	nameScore := m.scorer.JaroWinkler(nameA, nameB)

	streetA := normalizers.NormalizeStreet(a.Street)
	streetB := normalizers.NormalizeStreet(b.Street)

	var score float64
	if streetA == "" || streetB == "" {
		score = nameScore
	} else {
		streetScore := m.scorer.Levenshtein(streetA, streetB)
		total := m.config.NameWeight + m.config.StreetWeight
		score = (nameScore*m.config.NameWeight + streetScore*m.config.StreetWeight) / total
	}

	if a.HasCoordinates() && b.HasCoordinates() {
		if Distance(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude) <= m.config.NearbyMeters {
			score += m.config.NearbyBonus
		}
	}

	return math.Min(score, 1.0)
}

// Distance returns the great-circle distance in meters between two coordinates.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
