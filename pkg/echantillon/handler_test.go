package echantillon

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/bynight/pkg/errors"
	"github.com/Ramsey-B/bynight/pkg/models"
)

type fakePlaceFinder struct {
	places       []*models.Place
	cityCalls    [][]int64
	countryCalls [][]string
	err          error
}

func (f *fakePlaceFinder) FindByCityIDs(_ context.Context, cityIDs []int64) ([]*models.Place, error) {
	f.cityCalls = append(f.cityCalls, cityIDs)
	if f.err != nil {
		return nil, f.err
	}
	wanted := map[int64]bool{}
	for _, id := range cityIDs {
		wanted[id] = true
	}
	result := []*models.Place{}
	for _, p := range f.places {
		if p.Location.IsCity() && wanted[p.Location.City().ID] {
			result = append(result, p)
		}
	}
	return result, nil
}

func (f *fakePlaceFinder) FindByCountryIDsWithoutCity(_ context.Context, countryIDs []string) ([]*models.Place, error) {
	f.countryCalls = append(f.countryCalls, countryIDs)
	if f.err != nil {
		return nil, f.err
	}
	wanted := map[string]bool{}
	for _, id := range countryIDs {
		wanted[id] = true
	}
	result := []*models.Place{}
	for _, p := range f.places {
		if p.Location.IsCountry() && wanted[p.Location.Country().ID] {
			result = append(result, p)
		}
	}
	return result, nil
}

type fakeEventFinder struct {
	events []*models.Event
	calls  [][]string
}

func (f *fakeEventFinder) FindByExternalIDs(_ context.Context, externalIDs []string) ([]*models.Event, error) {
	f.calls = append(f.calls, externalIDs)
	wanted := map[string]bool{}
	for _, id := range externalIDs {
		wanted[id] = true
	}
	result := []*models.Event{}
	for _, e := range f.events {
		if wanted[e.ExternalID] {
			result = append(result, e)
		}
	}
	return result, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

var (
	france   = &models.Country{ID: "FR", Name: "France", DisplayName: "France", AtDisplayName: "en France", Slug: "france"}
	belgium  = &models.Country{ID: "BE", Name: "Belgique", DisplayName: "Belgique", AtDisplayName: "en Belgique", Slug: "belgique"}
	toulouse = &models.City{ID: 42, Name: "Toulouse", Slug: "toulouse", Country: france}
	paris    = &models.City{ID: 7, Name: "Paris", Slug: "paris", Country: france}
)

func cityPlace(id int64, externalID string, city *models.City) *models.Place {
	return &models.Place{ID: id, ExternalID: externalID, Name: fmt.Sprintf("place %d", id), Location: models.CityLocation(city)}
}

func countryPlace(id int64, externalID string, country *models.Country) *models.Place {
	return &models.Place{ID: id, ExternalID: externalID, Name: fmt.Sprintf("place %d", id), Location: models.CountryLocation(country)}
}

func newEvent(externalID string, place *models.Place) *models.Event {
	return &models.Event{ExternalID: externalID, Name: "event " + externalID, Place: place}
}

func int64Ptr(v int64) *int64 {
	return &v
}

func newTestHandler(places []*models.Place, events []*models.Event) (*Handler, *fakePlaceFinder, *fakeEventFinder) {
	pf := &fakePlaceFinder{places: places}
	ef := &fakeEventFinder{events: events}
	return NewHandler(testLogger(), pf, ef), pf, ef
}

func TestPlaceExternalIDWinsOverCityFallback(t *testing.T) {
	known := cityPlace(99, "FB-1", toulouse)
	other := cityPlace(100, "FB-2", toulouse)
	h, _, _ := newTestHandler([]*models.Place{other, known}, nil)

	a := newEvent("EV-1", &models.Place{ExternalID: "FB-1", Name: "Le Bikini", Location: models.CityLocation(toulouse)})
	require.NoError(t, h.PrefetchPlaceEchantillons(context.Background(), []*models.Event{a}))

	candidates := h.GetPlaceEchantillons(a)
	require.Len(t, candidates, 1)
	assert.Same(t, known, candidates[0])
}

func TestCityCandidates(t *testing.T) {
	p1 := cityPlace(1, "", toulouse)
	p2 := cityPlace(2, "", toulouse)
	p3 := cityPlace(3, "", paris)
	h, pf, _ := newTestHandler([]*models.Place{p1, p2, p3}, nil)

	a := newEvent("A", &models.Place{Name: "new", Location: models.CityLocation(toulouse)})
	b := newEvent("B", &models.Place{Name: "other", Location: models.CityLocation(toulouse)})
	require.NoError(t, h.PrefetchPlaceEchantillons(context.Background(), []*models.Event{a, b}))

	require.Len(t, pf.cityCalls, 1)
	assert.Equal(t, []int64{42}, pf.cityCalls[0])
	assert.Empty(t, pf.countryCalls)

	candidates := h.GetPlaceEchantillons(b)
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		assert.Equal(t, int64(42), c.Location.City().ID)
	}
	assert.Equal(t, []*models.Place{p1, p2}, candidates, "insertion order is kept")
}

func TestCountryCandidatesOnlyHoldCitylessPlaces(t *testing.T) {
	inFrance := countryPlace(10, "", france)
	inBelgium := countryPlace(11, "", belgium)
	inToulouse := cityPlace(12, "", toulouse)
	h, pf, _ := newTestHandler([]*models.Place{inFrance, inBelgium, inToulouse}, nil)

	a := newEvent("A", &models.Place{Name: "somewhere", Location: models.CountryLocation(france)})
	require.NoError(t, h.PrefetchPlaceEchantillons(context.Background(), []*models.Event{a}))

	require.Len(t, pf.countryCalls, 1)
	assert.Equal(t, []string{"FR"}, pf.countryCalls[0])
	assert.Empty(t, pf.cityCalls)

	candidates := h.GetPlaceEchantillons(a)
	require.Len(t, candidates, 1)
	assert.Nil(t, candidates[0].Location.City())
	assert.Equal(t, "FR", candidates[0].Location.Country().ID)
}

func TestPlaceExternalIDMatchesAcrossRecords(t *testing.T) {
	known := cityPlace(5, "X", toulouse)
	h, _, _ := newTestHandler([]*models.Place{known}, nil)

	first := newEvent("A", &models.Place{ExternalID: "X", Location: models.CityLocation(toulouse)})
	second := newEvent("B", &models.Place{ExternalID: "X", Location: models.CountryLocation(belgium)})
	require.NoError(t, h.PrefetchPlaceEchantillons(context.Background(), []*models.Event{first}))

	candidates := h.GetPlaceEchantillons(second)
	require.Len(t, candidates, 1)
	assert.Equal(t, "X", candidates[0].ExternalID)
}

func TestExternalIDScanPrefersCityBuckets(t *testing.T) {
	h, _, _ := newTestHandler(nil, nil)
	byCountry := countryPlace(0, "DUP", france)
	byCity := cityPlace(0, "DUP", paris)
	h.AddNewEvent(newEvent("A", byCountry))
	h.AddNewEvent(newEvent("B", byCity))

	candidates := h.GetPlaceEchantillons(newEvent("C", &models.Place{ExternalID: "DUP"}))
	require.Len(t, candidates, 1)
	assert.Same(t, byCity, candidates[0])
}

func TestGetPlaceEchantillonsWithoutLocation(t *testing.T) {
	h, _, _ := newTestHandler([]*models.Place{cityPlace(1, "", toulouse)}, nil)

	assert.Empty(t, h.GetPlaceEchantillons(newEvent("A", nil)))
	assert.Empty(t, h.GetPlaceEchantillons(newEvent("A", &models.Place{Name: "nowhere"})))
	assert.Empty(t, h.GetPlaceEchantillons(nil))
}

func TestPrefetchPlacesWithoutLocationsIssuesNoQuery(t *testing.T) {
	h, pf, _ := newTestHandler(nil, nil)
	require.NoError(t, h.PrefetchPlaceEchantillons(context.Background(), []*models.Event{
		newEvent("A", nil),
		newEvent("B", &models.Place{Name: "nowhere"}),
	}))
	assert.Empty(t, pf.cityCalls)
	assert.Empty(t, pf.countryCalls)
}

func TestPrefetchPlacesPropagatesFinderError(t *testing.T) {
	h, pf, _ := newTestHandler(nil, nil)
	pf.err = fmt.Errorf("connection refused")

	err := h.PrefetchPlaceEchantillons(context.Background(), []*models.Event{
		newEvent("A", &models.Place{Location: models.CityLocation(toulouse)}),
	})
	require.Error(t, err)
	assert.Equal(t, 0, h.PlaceCount())
}

func TestPrefetchEventsSkipsIneligible(t *testing.T) {
	h, _, ef := newTestHandler(nil, []*models.Event{{ID: 1, ExternalID: "EXT"}})

	persisted := &models.Event{ID: 3, ExternalID: "EXT"}
	userAuthored := &models.Event{UserID: int64Ptr(12)}

	require.NoError(t, h.PrefetchEventEchantillons(context.Background(), []*models.Event{persisted, userAuthored}))
	assert.Empty(t, ef.calls)
	assert.Empty(t, h.GetEventEchantillons(persisted))
	assert.Empty(t, h.GetEventEchantillons(userAuthored))
}

func TestPrefetchEventsRequiresExternalID(t *testing.T) {
	h, _, ef := newTestHandler(nil, nil)

	err := h.PrefetchEventEchantillons(context.Background(), []*models.Event{
		newEvent("OK", nil),
		{Name: "anonymous"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsContractError(err))
	assert.Contains(t, err.Error(), "unable to find candidate without an external id")
	assert.Empty(t, ef.calls, "nothing is queried on contract violation")
}

func TestPrefetchEventsDeduplicatesExternalIDs(t *testing.T) {
	known := &models.Event{ID: 8, ExternalID: "TOU-1"}
	h, _, ef := newTestHandler(nil, []*models.Event{known})

	a := newEvent("TOU-1", nil)
	b := newEvent("TOU-1", nil)
	c := newEvent("TOU-2", nil)
	userWithExternalID := &models.Event{ExternalID: "TOU-3", UserID: int64Ptr(4)}
	require.NoError(t, h.PrefetchEventEchantillons(context.Background(), []*models.Event{a, b, c, userWithExternalID}))

	require.Len(t, ef.calls, 1)
	assert.Equal(t, []string{"TOU-1", "TOU-2", "TOU-3"}, ef.calls[0])

	candidates := h.GetEventEchantillons(b)
	require.Len(t, candidates, 1)
	assert.Same(t, known, candidates[0])
	assert.Empty(t, h.GetEventEchantillons(c))
}

func TestAddNewEventIsIdempotent(t *testing.T) {
	h, _, _ := newTestHandler(nil, nil)
	place := &models.Place{Name: "Le Bikini", Location: models.CityLocation(toulouse)}
	e := newEvent("TOU-9", place)

	h.AddNewEvent(e)
	h.AddNewEvent(e)

	events := h.GetEventEchantillons(newEvent("TOU-9", nil))
	require.Len(t, events, 1)
	assert.Same(t, e, events[0])

	places := h.GetPlaceEchantillons(newEvent("TOU-10", &models.Place{Location: models.CityLocation(toulouse)}))
	require.Len(t, places, 1)
	assert.Same(t, place, places[0])
	assert.Equal(t, 1, h.PlaceCount())
	assert.Equal(t, 1, h.EventCount())
}

func TestNewPlacesDoNotOverwriteEachOther(t *testing.T) {
	h, _, _ := newTestHandler(nil, nil)
	first := &models.Place{Name: "first", Location: models.CityLocation(toulouse)}
	second := &models.Place{Name: "second", Location: models.CityLocation(toulouse)}

	h.AddNewEvent(newEvent("A", first))
	h.AddNewEvent(newEvent("B", second))

	places := h.GetPlaceEchantillons(newEvent("C", &models.Place{Location: models.CityLocation(toulouse)}))
	assert.Equal(t, []*models.Place{first, second}, places)
}

func TestPersistedPlaceIsReplacedInPlace(t *testing.T) {
	loaded := cityPlace(99, "", toulouse)
	h, _, _ := newTestHandler([]*models.Place{loaded}, nil)
	require.NoError(t, h.PrefetchPlaceEchantillons(context.Background(), []*models.Event{
		newEvent("A", &models.Place{Location: models.CityLocation(toulouse)}),
	}))

	reloaded := cityPlace(99, "FB-99", toulouse)
	h.AddNewEvent(newEvent("B", reloaded))

	places := h.GetPlaceEchantillons(newEvent("C", &models.Place{Location: models.CityLocation(toulouse)}))
	require.Len(t, places, 1)
	assert.Same(t, reloaded, places[0])
}

func TestAddNewEventWithoutExternalIDOnlyIndexesPlace(t *testing.T) {
	h, _, _ := newTestHandler(nil, nil)
	e := &models.Event{UserID: int64Ptr(1), Place: countryPlace(0, "", france)}

	h.AddNewEvent(e)
	h.AddNewEvent(nil)

	assert.Equal(t, 0, h.EventCount())
	assert.Equal(t, 1, h.PlaceCount())
}

func TestClear(t *testing.T) {
	known := cityPlace(99, "FB-1", toulouse)
	knownEvent := &models.Event{ID: 1, ExternalID: "FB-EV"}
	h, _, _ := newTestHandler([]*models.Place{known}, []*models.Event{knownEvent})

	a := newEvent("FB-EV", &models.Place{ExternalID: "FB-1", Location: models.CityLocation(toulouse)})
	require.NoError(t, h.PrefetchPlaceEchantillons(context.Background(), []*models.Event{a}))
	require.NoError(t, h.PrefetchEventEchantillons(context.Background(), []*models.Event{a}))
	require.NotEmpty(t, h.GetPlaceEchantillons(a))
	require.NotEmpty(t, h.GetEventEchantillons(a))

	h.ClearPlaces()
	assert.Empty(t, h.GetPlaceEchantillons(a))
	assert.NotEmpty(t, h.GetEventEchantillons(a), "events survive a place clear")

	h.ClearEvents()
	assert.Empty(t, h.GetEventEchantillons(a))
}

func TestPrefetchGrowsIndexes(t *testing.T) {
	h, pf, _ := newTestHandler([]*models.Place{cityPlace(1, "", toulouse), cityPlace(2, "", paris)}, nil)

	require.NoError(t, h.PrefetchPlaceEchantillons(context.Background(), []*models.Event{
		newEvent("A", &models.Place{Location: models.CityLocation(toulouse)}),
	}))
	require.NoError(t, h.PrefetchPlaceEchantillons(context.Background(), []*models.Event{
		newEvent("B", &models.Place{Location: models.CityLocation(paris)}),
	}))

	assert.Len(t, pf.cityCalls, 2)
	assert.Equal(t, 2, h.PlaceCount())
	assert.Len(t, h.GetPlaceEchantillons(newEvent("C", &models.Place{Location: models.CityLocation(toulouse)})), 1)
}

func TestEligibility(t *testing.T) {
	tests := []struct {
		name        string
		event       *models.Event
		eligible    bool
		contractErr bool
	}{
		{name: "new with external id", event: &models.Event{ExternalID: "A"}, eligible: true},
		{name: "persisted", event: &models.Event{ID: 1}, eligible: false},
		{name: "user authored", event: &models.Event{UserID: int64Ptr(1)}, eligible: false},
		{name: "user authored with external id", event: &models.Event{UserID: int64Ptr(1), ExternalID: "A"}, eligible: true},
		{name: "missing external id", event: &models.Event{}, eligible: true, contractErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.eligible, IsEligible(tt.event))
			err := EnsureEligible(tt.event)
			if tt.contractErr {
				assert.True(t, errors.IsContractError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
