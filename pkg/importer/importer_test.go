package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/bynight/pkg/matching"
	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/reject"
	"github.com/Ramsey-B/bynight/pkg/validation"
)

var (
	france   = &models.Country{ID: "FR", Name: "France", DisplayName: "France", AtDisplayName: "en France", Slug: "france"}
	toulouse = &models.City{ID: 42, Name: "Toulouse", Slug: "toulouse", PostalCode: "31000", Country: france}
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeResolver struct {
	countryCalls int
	cityCalls    int
	err          error
}

func (f *fakeResolver) ResolveCountry(_ context.Context, name string) (*models.Country, error) {
	f.countryCalls++
	if f.err != nil {
		return nil, f.err
	}
	switch strings.ToLower(name) {
	case "france", "fr":
		return france, nil
	}
	return nil, nil
}

func (f *fakeResolver) ResolveCity(_ context.Context, country *models.Country, name, postalCode string) (*models.City, error) {
	f.cityCalls++
	if country.ID == "FR" && (strings.EqualFold(name, "toulouse") || postalCode == "31000") {
		return toulouse, nil
	}
	return nil, nil
}

type fakePlaceFinder struct {
	places []*models.Place
	err    error
}

func (f *fakePlaceFinder) FindByCityIDs(_ context.Context, cityIDs []int64) ([]*models.Place, error) {
	if f.err != nil {
		return nil, f.err
	}
	found := []*models.Place{}
	for _, p := range f.places {
		for _, id := range cityIDs {
			if p.Location.IsCity() && p.Location.City().ID == id {
				found = append(found, p)
			}
		}
	}
	return found, nil
}

func (f *fakePlaceFinder) FindByCountryIDsWithoutCity(_ context.Context, _ []string) ([]*models.Place, error) {
	return []*models.Place{}, f.err
}

type fakeEventFinder struct {
	events []*models.Event
	calls  [][]string
}

func (f *fakeEventFinder) FindByExternalIDs(_ context.Context, externalIDs []string) ([]*models.Event, error) {
	f.calls = append(f.calls, externalIDs)
	found := []*models.Event{}
	for _, e := range f.events {
		for _, id := range externalIDs {
			if e.ExternalID == id {
				found = append(found, e)
			}
		}
	}
	return found, nil
}

type fakeLocker struct {
	keys []string
	err  error
}

func (f *fakeLocker) WithLock(_ context.Context, key string, _, _ time.Duration, fn func() error) error {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return f.err
	}
	return fn()
}

type fakePublisher struct {
	published [][]models.Outcome
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, outcomes []models.Outcome) error {
	f.published = append(f.published, outcomes)
	return f.err
}

type fixture struct {
	places    *fakePlaceFinder
	events    *fakeEventFinder
	resolver  *fakeResolver
	locker    *fakeLocker
	publisher *fakePublisher
	importer  *Importer
}

func newFixture() *fixture {
	f := &fixture{
		places:    &fakePlaceFinder{},
		events:    &fakeEventFinder{},
		resolver:  &fakeResolver{},
		locker:    &fakeLocker{},
		publisher: &fakePublisher{},
	}
	f.importer = NewImporter(
		testLogger(),
		f.places,
		f.events,
		f.resolver,
		validation.NewValidator(validation.DefaultConfig()),
		matching.NewPlaceMatcher(matching.DefaultPlaceMatcherConfig()),
		f.locker,
		f.publisher,
		nil,
		Config{Location: time.UTC, DefaultCountry: "France", EventURLBase: "https://bynight.fr"},
	)
	return f
}

func rawRecord(externalID, name string) models.RawRecord {
	return models.RawRecord{
		ExternalID:      externalID,
		Name:            name,
		StartDate:       "2024-01-12 20:00:00",
		PlaceName:       "Le Bikini",
		PlaceCity:       "Toulouse",
		PlacePostalCode: "31000",
		PlaceCountry:    "France",
	}
}

func TestHandleBatchCreatedThenDuplicate(t *testing.T) {
	f := newFixture()

	result, err := f.importer.HandleBatch(context.Background(), "opendata", []models.RawRecord{
		rawRecord("TOU-1", "Concert de jazz"),
		rawRecord("TOU-1", "Concert de jazz"),
	})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, models.OutcomeCreated, result.Outcomes[0].Status)
	assert.Equal(t, models.OutcomeDuplicate, result.Outcomes[1].Status)
	assert.Equal(t, "opendata", result.Outcomes[0].Source)
	assert.Equal(t, "toulouse", result.Outcomes[0].LocationSlug)
	assert.NotEmpty(t, result.Outcomes[0].Fingerprint)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Count(models.OutcomeCreated))
	assert.NotEmpty(t, result.BatchID)

	assert.Equal(t, []string{"import:opendata"}, f.locker.keys)
	require.Len(t, f.publisher.published, 1)
	assert.Len(t, f.publisher.published[0], 2)
	assert.Equal(t, [][]string{{"TOU-1"}}, f.events.calls, "events are prefetched once with distinct ids")
	assert.Equal(t, 1, f.resolver.countryCalls, "locations are cached per batch")
	assert.Equal(t, 1, f.resolver.cityCalls)
}

func TestHandleBatchUpdatedAndUnchanged(t *testing.T) {
	f := newFixture()
	first, err := f.importer.HandleBatch(context.Background(), "opendata", []models.RawRecord{rawRecord("TOU-1", "Concert de jazz")})
	require.NoError(t, err)

	known := &models.Event{ID: 10, ExternalID: "TOU-1", Name: "Concert de jazz", Fingerprint: first.Outcomes[0].Fingerprint}
	f.events.events = []*models.Event{known}

	result, err := f.importer.HandleBatch(context.Background(), "opendata", []models.RawRecord{rawRecord("TOU-1", "Concert de jazz")})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnchanged, result.Outcomes[0].Status)
	assert.Equal(t, reject.NoNeedToUpdate, result.Outcomes[0].RejectReason)
	assert.Equal(t, int64(10), result.Outcomes[0].EventID)

	result, err = f.importer.HandleBatch(context.Background(), "opendata", []models.RawRecord{
		rawRecord("TOU-1", "Concert de jazz manouche"),
		rawRecord("TOU-1", "Concert de jazz manouche"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUpdated, result.Outcomes[0].Status)
	assert.Equal(t, int64(10), result.Outcomes[0].EventID)
	assert.Equal(t, reject.Valid, result.Outcomes[0].RejectReason)
	assert.Equal(t, models.OutcomeUnchanged, result.Outcomes[1].Status, "second copy sees the updated content")
}

func TestHandleBatchBadUser(t *testing.T) {
	f := newFixture()
	userID := int64(7)
	f.events.events = []*models.Event{{
		ID:         5,
		ExternalID: "TOU-1",
		UserID:     &userID,
		Name:       "Concert",
		Place:      &models.Place{Location: models.CityLocation(toulouse)},
	}}

	result, err := f.importer.HandleBatch(context.Background(), "opendata", []models.RawRecord{rawRecord("TOU-1", "Concert de jazz")})
	require.NoError(t, err)

	outcome := result.Outcomes[0]
	assert.Equal(t, models.OutcomeRejected, outcome.Status)
	assert.Equal(t, reject.BadUser, outcome.RejectReason)
	require.Len(t, outcome.Violations, 1)
	assert.Contains(t, outcome.Violations[0].Message, `href="https://bynight.fr/toulouse/soiree/concert--5"`)
}

func TestHandleBatchRejectedAndInvalid(t *testing.T) {
	f := newFixture()

	noCountry := rawRecord("TOU-3", "Soirée salsa")
	noCountry.PlaceCountry = ""
	noCountry.PlaceCity = ""
	noCountry.PlacePostalCode = ""

	result, err := f.importer.HandleBatch(context.Background(), "opendata", []models.RawRecord{
		rawRecord("TOU-1", "ab"),
		rawRecord("", "Concert sans identifiant"),
		noCountry,
		rawRecord("TOU-4", "Concert valide"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeRejected, result.Outcomes[0].Status)
	assert.Equal(t, reject.BadEventName, result.Outcomes[0].RejectReason)
	require.Len(t, result.Outcomes[0].Violations, 1)
	assert.Equal(t, validation.FieldName, result.Outcomes[0].Violations[0].Field)

	assert.Equal(t, models.OutcomeInvalid, result.Outcomes[1].Status)
	assert.Contains(t, result.Outcomes[1].Message, "external id")

	assert.Equal(t, models.OutcomeRejected, result.Outcomes[2].Status)
	assert.Equal(t, reject.NoPlaceLocationProvided|reject.NoCountryProvided, result.Outcomes[2].PlaceRejectReason)

	assert.Equal(t, models.OutcomeCreated, result.Outcomes[3].Status)
	assert.Equal(t, [][]string{{"TOU-1", "TOU-3", "TOU-4"}}, f.events.calls)
}

func TestHandleBatchMatchesKnownPlace(t *testing.T) {
	f := newFixture()
	bikini := &models.Place{ID: 99, ExternalID: "FB-1", Name: "Bikini", Location: models.CityLocation(toulouse)}
	f.places.places = []*models.Place{bikini}

	byName := rawRecord("TOU-1", "Concert de jazz")
	byExternalID := rawRecord("TOU-2", "Concert de rock")
	byExternalID.PlaceName = "Salle du Bikini"
	byExternalID.PlaceExternalID = "FB-1"
	elsewhere := rawRecord("TOU-3", "Concert de blues")
	elsewhere.PlaceName = "Halle aux Grains"

	result, err := f.importer.HandleBatch(context.Background(), "opendata", []models.RawRecord{byName, byExternalID, elsewhere})
	require.NoError(t, err)

	assert.Equal(t, int64(99), result.Outcomes[0].PlaceID)
	assert.Equal(t, int64(99), result.Outcomes[1].PlaceID)
	assert.Equal(t, int64(0), result.Outcomes[2].PlaceID)
	for _, outcome := range result.Outcomes {
		assert.Equal(t, 1, outcome.PlaceCandidates)
	}
}

func TestHandleBatchFailures(t *testing.T) {
	t.Run("lock not acquired", func(t *testing.T) {
		f := newFixture()
		f.locker.err = errors.New("lock not acquired")

		_, err := f.importer.HandleBatch(context.Background(), "opendata", []models.RawRecord{rawRecord("TOU-1", "Concert")})
		assert.Error(t, err)
		assert.Empty(t, f.publisher.published)
	})

	t.Run("place finder error", func(t *testing.T) {
		f := newFixture()
		f.places.err = errors.New("db down")

		_, err := f.importer.HandleBatch(context.Background(), "opendata", []models.RawRecord{rawRecord("TOU-1", "Concert")})
		assert.Error(t, err)
		assert.Empty(t, f.publisher.published)
	})

	t.Run("resolver error", func(t *testing.T) {
		f := newFixture()
		f.resolver.err = errors.New("db down")

		_, err := f.importer.HandleBatch(context.Background(), "opendata", []models.RawRecord{rawRecord("TOU-1", "Concert")})
		assert.Error(t, err)
	})

	t.Run("publisher error", func(t *testing.T) {
		f := newFixture()
		f.publisher.err = errors.New("broker down")

		_, err := f.importer.HandleBatch(context.Background(), "opendata", []models.RawRecord{rawRecord("TOU-1", "Concert")})
		assert.Error(t, err)
	})
}

func TestHandleBatchEmpty(t *testing.T) {
	f := newFixture()

	result, err := f.importer.HandleBatch(context.Background(), "opendata", nil)
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.Empty(t, f.events.calls)
	assert.Empty(t, f.publisher.published)
}
