// Package echantillon keeps, for one import batch, the known places and events an incoming
// record could be a duplicate of.
//
// Places are indexed by city, or by country when they have no city. Events are indexed by
// external id. Lookups return candidates; choosing among them is up to the caller.
// A Handler is not safe for concurrent use: build one per batch.
package echantillon

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/bynight/pkg/errors"
	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/tracing"
)

const missingExternalIDMessage = "unable to find candidate without an external id"

// PlaceFinder loads known places. Returned places must carry their location and external id.
type PlaceFinder interface {
	FindByCityIDs(ctx context.Context, cityIDs []int64) ([]*models.Place, error)
	FindByCountryIDsWithoutCity(ctx context.Context, countryIDs []string) ([]*models.Place, error)
}

// EventFinder loads known events by external id.
type EventFinder interface {
	FindByExternalIDs(ctx context.Context, externalIDs []string) ([]*models.Event, error)
}

// Handler holds the candidate indexes of one batch.
type Handler struct {
	logger ectologger.Logger
	places PlaceFinder
	events EventFinder

	cityPlaces    map[int64]*bucket
	cityOrder     []int64
	countryPlaces map[string]*bucket
	countryOrder  []string
	arena         *arena

	knownEvents map[string]*models.Event
}

// NewHandler creates a Handler with empty indexes.
func NewHandler(logger ectologger.Logger, places PlaceFinder, events EventFinder) *Handler {
	h := &Handler{
		logger: logger,
		places: places,
		events: events,
	}
	h.ClearPlaces()
	h.ClearEvents()
	return h
}

// ClearPlaces empties both place indexes.
func (h *Handler) ClearPlaces() {
	h.cityPlaces = make(map[int64]*bucket)
	h.cityOrder = nil
	h.countryPlaces = make(map[string]*bucket)
	h.countryOrder = nil
	h.arena = newArena()
}

// ClearEvents empties the event index.
func (h *Handler) ClearEvents() {
	h.knownEvents = make(map[string]*models.Event)
}

// IsEligible reports whether an event takes part in external id matching.
// Persisted events and user-authored events without an external id do not.
func IsEligible(event *models.Event) bool {
	if event.IsPersisted() {
		return false
	}
	if event.IsUserAuthored() && event.ExternalID == "" {
		return false
	}
	return true
}

// EnsureEligible fails with a ContractError when an eligible event has no external id.
func EnsureEligible(event *models.Event) error {
	if IsEligible(event) && event.ExternalID == "" {
		return errors.NewContractError("echantillon.EnsureEligible", missingExternalIDMessage)
	}
	return nil
}

// PrefetchPlaceEchantillons loads, in at most two queries, every known place sharing a city
// or a country with the places of the given events. Indexes are only grown.
func (h *Handler) PrefetchPlaceEchantillons(ctx context.Context, events []*models.Event) error {
	ctx, span := tracing.StartSpan(ctx, "echantillon.Handler.PrefetchPlaceEchantillons")
	defer span.End()

	log := h.logger.WithContext(ctx).WithFields(map[string]any{
		"method": "PrefetchPlaceEchantillons",
		"events": len(events),
	})

	cityIDs := []int64{}
	countryIDs := []string{}
	seenCities := map[int64]bool{}
	seenCountries := map[string]bool{}

	for _, event := range events {
		if event == nil || event.Place == nil {
			continue
		}
		location := event.Place.Location
		switch {
		case location.IsCity():
			id := location.City().ID
			if !seenCities[id] {
				seenCities[id] = true
				cityIDs = append(cityIDs, id)
			}
		case location.IsCountry():
			id := location.Country().ID
			if !seenCountries[id] {
				seenCountries[id] = true
				countryIDs = append(countryIDs, id)
			}
		}
	}

	if len(cityIDs) > 0 {
		places, err := h.places.FindByCityIDs(ctx, cityIDs)
		if err != nil {
			log.WithError(err).Error("Failed to load places by city")
			return err
		}
		for _, place := range places {
			h.addPlace(place)
		}
		log.Debugf("Loaded %d places for %d cities", len(places), len(cityIDs))
	}

	if len(countryIDs) > 0 {
		places, err := h.places.FindByCountryIDsWithoutCity(ctx, countryIDs)
		if err != nil {
			log.WithError(err).Error("Failed to load places by country")
			return err
		}
		for _, place := range places {
			h.addPlace(place)
		}
		log.Debugf("Loaded %d places for %d countries", len(places), len(countryIDs))
	}

	return nil
}

// PrefetchEventEchantillons loads, in one query, the known events sharing an external id
// with the given events. Ineligible events are skipped. An eligible event without an
// external id fails the whole call before anything is queried.
func (h *Handler) PrefetchEventEchantillons(ctx context.Context, events []*models.Event) error {
	ctx, span := tracing.StartSpan(ctx, "echantillon.Handler.PrefetchEventEchantillons")
	defer span.End()

	log := h.logger.WithContext(ctx).WithFields(map[string]any{
		"method": "PrefetchEventEchantillons",
		"events": len(events),
	})

	externalIDs := []string{}
	seen := map[string]bool{}
	for _, event := range events {
		if event == nil || !IsEligible(event) {
			continue
		}
		if event.ExternalID == "" {
			err := errors.NewContractError("echantillon.Handler.PrefetchEventEchantillons", missingExternalIDMessage)
			log.WithError(err).Error("Event eligible for matching has no external id")
			return err
		}
		if !seen[event.ExternalID] {
			seen[event.ExternalID] = true
			externalIDs = append(externalIDs, event.ExternalID)
		}
	}

	if len(externalIDs) == 0 {
		return nil
	}

	candidates, err := h.events.FindByExternalIDs(ctx, externalIDs)
	if err != nil {
		log.WithError(err).Error("Failed to load events by external id")
		return err
	}
	for _, candidate := range candidates {
		h.addEvent(candidate)
	}

	log.Debugf("Loaded %d events for %d external ids", len(candidates), len(externalIDs))
	return nil
}

// GetPlaceEchantillons returns the candidate places of an event. A place external id match
// wins and yields a single place; otherwise the places of the same city, or of the same
// country for city-less places, are returned.
func (h *Handler) GetPlaceEchantillons(event *models.Event) []*models.Place {
	if event == nil || event.Place == nil {
		return []*models.Place{}
	}

	if place := h.searchPlaceByExternalID(event.Place.ExternalID); place != nil {
		return []*models.Place{place}
	}

	location := event.Place.Location
	switch {
	case location.IsCity():
		if b, ok := h.cityPlaces[location.City().ID]; ok {
			return b.values()
		}
	case location.IsCountry():
		if b, ok := h.countryPlaces[location.Country().ID]; ok {
			return b.values()
		}
	}
	return []*models.Place{}
}

// GetEventEchantillons returns the known event sharing the event's external id, if any.
func (h *Handler) GetEventEchantillons(event *models.Event) []*models.Event {
	if event == nil || !IsEligible(event) || event.ExternalID == "" {
		return []*models.Event{}
	}
	if known, ok := h.knownEvents[event.ExternalID]; ok {
		return []*models.Event{known}
	}
	return []*models.Event{}
}

// AddNewEvent registers an event met during the batch, and its place, so later records of
// the same batch see it as a candidate. Adding the same event twice changes nothing.
func (h *Handler) AddNewEvent(event *models.Event) {
	if event == nil {
		return
	}
	h.addEvent(event)
	if event.Place != nil {
		h.addPlace(event.Place)
	}
}

// PlaceCount is the number of indexed places.
func (h *Handler) PlaceCount() int {
	count := 0
	for _, b := range h.cityPlaces {
		count += b.size()
	}
	for _, b := range h.countryPlaces {
		count += b.size()
	}
	return count
}

// EventCount is the number of indexed events.
func (h *Handler) EventCount() int {
	return len(h.knownEvents)
}

func (h *Handler) addEvent(event *models.Event) {
	if event.ExternalID != "" {
		h.knownEvents[event.ExternalID] = event
	}
}

func (h *Handler) addPlace(place *models.Place) {
	if place == nil {
		return
	}
	key := h.arena.keyOf(place)

	location := place.Location
	switch {
	case location.IsCity():
		id := location.City().ID
		b, ok := h.cityPlaces[id]
		if !ok {
			b = newBucket()
			h.cityPlaces[id] = b
			h.cityOrder = append(h.cityOrder, id)
		}
		b.put(key, place)
	case location.IsCountry():
		id := location.Country().ID
		b, ok := h.countryPlaces[id]
		if !ok {
			b = newBucket()
			h.countryPlaces[id] = b
			h.countryOrder = append(h.countryOrder, id)
		}
		b.put(key, place)
	}
}

// searchPlaceByExternalID scans city buckets then country buckets, each in creation order.
func (h *Handler) searchPlaceByExternalID(externalID string) *models.Place {
	if externalID == "" {
		return nil
	}
	for _, id := range h.cityOrder {
		if place := h.cityPlaces[id].findByExternalID(externalID); place != nil {
			return place
		}
	}
	for _, id := range h.countryOrder {
		if place := h.countryPlaces[id].findByExternalID(externalID); place != nil {
			return place
		}
	}
	return nil
}
