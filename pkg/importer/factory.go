package importer

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/bynight/pkg/fingerprint"
	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/normalizers"
	"github.com/Ramsey-B/bynight/pkg/parser"
	"github.com/Ramsey-B/bynight/pkg/tracing"
	"github.com/Ramsey-B/bynight/pkg/validation"
)

// LocationResolver finds the country and city a raw place refers to.
// Both methods return nil without error when nothing matches.
type LocationResolver interface {
	ResolveCountry(ctx context.Context, name string) (*models.Country, error)
	ResolveCity(ctx context.Context, country *models.Country, name, postalCode string) (*models.City, error)
}

// Factory turns raw records into events. It caches resolved locations and is meant to live for one batch.
type Factory struct {
	logger         ectologger.Logger
	resolver       LocationResolver
	validator      *validation.Validator
	loc            *time.Location
	defaultCountry string

	countries map[string]*models.Country
	cities    map[string]*models.City
}

func NewFactory(logger ectologger.Logger, resolver LocationResolver, validator *validation.Validator, loc *time.Location, defaultCountry string) *Factory {
	if loc == nil {
		loc = time.UTC
	}
	return &Factory{
		logger:         logger,
		resolver:       resolver,
		validator:      validator,
		loc:            loc,
		defaultCountry: defaultCountry,
		countries:      make(map[string]*models.Country),
		cities:         make(map[string]*models.City),
	}
}

// Build maps a raw record onto an event with its place and location. Unparseable
// dates are left empty so validation flags them.
func (f *Factory) Build(ctx context.Context, record models.RawRecord) (*models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Factory.Build")
	defer span.End()

	log := f.logger.WithContext(ctx).WithFields(map[string]any{
		"source":      record.Source,
		"external_id": record.ExternalID,
	})

	event := &models.Event{
		ExternalID:    strings.TrimSpace(record.ExternalID),
		Name:          normalizers.CollapseWhitespace(record.Name),
		Description:   strings.TrimSpace(record.Description),
		Hours:         strings.TrimSpace(record.Hours),
		Type:          strings.TrimSpace(record.Type),
		Category:      strings.TrimSpace(record.Category),
		Theme:         strings.TrimSpace(record.Theme),
		Price:         strings.TrimSpace(record.Price),
		Source:        record.Source,
		FromData:      record.FromData,
		ParserVersion: record.ParserVersion,
		Deleted:       record.Deleted,
		Reservation: models.Reservation{
			Phone: normalizers.NormalizePhone(record.Phone),
		},
	}

	if email := normalizers.NormalizeEmail(record.Email); email != "" {
		if f.validator.ValidEmail(email) {
			event.Reservation.Email = email
		} else {
			log.WithField("email", record.Email).Debug("Dropping invalid reservation email")
		}
	}
	if url := strings.TrimSpace(record.Website); url != "" {
		if f.validator.ValidURL(url) {
			event.Reservation.URL = url
		} else {
			log.WithField("website", record.Website).Debug("Dropping invalid reservation url")
		}
	}

	event.StartDate = f.parseDate(record.StartDate, "start_date", log)
	event.EndDate = f.parseDate(record.EndDate, "end_date", log)
	event.NormalizeDates()

	place, err := f.buildPlace(ctx, record)
	if err != nil {
		return nil, err
	}
	event.Place = place

	event.Fingerprint = fingerprint.ForEvent(event)
	return event, nil
}

func (f *Factory) parseDate(value, field string, log ectologger.Logger) *time.Time {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	t, err := parser.ParseDate(value, f.loc)
	if err != nil {
		log.WithError(err).WithField("field", field).Warn("Unable to parse date")
		return nil
	}
	return &t
}

func (f *Factory) buildPlace(ctx context.Context, record models.RawRecord) (*models.Place, error) {
	if strings.TrimSpace(record.PlaceName) == "" && record.PlaceExternalID == "" &&
		record.PlaceCity == "" && record.PlacePostalCode == "" && record.PlaceCountry == "" &&
		record.Latitude == nil && record.Longitude == nil {
		return nil, nil
	}

	place := &models.Place{
		ExternalID:  strings.TrimSpace(record.PlaceExternalID),
		Name:        normalizers.CollapseWhitespace(record.PlaceName),
		Street:      normalizers.CollapseWhitespace(record.PlaceStreet),
		PostalCode:  normalizers.NormalizePostalCode(record.PlacePostalCode),
		Latitude:    record.Latitude,
		Longitude:   record.Longitude,
		CityName:    normalizers.CollapseWhitespace(record.PlaceCity),
		CountryName: strings.TrimSpace(record.PlaceCountry),
		Location:    models.UnknownLocation(),
	}

	countryName := place.CountryName
	if countryName == "" && (place.CityName != "" || place.PostalCode != "") {
		countryName = f.defaultCountry
	}
	if countryName == "" {
		return place, nil
	}

	country, err := f.country(ctx, countryName)
	if err != nil {
		return nil, err
	}
	if country == nil {
		return place, nil
	}
	place.Location = models.CountryLocation(country)

	if place.CityName == "" && place.PostalCode == "" {
		return place, nil
	}
	city, err := f.city(ctx, country, place.CityName, place.PostalCode)
	if err != nil {
		return nil, err
	}
	if city != nil {
		place.Location = models.CityLocation(city)
	}
	return place, nil
}

func (f *Factory) country(ctx context.Context, name string) (*models.Country, error) {
	key := strings.ToLower(name)
	if country, ok := f.countries[key]; ok {
		return country, nil
	}
	country, err := f.resolver.ResolveCountry(ctx, name)
	if err != nil {
		return nil, err
	}
	f.countries[key] = country
	return country, nil
}

func (f *Factory) city(ctx context.Context, country *models.Country, name, postalCode string) (*models.City, error) {
	key := country.ID + "|" + strings.ToLower(name) + "|" + postalCode
	if city, ok := f.cities[key]; ok {
		return city, nil
	}
	city, err := f.resolver.ResolveCity(ctx, country, name, postalCode)
	if err != nil {
		return nil, err
	}
	f.cities[key] = city
	return city, nil
}
