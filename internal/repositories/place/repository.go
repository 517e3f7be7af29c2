package place

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/bynight/pkg/database"
	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/tracing"
)

// Row is a place joined with its city and country. Every column is nullable so the
// row can also come from a LEFT JOIN.
type Row struct {
	ID         *int64   `db:"id"`
	ExternalID *string  `db:"external_id"`
	Name       *string  `db:"name"`
	Street     *string  `db:"street"`
	PostalCode *string  `db:"postal_code"`
	Latitude   *float64 `db:"latitude"`
	Longitude  *float64 `db:"longitude"`

	CityID         *int64  `db:"city_id"`
	CityName       *string `db:"city_name"`
	CitySlug       *string `db:"city_slug"`
	CityPostalCode *string `db:"city_postal_code"`

	CountryID            *string `db:"country_id"`
	CountryName          *string `db:"country_name"`
	CountryDisplayName   *string `db:"country_display_name"`
	CountryAtDisplayName *string `db:"country_at_display_name"`
	CountrySlug          *string `db:"country_slug"`
}

var columns = []struct{ expr, name string }{
	{"p.id", "id"},
	{"p.external_id", "external_id"},
	{"p.name", "name"},
	{"p.street", "street"},
	{"p.postal_code", "postal_code"},
	{"p.latitude", "latitude"},
	{"p.longitude", "longitude"},
	{"c.id", "city_id"},
	{"c.name", "city_name"},
	{"c.slug", "city_slug"},
	{"c.postal_code", "city_postal_code"},
	{"co.id", "country_id"},
	{"co.name", "country_name"},
	{"co.display_name", "country_display_name"},
	{"co.at_display_name", "country_at_display_name"},
	{"co.slug", "country_slug"},
}

// Columns lists the select expressions of a Row, aliased under prefix (e.g. "place.").
func Columns(prefix string) []string {
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, fmt.Sprintf(`%s AS "%s%s"`, c.expr, prefix, c.name))
	}
	return cols
}

// JoinLocation joins the city and country of the place aliased p.
func JoinLocation(sb *sqlbuilder.SelectBuilder) {
	sb.JoinWithOption(sqlbuilder.LeftJoin, "city c", "c.id = p.city_id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "country co", "co.id = COALESCE(c.country_id, p.country_id)")
}

// ToModel hydrates the place and its location. It returns nil for an empty row.
func (r Row) ToModel() *models.Place {
	if r.ID == nil {
		return nil
	}

	p := &models.Place{
		ID:         *r.ID,
		ExternalID: str(r.ExternalID),
		Name:       str(r.Name),
		Street:     str(r.Street),
		PostalCode: str(r.PostalCode),
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Location:   models.UnknownLocation(),
	}

	var country *models.Country
	if r.CountryID != nil {
		country = &models.Country{
			ID:            *r.CountryID,
			Name:          str(r.CountryName),
			DisplayName:   str(r.CountryDisplayName),
			AtDisplayName: str(r.CountryAtDisplayName),
			Slug:          str(r.CountrySlug),
		}
		p.Location = models.CountryLocation(country)
		p.CountryName = country.Name
	}
	if r.CityID != nil {
		city := &models.City{
			ID:         *r.CityID,
			Name:       str(r.CityName),
			Slug:       str(r.CitySlug),
			PostalCode: str(r.CityPostalCode),
			Country:    country,
		}
		p.Location = models.CityLocation(city)
		p.CityName = city.Name
	}
	return p
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Repository reads known places
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new place repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByCityIDs returns the places located in any of the cities
func (r *Repository) FindByCityIDs(ctx context.Context, cityIDs []int64) ([]*models.Place, error) {
	ctx, span := tracing.StartSpan(ctx, "place.Repository.FindByCityIDs")
	defer span.End()

	if len(cityIDs) == 0 {
		return []*models.Place{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(Columns("")...)
	sb.From("place p")
	JoinLocation(sb)
	sb.Where(sb.In("p.city_id", sqlbuilder.Flatten(cityIDs)...))
	sb.OrderBy("p.id")

	return r.find(ctx, sb, map[string]any{"method": "FindByCityIDs", "city_ids": cityIDs})
}

// FindByCountryIDsWithoutCity returns the places of the countries that have no city
func (r *Repository) FindByCountryIDsWithoutCity(ctx context.Context, countryIDs []string) ([]*models.Place, error) {
	ctx, span := tracing.StartSpan(ctx, "place.Repository.FindByCountryIDsWithoutCity")
	defer span.End()

	if len(countryIDs) == 0 {
		return []*models.Place{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(Columns("")...)
	sb.From("place p")
	JoinLocation(sb)
	sb.Where(
		sb.IsNull("p.city_id"),
		sb.In("p.country_id", sqlbuilder.Flatten(countryIDs)...),
	)
	sb.OrderBy("p.id")

	return r.find(ctx, sb, map[string]any{"method": "FindByCountryIDsWithoutCity", "country_ids": countryIDs})
}

func (r *Repository) find(ctx context.Context, sb *sqlbuilder.SelectBuilder, fields map[string]any) ([]*models.Place, error) {
	query, args := sb.Build()
	var rows []Row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("Failed to find places")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find places")
	}

	places := make([]*models.Place, 0, len(rows))
	for _, row := range rows {
		if p := row.ToModel(); p != nil {
			places = append(places, p)
		}
	}
	r.logger.WithContext(ctx).WithFields(fields).Debugf("Found %d places", len(places))
	return places, nil
}
