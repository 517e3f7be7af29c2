package location

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/bynight/pkg/database"
	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/normalizers"
	"github.com/Ramsey-B/bynight/pkg/tracing"
)

// CityCandidate is a zip_city entry joined with the city it belongs to.
type CityCandidate struct {
	ZipName       string  `db:"zip_name"`
	ZipPostalCode string  `db:"zip_postal_code"`
	CityID        int64   `db:"city_id"`
	CityName      string  `db:"city_name"`
	CitySlug      string  `db:"city_slug"`
	CityPostal    *string `db:"city_postal_code"`
}

// Repository resolves countries and cities from raw names and postal codes
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new location repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ResolveCountry finds a country by name, display name or ISO code, case-insensitively
func (r *Repository) ResolveCountry(ctx context.Context, name string) (*models.Country, error) {
	ctx, span := tracing.StartSpan(ctx, "location.Repository.ResolveCountry")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	lower := strings.ToLower(name)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "name", "display_name", "at_display_name", "slug")
	sb.From("country")
	sb.Where(sb.Or(
		sb.Equal("LOWER(name)", lower),
		sb.Equal("LOWER(display_name)", lower),
		sb.Equal("slug", normalizers.Slugify(name)),
		sb.Equal("id", strings.ToUpper(name)),
	))
	sb.OrderBy("id")
	sb.Limit(1)

	query, args := sb.Build()
	var country models.Country
	if err := r.db.GetContext(ctx, &country, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("country", name).Error("Failed to resolve country")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve country")
	}
	return &country, nil
}

// ResolveCity finds the single city of country matching name and postal code.
// It returns nil when the match is missing or ambiguous.
func (r *Repository) ResolveCity(ctx context.Context, country *models.Country, name, postalCode string) (*models.City, error) {
	ctx, span := tracing.StartSpan(ctx, "location.Repository.ResolveCity")
	defer span.End()

	if country == nil {
		return nil, nil
	}
	postalCode = normalizers.NormalizePostalCode(postalCode)
	variants := ectolinq.Map(normalizers.CityNameVariants(name), strings.ToLower)
	if len(variants) == 0 && postalCode == "" {
		return nil, nil
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"country":     country.ID,
		"city":        name,
		"postal_code": postalCode,
	})

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(
		"z.name AS zip_name",
		"z.postal_code AS zip_postal_code",
		"c.id AS city_id",
		"c.name AS city_name",
		"c.slug AS city_slug",
		"c.postal_code AS city_postal_code",
	)
	sb.From("zip_city z")
	sb.Join("city c", "c.id = z.city_id")

	matches := []string{}
	if postalCode != "" {
		matches = append(matches, sb.Equal("z.postal_code", postalCode))
	}
	if len(variants) > 0 {
		matches = append(matches, sb.In("LOWER(z.name)", sqlbuilder.Flatten(variants)...))
	}
	sb.Where(sb.Equal("z.country_id", country.ID), sb.Or(matches...))
	sb.OrderBy("c.id")

	query, args := sb.Build()
	var candidates []CityCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		log.WithError(err).Error("Failed to resolve city")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve city")
	}

	picked := PickCity(candidates, variants, postalCode)
	if picked == nil {
		log.Debugf("No single city among %d candidates", len(candidates))
		return nil, nil
	}

	city := &models.City{
		ID:      picked.CityID,
		Name:    picked.CityName,
		Slug:    picked.CitySlug,
		Country: country,
	}
	if picked.CityPostal != nil {
		city.PostalCode = *picked.CityPostal
	}
	return city, nil
}

// PickCity applies the resolution order: a single city matching both the postal code and
// the name, then a single city matching the name, then a single city matching the postal code.
// variants must be lowercase.
func PickCity(candidates []CityCandidate, variants []string, postalCode string) *CityCandidate {
	byName := func(c CityCandidate) bool {
		return ectolinq.Contains(variants, strings.ToLower(c.ZipName))
	}
	byPostal := func(c CityCandidate) bool {
		return postalCode != "" && c.ZipPostalCode == postalCode
	}

	if len(variants) > 0 && postalCode != "" {
		if c := single(candidates, func(c CityCandidate) bool { return byName(c) && byPostal(c) }); c != nil {
			return c
		}
	}
	if len(variants) > 0 {
		if c := single(candidates, byName); c != nil {
			return c
		}
	}
	if postalCode != "" {
		return single(candidates, byPostal)
	}
	return nil
}

// single returns the one city matching keep; several rows of the same city count once.
func single(candidates []CityCandidate, keep func(c CityCandidate) bool) *CityCandidate {
	var found *CityCandidate
	for i := range candidates {
		if !keep(candidates[i]) {
			continue
		}
		if found != nil && found.CityID != candidates[i].CityID {
			return nil
		}
		if found == nil {
			found = &candidates[i]
		}
	}
	return found
}
