package event

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/bynight/internal/repositories/place"
	"github.com/Ramsey-B/bynight/pkg/database"
	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/tracing"
)

type row struct {
	ID            int64      `db:"id"`
	ExternalID    *string    `db:"external_id"`
	UserID        *int64     `db:"user_id"`
	Name          string     `db:"name"`
	Description   *string    `db:"description"`
	StartDate     *time.Time `db:"start_date"`
	EndDate       *time.Time `db:"end_date"`
	Hours         *string    `db:"hours"`
	Type          *string    `db:"type"`
	Category      *string    `db:"category"`
	Theme         *string    `db:"theme"`
	Price         *string    `db:"price"`
	Phone         *string    `db:"phone"`
	Email         *string    `db:"email"`
	URL           *string    `db:"url"`
	Source        *string    `db:"source"`
	FromData      *string    `db:"from_data"`
	ParserVersion *string    `db:"parser_version"`
	Deleted       bool       `db:"deleted"`
	Fingerprint   *string    `db:"fingerprint"`

	Place place.Row `db:"place"`
}

func (r row) toModel() *models.Event {
	return &models.Event{
		ID:            r.ID,
		ExternalID:    str(r.ExternalID),
		UserID:        r.UserID,
		Place:         r.Place.ToModel(),
		Name:          r.Name,
		Description:   str(r.Description),
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
		Hours:         str(r.Hours),
		Type:          str(r.Type),
		Category:      str(r.Category),
		Theme:         str(r.Theme),
		Price:         str(r.Price),
		Reservation:   models.Reservation{Phone: str(r.Phone), Email: str(r.Email), URL: str(r.URL)},
		Source:        str(r.Source),
		FromData:      str(r.FromData),
		ParserVersion: str(r.ParserVersion),
		Deleted:       r.Deleted,
		Fingerprint:   str(r.Fingerprint),
	}
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Repository reads known agenda events
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new event repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByExternalIDs returns the events carrying any of the external ids, with their place
func (r *Repository) FindByExternalIDs(ctx context.Context, externalIDs []string) ([]*models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.FindByExternalIDs")
	defer span.End()

	if len(externalIDs) == 0 {
		return []*models.Event{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(append([]string{
		"a.id", "a.external_id", "a.user_id", "a.name", "a.description", "a.start_date", "a.end_date",
		"a.hours", "a.type", "a.category", "a.theme", "a.price", "a.phone", "a.email", "a.url",
		"a.source", "a.from_data", "a.parser_version", "a.deleted", "a.fingerprint",
	}, place.Columns("place.")...)...)
	sb.From("agenda a")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "place p", "p.id = a.place_id")
	place.JoinLocation(sb)
	sb.Where(sb.In("a.external_id", sqlbuilder.Flatten(externalIDs)...))
	sb.OrderBy("a.id")

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"method":       "FindByExternalIDs",
			"external_ids": len(externalIDs),
		}).Error("Failed to find events by external id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find events")
	}

	events := make([]*models.Event, 0, len(rows))
	for _, rec := range rows {
		events = append(events, rec.toModel())
	}
	return events, nil
}
