package models

import (
	"strings"
	"time"

	"github.com/Ramsey-B/bynight/pkg/reject"
)

// Place is a venue. ID 0 means the place was never persisted.
type Place struct {
	ID         int64    `json:"id,omitempty"`
	ExternalID string   `json:"external_id,omitempty"`
	Name       string   `json:"name"`
	Street     string   `json:"street,omitempty"`
	PostalCode string   `json:"postal_code,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude  *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`

	// CityName and CountryName keep the raw values received from the source.
	CityName    string `json:"city_name,omitempty"`
	CountryName string `json:"country_name,omitempty"`

	Location Location       `json:"-"`
	Reject   *reject.Reject `json:"-"`
}

func (p *Place) IsPersisted() bool {
	return p != nil && p.ID != 0
}

func (p *Place) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

type Reservation struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	URL   string `json:"url,omitempty" validate:"omitempty,url"`
}

// Event is an agenda entry. ID 0 means the event was never persisted.
type Event struct {
	ID          int64  `json:"id,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
	UserID      *int64 `json:"user_id,omitempty"`
	Place       *Place `json:"place,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Hours     string     `json:"hours,omitempty"`

	Type        string      `json:"type,omitempty"`
	Category    string      `json:"category,omitempty"`
	Theme       string      `json:"theme,omitempty"`
	Price       string      `json:"price,omitempty"`
	Reservation Reservation `json:"reservation"`
	Source      string      `json:"source,omitempty"`

	FromData      string `json:"from_data,omitempty"`
	ParserVersion string `json:"parser_version,omitempty"`
	Deleted       bool   `json:"deleted,omitempty"`
	Fingerprint   string `json:"fingerprint,omitempty"`

	Reject      *reject.Reject `json:"-"`
	PlaceReject *reject.Reject `json:"-"`
}

func (e *Event) IsPersisted() bool {
	return e != nil && e.ID != 0
}

// IsUserAuthored reports whether a site user created the event by hand.
func (e *Event) IsUserAuthored() bool {
	return e.UserID != nil
}

// LocationSlug is the slug of the event's place location, "unknown" when there is none.
func (e *Event) LocationSlug() string {
	if e.Place == nil {
		return UnknownLocationID
	}
	return e.Place.Location.Slug()
}

// NormalizeDates makes the end date default to the start date.
func (e *Event) NormalizeDates() {
	if e.EndDate == nil && e.StartDate != nil {
		end := *e.StartDate
		e.EndDate = &end
	}
}

// IsIndexable reports whether the event ends within the window the search index keeps.
func (e *Event) IsIndexable(now time.Time) bool {
	if e.EndDate == nil {
		return false
	}
	from := now.AddDate(0, -6, 0)
	to := now.AddDate(2, 0, 0)
	return !e.EndDate.Before(from) && !e.EndDate.After(to)
}

// DistinctTags returns the non-empty type, category and theme tags, deduplicated case-insensitively.
func (e *Event) DistinctTags() []string {
	seen := map[string]bool{}
	tags := []string{}
	for _, raw := range []string{e.Type, e.Category, e.Theme} {
		for _, tag := range strings.Split(raw, ",") {
			tag = strings.TrimSpace(tag)
			key := strings.ToLower(tag)
			if tag == "" || seen[key] {
				continue
			}
			seen[key] = true
			tags = append(tags, tag)
		}
	}
	return tags
}
