// Package validation decides which rejection flags an imported event carries and turns
// them into user facing violations.
package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/normalizers"
	"github.com/Ramsey-B/bynight/pkg/reject"
)

type Config struct {
	MinNameLength        int
	MaxNameLength        int
	MaxDescriptionLength int
	SpamKeywords         []string
}

func DefaultConfig() Config {
	return Config{
		MinNameLength:        3,
		MaxNameLength:        255,
		MaxDescriptionLength: 20000,
		SpamKeywords:         []string{"viagra", "casino en ligne", "crypto gratuite"},
	}
}

// Validator fills the Reject and PlaceReject of events.
type Validator struct {
	validate *validator.Validate
	config   Config
	spam     []string
}

func NewValidator(config Config) *Validator {
	spam := make([]string, 0, len(config.SpamKeywords))
	for _, keyword := range config.SpamKeywords {
		if keyword = normalizers.FoldAccents(strings.ToLower(strings.TrimSpace(keyword))); keyword != "" {
			spam = append(spam, keyword)
		}
	}
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		config:   config,
		spam:     spam,
	}
}

// Validate resets and recomputes the rejection flags of e. Place flags are set on
// e.PlaceReject and also merged into e.Reject. It reports whether e is valid.
func (v *Validator) Validate(e *models.Event) bool {
	e.Reject = v.validateEvent(e)
	e.PlaceReject = v.validatePlace(e.Place)
	e.Reject.Merge(e.PlaceReject)
	if e.Place != nil {
		e.Place.Reject = e.PlaceReject
	}
	return e.Reject.IsValid()
}

func (v *Validator) validateEvent(e *models.Event) *reject.Reject {
	r := reject.New()

	if e.Deleted {
		r.AddReason(reject.EventDeleted)
	}

	nameLength := utf8.RuneCountInString(strings.TrimSpace(e.Name))
	if nameLength < v.config.MinNameLength || (v.config.MaxNameLength > 0 && nameLength > v.config.MaxNameLength) {
		r.AddReason(reject.BadEventName)
	}

	if e.StartDate == nil {
		r.AddReason(reject.BadEventDate)
	} else if e.EndDate != nil && e.EndDate.Before(*e.StartDate) {
		r.AddReason(reject.BadEventDateInterval)
	}

	if !utf8.ValidString(e.Description) ||
		(v.config.MaxDescriptionLength > 0 && utf8.RuneCountInString(e.Description) > v.config.MaxDescriptionLength) {
		r.AddReason(reject.BadEventDescription)
	} else if v.isSpam(e.Description) {
		r.AddReason(reject.SpamEventDescription)
	}

	return r
}

func (v *Validator) validatePlace(place *models.Place) *reject.Reject {
	r := reject.New()
	if place == nil {
		return r.AddReason(reject.NoPlaceProvided)
	}

	if strings.TrimSpace(place.Name) == "" {
		r.AddReason(reject.BadPlaceName)
	}

	if err := v.validate.Struct(place); err != nil {
		r.AddReason(reject.BadPlaceLocation)
	} else if (place.Latitude == nil) != (place.Longitude == nil) {
		r.AddReason(reject.BadPlaceLocation)
	}

	cityName := strings.TrimSpace(place.CityName)
	postalCode := normalizers.NormalizePostalCode(place.PostalCode)
	countryName := strings.TrimSpace(place.CountryName)

	if cityName == "" && postalCode == "" && countryName == "" && !place.HasCoordinates() && place.Location.IsUnknown() {
		r.AddReason(reject.NoPlaceLocationProvided)
	}

	if place.Location.Country() == nil {
		if countryName == "" {
			r.AddReason(reject.NoCountryProvided)
		} else {
			r.AddReason(reject.BadCountry)
		}
	}

	if !place.Location.IsCity() && place.Location.Country() != nil {
		if cityName != "" {
			r.AddReason(reject.BadPlaceCityName)
		} else if postalCode != "" {
			r.AddReason(reject.BadPlaceCityPostalCode)
		}
	}

	if postalCode != "" && !IsPostalCode(postalCode) {
		r.AddReason(reject.BadPlaceCityPostalCode)
	}

	return r
}

func (v *Validator) isSpam(description string) bool {
	if len(v.spam) == 0 || description == "" {
		return false
	}
	folded := normalizers.FoldAccents(strings.ToLower(description))
	for _, keyword := range v.spam {
		if strings.Contains(folded, keyword) {
			return true
		}
	}
	return false
}

// IsPostalCode accepts 4 to 6 letters or digits, with at least one digit.
func IsPostalCode(code string) bool {
	if len(code) < 4 || len(code) > 6 {
		return false
	}
	hasDigit := false
	for _, r := range code {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
		default:
			return false
		}
	}
	return hasDigit
}

// ValidEmail and ValidURL let the record factory drop malformed reservation contacts.
func (v *Validator) ValidEmail(email string) bool {
	return v.validate.Var(email, "required,email") == nil
}

func (v *Validator) ValidURL(url string) bool {
	return v.validate.Var(url, "required,url") == nil
}
