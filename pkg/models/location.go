package models

import "fmt"

const UnknownLocationID = "unknown"

// Country is a country known to the site. ID is the ISO code.
type Country struct {
	ID            string `json:"id" db:"id"`
	Name          string `json:"name" db:"name"`
	DisplayName   string `json:"display_name" db:"display_name"`
	AtDisplayName string `json:"at_display_name" db:"at_display_name"`
	Slug          string `json:"slug" db:"slug"`
}

// City is a city known to the site. A city always belongs to a country.
type City struct {
	ID         int64    `json:"id" db:"id"`
	Name       string   `json:"name" db:"name"`
	Slug       string   `json:"slug" db:"slug"`
	PostalCode string   `json:"postal_code,omitempty" db:"postal_code"`
	Country    *Country `json:"country,omitempty" db:"-"`
}

type LocationKind int

const (
	LocationUnknown LocationKind = iota
	LocationCity
	LocationCountry
)

func (k LocationKind) String() string {
	switch k {
	case LocationCity:
		return "city"
	case LocationCountry:
		return "country"
	default:
		return "unknown"
	}
}

// Location is where a place sits: a city, a country without a city, or nowhere known.
// Build it with CityLocation, CountryLocation or UnknownLocation.
type Location struct {
	kind    LocationKind
	city    *City
	country *Country
}

func CityLocation(city *City) Location {
	if city == nil {
		return UnknownLocation()
	}
	return Location{kind: LocationCity, city: city, country: city.Country}
}

func CountryLocation(country *Country) Location {
	if country == nil {
		return UnknownLocation()
	}
	return Location{kind: LocationCountry, country: country}
}

func UnknownLocation() Location {
	return Location{kind: LocationUnknown}
}

func (l Location) Kind() LocationKind {
	return l.kind
}

func (l Location) IsCity() bool {
	return l.kind == LocationCity
}

func (l Location) IsCountry() bool {
	return l.kind == LocationCountry
}

func (l Location) IsUnknown() bool {
	return l.kind == LocationUnknown
}

// City returns the city, or nil unless the location is a city.
func (l Location) City() *City {
	return l.city
}

// Country returns the country of the location. A city location yields the city's country.
func (l Location) Country() *Country {
	return l.country
}

func (l Location) ID() string {
	switch {
	case l.city != nil:
		return fmt.Sprintf("%d", l.city.ID)
	case l.country != nil:
		return l.country.ID
	default:
		return UnknownLocationID
	}
}

func (l Location) Slug() string {
	switch {
	case l.city != nil:
		return l.city.Slug
	case l.country != nil:
		return l.country.Slug
	default:
		return UnknownLocationID
	}
}

func (l Location) Name() string {
	switch {
	case l.city != nil:
		return l.city.Name
	case l.country != nil:
		return l.country.Name
	default:
		return ""
	}
}

// AppName is the site name shown for the location.
func (l Location) AppName() string {
	switch {
	case l.city != nil:
		return fmt.Sprintf("%s By Night", l.city.Name)
	case l.country != nil:
		return fmt.Sprintf("By Night %s", l.country.DisplayName)
	default:
		return "By Night"
	}
}

// AtName is the French "in <place>" form.
func (l Location) AtName() string {
	switch {
	case l.city != nil:
		return fmt.Sprintf("à %s", l.city.Name)
	case l.country != nil:
		return l.country.AtDisplayName
	default:
		return ""
	}
}
