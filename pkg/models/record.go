package models

import "github.com/Ramsey-B/bynight/pkg/reject"

// RawRecord is one event as emitted by a source parser.
type RawRecord struct {
	ExternalID  string `json:"external_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Hours       string `json:"hours,omitempty"`

	PlaceExternalID string   `json:"place_external_id,omitempty"`
	PlaceName       string   `json:"place_name,omitempty"`
	PlaceStreet     string   `json:"place_street,omitempty"`
	PlacePostalCode string   `json:"place_postal_code,omitempty"`
	PlaceCity       string   `json:"place_city,omitempty"`
	PlaceCountry    string   `json:"place_country,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`

	Type     string `json:"type,omitempty"`
	Category string `json:"category,omitempty"`
	Theme    string `json:"theme,omitempty"`
	Price    string `json:"price,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Website  string `json:"website,omitempty"`
	Source   string `json:"source,omitempty"`

	Deleted bool `json:"deleted,omitempty"`

	FromData      string `json:"from_data,omitempty"`
	ParserVersion string `json:"parser_version,omitempty"`
}

type OutcomeStatus string

const (
	OutcomeCreated   OutcomeStatus = "created"
	OutcomeUpdated   OutcomeStatus = "updated"
	OutcomeDuplicate OutcomeStatus = "duplicate"
	OutcomeUnchanged OutcomeStatus = "unchanged"
	OutcomeRejected  OutcomeStatus = "rejected"
	OutcomeInvalid   OutcomeStatus = "invalid"
)

type Violation struct {
	Field   string        `json:"field"`
	Reason  reject.Reason `json:"reason"`
	Message string        `json:"message"`
}

// Outcome is the import decision for one record.
type Outcome struct {
	Status            OutcomeStatus `json:"status"`
	Source            string        `json:"source"`
	ExternalID        string        `json:"external_id,omitempty"`
	EventID           int64         `json:"event_id,omitempty"`
	PlaceID           int64         `json:"place_id,omitempty"`
	PlaceExternalID   string        `json:"place_external_id,omitempty"`
	PlaceCandidates   int           `json:"place_candidates"`
	LocationSlug      string        `json:"location_slug,omitempty"`
	RejectReason      reject.Reason `json:"reject_reason"`
	PlaceRejectReason reject.Reason `json:"place_reject_reason"`
	Violations        []Violation   `json:"violations,omitempty"`
	Message           string        `json:"message,omitempty"`
	Fingerprint       string        `json:"fingerprint,omitempty"`
	FromData          string        `json:"from_data,omitempty"`
	ParserVersion     string        `json:"parser_version,omitempty"`
}
