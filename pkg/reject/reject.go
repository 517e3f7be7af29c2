// Package reject tracks why an event or place was refused during an import.
package reject

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Ramsey-B/bynight/pkg/errors"
)

// Reason is a set of rejection flags. Each flag occupies one bit.
type Reason uint32

const (
	Valid                   Reason = 0
	BadEventName            Reason = 2
	BadEventDate            Reason = 4
	BadEventDateInterval    Reason = 8
	SpamEventDescription    Reason = 16
	BadEventDescription     Reason = 32
	NoNeedToUpdate          Reason = 64
	NoPlaceProvided         Reason = 128
	NoPlaceLocationProvided Reason = 256
	BadPlaceName            Reason = 512
	BadPlaceLocation        Reason = 1024
	BadPlaceCityName        Reason = 2048
	BadPlaceCityPostalCode  Reason = 4096
	BadUser                 Reason = 8192
	EventDeleted            Reason = 16384
	// 32768 and 65536 are reserved.
	NoCountryProvided Reason = 131072
	BadCountry        Reason = 262144
)

// All lists every defined flag in ascending bit order.
var All = []Reason{
	BadEventName,
	BadEventDate,
	BadEventDateInterval,
	SpamEventDescription,
	BadEventDescription,
	NoNeedToUpdate,
	NoPlaceProvided,
	NoPlaceLocationProvided,
	BadPlaceName,
	BadPlaceLocation,
	BadPlaceCityName,
	BadPlaceCityPostalCode,
	BadUser,
	EventDeleted,
	NoCountryProvided,
	BadCountry,
}

var names = map[Reason]string{
	Valid:                   "valid",
	BadEventName:            "bad_event_name",
	BadEventDate:            "bad_event_date",
	BadEventDateInterval:    "bad_event_date_interval",
	SpamEventDescription:    "spam_event_description",
	BadEventDescription:     "bad_event_description",
	NoNeedToUpdate:          "no_need_to_update",
	NoPlaceProvided:         "no_place_provided",
	NoPlaceLocationProvided: "no_place_location_provided",
	BadPlaceName:            "bad_place_name",
	BadPlaceLocation:        "bad_place_location",
	BadPlaceCityName:        "bad_place_city_name",
	BadPlaceCityPostalCode:  "bad_place_city_postal_code",
	BadUser:                 "bad_user",
	EventDeleted:            "event_deleted",
	NoCountryProvided:       "no_country_provided",
	BadCountry:              "bad_country",
}

// mask holds every bit that names a flag.
var mask = func() Reason {
	var m Reason
	for _, r := range All {
		m |= r
	}
	return m
}()

// Defined reports whether every bit of r names a flag.
func (r Reason) Defined() bool {
	return r&^mask == 0
}

// String returns the flag name for a single flag, or the names of all set flags joined by "|".
func (r Reason) String() string {
	if name, ok := names[r]; ok {
		return name
	}
	parts := []string{}
	for _, flag := range All {
		if r&flag == flag {
			parts = append(parts, names[flag])
		}
	}
	if rest := r &^ mask; rest != 0 {
		parts = append(parts, "undefined")
	}
	return strings.Join(parts, "|")
}

// Reject accumulates rejection reasons. The zero value is valid.
type Reject struct {
	reason Reason
}

// New returns a Reject in the valid state.
func New() *Reject {
	return &Reject{reason: Valid}
}

// Reason returns the raw bit set.
func (r *Reject) Reason() Reason {
	return r.reason
}

// SetReason replaces the whole state.
func (r *Reject) SetReason(reason Reason) error {
	if !reason.Defined() {
		return errors.NewArgumentErrorf("reason", "value %d carries undefined flags", uint32(reason))
	}
	r.reason = reason
	return nil
}

// AddReason sets every bit of reason.
func (r *Reject) AddReason(reason Reason) *Reject {
	r.reason |= reason
	return r
}

// RemoveReason clears every bit of reason.
func (r *Reject) RemoveReason(reason Reason) *Reject {
	r.reason &^= reason
	return r
}

// SetValid clears all flags.
func (r *Reject) SetValid() *Reject {
	r.reason = Valid
	return r
}

// Merge adds every flag of other.
func (r *Reject) Merge(other *Reject) *Reject {
	if other != nil {
		r.reason |= other.reason
	}
	return r
}

// Has reports whether every bit of reason is set. Has(Valid) is true for any state.
func (r *Reject) Has(reason Reason) bool {
	return r.reason&reason == reason
}

// Reasons lists the set flags in ascending bit order.
func (r *Reject) Reasons() []Reason {
	reasons := []Reason{}
	for _, flag := range All {
		if r.reason&flag != 0 {
			reasons = append(reasons, flag)
		}
	}
	return reasons
}

func (r *Reject) String() string {
	return r.reason.String()
}

func (r *Reject) IsValid() bool {
	return r.reason == Valid
}

func (r *Reject) IsBadEventName() bool {
	return r.Has(BadEventName)
}

func (r *Reject) IsBadEventDate() bool {
	return r.Has(BadEventDate)
}

func (r *Reject) IsBadEventDateInterval() bool {
	return r.Has(BadEventDateInterval)
}

func (r *Reject) IsSpamEventDescription() bool {
	return r.Has(SpamEventDescription)
}

func (r *Reject) IsBadEventDescription() bool {
	return r.Has(BadEventDescription)
}

func (r *Reject) HasNoNeedToUpdate() bool {
	return r.Has(NoNeedToUpdate)
}

func (r *Reject) HasNoPlaceProvided() bool {
	return r.Has(NoPlaceProvided)
}

func (r *Reject) HasNoPlaceLocationProvided() bool {
	return r.Has(NoPlaceLocationProvided)
}

func (r *Reject) IsBadPlaceName() bool {
	return r.Has(BadPlaceName)
}

func (r *Reject) IsBadPlaceLocation() bool {
	return r.Has(BadPlaceLocation)
}

func (r *Reject) IsBadPlaceCityName() bool {
	return r.Has(BadPlaceCityName)
}

func (r *Reject) IsBadPlaceCityPostalCode() bool {
	return r.Has(BadPlaceCityPostalCode)
}

func (r *Reject) IsBadUser() bool {
	return r.Has(BadUser)
}

func (r *Reject) IsEventDeleted() bool {
	return r.Has(EventDeleted)
}

func (r *Reject) HasNoCountryProvided() bool {
	return r.Has(NoCountryProvided)
}

func (r *Reject) IsBadCountry() bool {
	return r.Has(BadCountry)
}

// MarshalJSON encodes the state as its integer value.
func (r *Reject) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint32(r.reason))
}

// UnmarshalJSON decodes an integer value. A JSON null is refused.
func (r *Reject) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return errors.NewArgumentError("reason", "reason must not be null")
	}
	var value uint32
	if err := json.Unmarshal(data, &value); err != nil {
		return errors.NewArgumentErrorf("reason", "invalid reason: %v", err)
	}
	return r.SetReason(Reason(value))
}
