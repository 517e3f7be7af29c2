// Package fingerprint hashes event content so an unchanged re-import can be detected.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/normalizers"
)

// Generate returns the SHA-256 of the canonical JSON of data.
func Generate(data map[string]any) string {
	var b strings.Builder
	writeCanonical(&b, data)
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

// ForEvent fingerprints the content an import can change. Identity, bookkeeping and
// parser stamps are left out so a new parser version alone does not count as a change.
func ForEvent(e *models.Event) string {
	data := map[string]any{
		"name":        strings.TrimSpace(e.Name),
		"description": strings.TrimSpace(e.Description),
		"start_date":  formatDate(e.StartDate),
		"end_date":    formatDate(e.EndDate),
		"hours":       strings.TrimSpace(e.Hours),
		"type":        e.Type,
		"category":    e.Category,
		"theme":       e.Theme,
		"price":       strings.TrimSpace(e.Price),
		"reservation": map[string]any{
			"phone": normalizers.NormalizePhone(e.Reservation.Phone),
			"email": normalizers.NormalizeEmail(e.Reservation.Email),
			"url":   strings.TrimSpace(e.Reservation.URL),
		},
		"deleted": e.Deleted,
	}
	if e.Place != nil {
		place := map[string]any{
			"external_id": e.Place.ExternalID,
			"name":        normalizers.NormalizePlaceName(e.Place.Name),
			"street":      normalizers.NormalizeStreet(e.Place.Street),
			"postal_code": normalizers.NormalizePostalCode(e.Place.PostalCode),
			"location":    e.Place.Location.ID(),
		}
		if e.Place.HasCoordinates() {
			place["latitude"] = *e.Place.Latitude
			place["longitude"] = *e.Place.Longitude
		}
		data["place"] = place
	}
	return Generate(data)
}

// HasChanged compares two fingerprints. An empty previous fingerprint always counts as a change.
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint == "" || oldFingerprint != newFingerprint
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeCanonical(b *strings.Builder, data any) {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteString(":")
			writeCanonical(b, v[k])
		}
		b.WriteString("}")
	case []any:
		b.WriteString("[")
		for i, item := range v {
			if i > 0 {
				b.WriteString(",")
			}
			writeCanonical(b, item)
		}
		b.WriteString("]")
	default:
		raw, _ := json.Marshal(v)
		b.Write(raw)
	}
}
