package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Ramsey-B/bynight/pkg/normalizers"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

var frenchMonths = map[string]time.Month{
	"janvier":   time.January,
	"fevrier":   time.February,
	"mars":      time.March,
	"avril":     time.April,
	"mai":       time.May,
	"juin":      time.June,
	"juillet":   time.July,
	"aout":      time.August,
	"septembre": time.September,
	"octobre":   time.October,
	"novembre":  time.November,
	"decembre":  time.December,
}

var frenchWeekdays = map[string]bool{
	"lundi": true, "mardi": true, "mercredi": true, "jeudi": true,
	"vendredi": true, "samedi": true, "dimanche": true, "le": true,
}

// ParseDate reads the date formats found in source payloads. Dates without a
// zone are read in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}

	if t, ok := parseFrenchDate(value, loc); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", value)
}

// parseFrenchDate accepts "12 janvier 2024", "samedi 1er mars 2024" and an optional "à 20h30".
func parseFrenchDate(value string, loc *time.Location) (time.Time, bool) {
	folded := normalizers.FoldAccents(strings.ToLower(value))
	words := strings.Fields(strings.NewReplacer(",", " ", " a ", " ", " des ", " ").Replace(folded))
	for len(words) > 0 && frenchWeekdays[words[0]] {
		words = words[1:]
	}
	if len(words) < 3 {
		return time.Time{}, false
	}

	day, err := strconv.Atoi(strings.TrimSuffix(words[0], "er"))
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	month, ok := frenchMonths[words[1]]
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(words[2])
	if err != nil || year < 1900 {
		return time.Time{}, false
	}

	hour, minute := 0, 0
	if len(words) > 3 {
		h, m, ok := parseFrenchHour(words[3])
		if !ok {
			return time.Time{}, false
		}
		hour, minute = h, m
	}

	t := time.Date(year, month, day, hour, minute, 0, 0, loc)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func parseFrenchHour(value string) (int, int, bool) {
	parts := strings.SplitN(strings.Replace(value, ":", "h", 1), "h", 2)
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute := 0
	if len(parts) == 2 && parts[1] != "" {
		minute, err = strconv.Atoi(parts[1])
		if err != nil || minute < 0 || minute > 59 {
			return 0, 0, false
		}
	}
	return hour, minute, true
}
