// Package normalizers provides text normalization used to compare places and locations.
package normalizers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("fold_accents", FoldAccents)
	Register("remove_punctuation", RemovePunctuation)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("nphone", NormalizePhone)
	Register("nemail", NormalizeEmail)
	Register("npostal", NormalizePostalCode)
	Register("nplace", NormalizePlaceName)
	Register("nstreet", NormalizeStreet)
	Register("ncity", NormalizeCityName)
	Register("slug", Slugify)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value untouched.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

func Lowercase(s string) string {
	return strings.ToLower(s)
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

// FoldAccents strips diacritics: "Théâtre" becomes "Theatre".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// RemovePunctuation replaces punctuation with spaces so words stay apart.
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			result.WriteRune(' ')
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

var spaceRe = regexp.MustCompile(`\s+`)

func CollapseWhitespace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// NormalizePhone keeps digits and a leading plus sign.
func NormalizePhone(s string) string {
	var result strings.Builder
	for i, r := range strings.TrimSpace(s) {
		if unicode.IsDigit(r) || (i == 0 && r == '+') {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePostalCode uppercases and drops whitespace: "31 000" becomes "31000".
func NormalizePostalCode(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(unicode.ToUpper(r))
		}
	}
	return result.String()
}

var placeStopWords = map[string]bool{
	"le": true, "la": true, "les": true, "l": true,
	"de": true, "du": true, "des": true, "d": true,
	"the": true,
}

// NormalizePlaceName folds a venue name for comparison: lowercase, no accents, no
// punctuation, no leading articles.
func NormalizePlaceName(s string) string {
	s = CollapseWhitespace(RemovePunctuation(FoldAccents(strings.ToLower(s))))
	words := strings.Fields(s)
	for len(words) > 1 && placeStopWords[words[0]] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

var streetAbbreviations = map[string]string{
	"av":   "avenue",
	"ave":  "avenue",
	"bd":   "boulevard",
	"bld":  "boulevard",
	"blvd": "boulevard",
	"pl":   "place",
	"r":    "rue",
	"rte":  "route",
	"imp":  "impasse",
	"all":  "allee",
	"chem": "chemin",
	"st":   "saint",
	"ste":  "sainte",
}

// NormalizeStreet expands the usual French street abbreviations after folding.
func NormalizeStreet(s string) string {
	s = CollapseWhitespace(RemovePunctuation(FoldAccents(strings.ToLower(s))))
	words := strings.Fields(s)
	for i, word := range words {
		if full, ok := streetAbbreviations[word]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}

// NormalizeCityName folds a city name to a single comparable form:
// "St-Jean d’Illac" becomes "saint jean d illac".
func NormalizeCityName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "’", "'")
	s = CollapseWhitespace(RemovePunctuation(FoldAccents(s)))
	words := strings.Fields(s)
	for i, word := range words {
		switch word {
		case "st":
			words[i] = "saint"
		case "ste":
			words[i] = "sainte"
		}
	}
	return strings.Join(words, " ")
}

// CityNameVariants returns the spellings a city name may be stored under, the input first.
// "St Jean" yields "St Jean", "St-Jean", "Saint Jean", "Saint-Jean".
func CityNameVariants(s string) []string {
	s = CollapseWhitespace(s)
	if s == "" {
		return []string{}
	}

	seen := map[string]bool{}
	variants := []string{}
	add := func(v string) {
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			return
		}
		seen[key] = true
		variants = append(variants, v)
	}

	bases := []string{s, strings.ReplaceAll(s, "’", "'")}
	if expanded := expandSaint(s); expanded != s {
		bases = append(bases, expanded, strings.ReplaceAll(expanded, "’", "'"))
	}

	for _, base := range bases {
		add(base)
		add(strings.ReplaceAll(base, " ", "-"))
		add(strings.ReplaceAll(base, "-", " "))
		add(strings.ReplaceAll(strings.ReplaceAll(base, "'", ""), "’", ""))
		add(strings.ReplaceAll(strings.ReplaceAll(base, "'", " "), "’", " "))
	}
	return variants
}

var saintRe = regexp.MustCompile(`(?i)\b(st|ste)([ -])`)

func expandSaint(s string) string {
	return saintRe.ReplaceAllStringFunc(s, func(m string) string {
		sep := m[len(m)-1:]
		prefix := m[:len(m)-1]
		switch strings.ToLower(prefix) {
		case "ste":
			return matchCase(prefix, "sainte") + sep
		default:
			return matchCase(prefix, "saint") + sep
		}
	})
}

func matchCase(original, replacement string) string {
	if original != "" && unicode.IsUpper([]rune(original)[0]) {
		return strings.ToUpper(replacement[:1]) + replacement[1:]
	}
	return replacement
}

// Slugify builds a URL slug: "Fête de la Musique !" becomes "fete-de-la-musique".
func Slugify(s string) string {
	s = CollapseWhitespace(RemovePunctuation(FoldAccents(strings.ToLower(s))))
	var result strings.Builder
	for _, r := range s {
		switch {
		case r == ' ':
			result.WriteRune('-')
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			result.WriteRune(r)
		}
	}
	return strings.Trim(result.String(), "-")
}
