// Package parser maps source payloads onto raw records through JMESPath field mappings.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/tracing"
)

var stringFields = map[string]func(r *models.RawRecord) *string{
	"external_id":       func(r *models.RawRecord) *string { return &r.ExternalID },
	"name":              func(r *models.RawRecord) *string { return &r.Name },
	"description":       func(r *models.RawRecord) *string { return &r.Description },
	"start_date":        func(r *models.RawRecord) *string { return &r.StartDate },
	"end_date":          func(r *models.RawRecord) *string { return &r.EndDate },
	"hours":             func(r *models.RawRecord) *string { return &r.Hours },
	"place_external_id": func(r *models.RawRecord) *string { return &r.PlaceExternalID },
	"place_name":        func(r *models.RawRecord) *string { return &r.PlaceName },
	"place_street":      func(r *models.RawRecord) *string { return &r.PlaceStreet },
	"place_postal_code": func(r *models.RawRecord) *string { return &r.PlacePostalCode },
	"place_city":        func(r *models.RawRecord) *string { return &r.PlaceCity },
	"place_country":     func(r *models.RawRecord) *string { return &r.PlaceCountry },
	"type":              func(r *models.RawRecord) *string { return &r.Type },
	"category":          func(r *models.RawRecord) *string { return &r.Category },
	"theme":             func(r *models.RawRecord) *string { return &r.Theme },
	"price":             func(r *models.RawRecord) *string { return &r.Price },
	"phone":             func(r *models.RawRecord) *string { return &r.Phone },
	"email":             func(r *models.RawRecord) *string { return &r.Email },
	"website":           func(r *models.RawRecord) *string { return &r.Website },
}

var floatFields = map[string]func(r *models.RawRecord) **float64{
	"latitude":  func(r *models.RawRecord) **float64 { return &r.Latitude },
	"longitude": func(r *models.RawRecord) **float64 { return &r.Longitude },
}

func setField(r *models.RawRecord, key string, value any) error {
	if field, ok := stringFields[key]; ok {
		*field(r) = strings.TrimSpace(stringify(value))
		return nil
	}
	if field, ok := floatFields[key]; ok {
		return setFloat(field(r), value)
	}
	if key == "deleted" {
		return setBool(&r.Deleted, value)
	}
	return fmt.Errorf("unknown field %q", key)
}

func isEmptyField(r *models.RawRecord, key string) bool {
	if field, ok := stringFields[key]; ok {
		return *field(r) == ""
	}
	if field, ok := floatFields[key]; ok {
		return *field(r) == nil
	}
	return key == "deleted" && !r.Deleted
}

func isKnownField(key string) bool {
	_, isString := stringFields[key]
	_, isFloat := floatFields[key]
	return isString || isFloat || key == "deleted"
}

// Parser evaluates source definitions against JSON payloads. Compiled
// expressions are cached and shared across sources.
type Parser struct {
	logger ectologger.Logger
	cache  map[string]*jmespath.JMESPath
	mu     sync.RWMutex
}

func NewParser(logger ectologger.Logger) *Parser {
	return &Parser{
		logger: logger,
		cache:  make(map[string]*jmespath.JMESPath),
	}
}

// Parse maps payload onto raw records. Items with neither a name nor an external id are skipped.
func (p *Parser) Parse(ctx context.Context, def *Definition, payload []byte) ([]models.RawRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "parser.Parser.Parse")
	defer span.End()

	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("source %s: invalid json payload: %w", def.Name, err)
	}

	items, err := p.items(def, data)
	if err != nil {
		return nil, err
	}

	records := make([]models.RawRecord, 0, len(items))
	skipped := 0
	for i, item := range items {
		record, err := p.record(def, item)
		if err != nil {
			return nil, fmt.Errorf("source %s: item %d: %w", def.Name, i, err)
		}
		if strings.TrimSpace(record.Name) == "" && record.ExternalID == "" {
			skipped++
			continue
		}
		records = append(records, record)
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"source":  def.Name,
		"version": def.Version,
		"items":   len(items),
		"records": len(records),
		"skipped": skipped,
	}).Debugf("Parsed source payload")

	return records, nil
}

func (p *Parser) items(def *Definition, data any) ([]any, error) {
	if def.Records == "" {
		if list, ok := data.([]any); ok {
			return list, nil
		}
		return []any{data}, nil
	}

	result, err := p.evaluate(def.Records, data)
	if err != nil {
		return nil, fmt.Errorf("source %s: records: %w", def.Name, err)
	}
	switch v := result.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	default:
		return []any{v}, nil
	}
}

func (p *Parser) record(def *Definition, item any) (models.RawRecord, error) {
	record := models.RawRecord{
		Source:        def.Name,
		ParserVersion: def.Version,
	}

	for key, expression := range def.Fields {
		value, err := p.evaluate(expression, item)
		if err != nil {
			return record, fmt.Errorf("field %s: %w", key, err)
		}
		if value == nil {
			continue
		}
		if err := setField(&record, key, value); err != nil {
			return record, fmt.Errorf("field %s: %w", key, err)
		}
	}

	for key, value := range def.Defaults {
		if isEmptyField(&record, key) {
			if err := setField(&record, key, value); err != nil {
				return record, fmt.Errorf("default %s: %w", key, err)
			}
		}
	}

	if record.ExternalID != "" && def.ExternalIDPrefix != "" && !strings.HasPrefix(record.ExternalID, def.ExternalIDPrefix) {
		record.ExternalID = def.ExternalIDPrefix + record.ExternalID
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return record, err
	}
	record.FromData = string(raw)

	return record, nil
}

// Validate compiles every expression of def.
func (p *Parser) Validate(def *Definition) error {
	if def.Records != "" {
		if _, err := p.compile(def.Records); err != nil {
			return fmt.Errorf("source %s: records: %w", def.Name, err)
		}
	}
	for key, expression := range def.Fields {
		if _, err := p.compile(expression); err != nil {
			return fmt.Errorf("source %s: field %s: %w", def.Name, key, err)
		}
	}
	return nil
}

func (p *Parser) evaluate(expression string, data any) (any, error) {
	compiled, err := p.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

func (p *Parser) compile(expression string) (*jmespath.JMESPath, error) {
	p.mu.RLock()
	if compiled, ok := p.cache[expression]; ok {
		p.mu.RUnlock()
		return compiled, nil
	}
	p.mu.RUnlock()

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[expression] = compiled
	p.mu.Unlock()
	return compiled, nil
}

func setFloat(field **float64, value any) error {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case string:
		v = strings.TrimSpace(strings.Replace(v, ",", ".", 1))
		if v == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", v)
		}
		f = parsed
	default:
		return fmt.Errorf("not a number: %v", value)
	}
	*field = &f
	return nil
}

func setBool(field *bool, value any) error {
	switch v := value.(type) {
	case bool:
		*field = v
	case float64:
		*field = v != 0
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("not a boolean: %q", v)
		}
		*field = parsed
	default:
		return fmt.Errorf("not a boolean: %v", value)
	}
	return nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
