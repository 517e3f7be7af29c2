package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/parser"
)

const (
	// SourceHeader names the source definition a payload must be parsed with.
	SourceHeader = "source"
	// StatusHeader carries the outcome status of published outcomes.
	StatusHeader = "status"
)

// IncomingMessage is a transport-neutral intake message.
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
}

func (m *IncomingMessage) Source() string {
	return m.Headers[SourceHeader]
}

// SourceBatch holds the records of one source, in message order.
type SourceBatch struct {
	Source  string
	Records []models.RawRecord
}

// BatchHandler imports the records of one source.
type BatchHandler func(ctx context.Context, source string, records []models.RawRecord) error

// Decoder turns intake messages into raw records. A message whose source header names a
// catalog definition is parsed with it; anything else must be RawRecord JSON, one object or an array.
type Decoder struct {
	catalog       *parser.Catalog
	parser        *parser.Parser
	defaultSource string
}

func NewDecoder(catalog *parser.Catalog, p *parser.Parser, defaultSource string) *Decoder {
	return &Decoder{
		catalog:       catalog,
		parser:        p,
		defaultSource: defaultSource,
	}
}

func (d *Decoder) Decode(ctx context.Context, msg *IncomingMessage) ([]models.RawRecord, error) {
	source := msg.Source()
	if def, ok := d.catalog.Get(source); ok {
		return d.parser.Parse(ctx, def, msg.Value)
	}

	trimmed := bytes.TrimSpace(msg.Value)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	var records []models.RawRecord
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("invalid record list: %w", err)
		}
	} else {
		var record models.RawRecord
		if err := json.Unmarshal(trimmed, &record); err != nil {
			return nil, fmt.Errorf("invalid record: %w", err)
		}
		records = []models.RawRecord{record}
	}

	for i := range records {
		if records[i].Source == "" {
			records[i].Source = source
		}
		if records[i].Source == "" {
			records[i].Source = d.defaultSource
		}
	}
	return records, nil
}

// DecodeBatch decodes messages and groups their records by source, in order of first
// appearance. Messages that fail to decode are reported through onError and skipped.
func (d *Decoder) DecodeBatch(ctx context.Context, msgs []*IncomingMessage, onError func(msg *IncomingMessage, err error)) []SourceBatch {
	batches := []SourceBatch{}
	index := map[string]int{}

	for _, msg := range msgs {
		records, err := d.Decode(ctx, msg)
		if err != nil {
			if onError != nil {
				onError(msg, err)
			}
			continue
		}
		for _, record := range records {
			i, ok := index[record.Source]
			if !ok {
				i = len(batches)
				index[record.Source] = i
				batches = append(batches, SourceBatch{Source: record.Source})
			}
			batches[i].Records = append(batches[i].Records, record)
		}
	}
	return batches
}
