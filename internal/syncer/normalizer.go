package syncer

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gridwatch/internal/model"
)

// BatchShape tags which of the remote API's historical payload layouts a
// response matched. Anything unrecognized yields zero records.
type BatchShape int

const (
	ShapeUnknown BatchShape = iota
	// ShapeArray is a bare JSON array of records.
	ShapeArray
	// ShapeEnvelope is an object carrying the records under a "readings" or
	// "data" key, usually next to a success flag.
	ShapeEnvelope
	// ShapeSingle is one record object at the top level.
	ShapeSingle
)

func (s BatchShape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeEnvelope:
		return "envelope"
	case ShapeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// RawRecord is one remote reading record before resolution and storage.
// Measurement fields share the device wire names, so the record body maps
// straight onto the stored reading.
type RawRecord struct {
	MacAddress  string `json:"mac_address"`
	ReadingTime string `json:"reading_time"`
	model.Measurements
}

var (
	ErrMissingMAC       = errors.New("record missing mac_address")
	ErrInvalidTimestamp = errors.New("invalid timestamp format")
)

// timestampFormats lists formats attempted when parsing a record timestamp.
var timestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	time.RFC1123,
	time.UnixDate,
}

type envelope struct {
	Readings []json.RawMessage `json:"readings"`
	Data     []json.RawMessage `json:"data"`
}

// NormalizeBatch classifies a raw response body into an ordered sequence of
// record documents. One case per known shape; the default is zero records,
// never an error. An unrecognized payload is logged by the caller and the
// cycle continues.
func NormalizeBatch(body []byte) (BatchShape, []json.RawMessage) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ShapeUnknown, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var records []json.RawMessage
		if err := json.Unmarshal(body, &records); err != nil {
			return ShapeUnknown, nil
		}
		return ShapeArray, records
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ShapeUnknown, nil
	}
	if env.Readings != nil {
		return ShapeEnvelope, env.Readings
	}
	if env.Data != nil {
		return ShapeEnvelope, env.Data
	}

	// A single record object is recognized by its device identifier.
	var probe struct {
		MacAddress string `json:"mac_address"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.MacAddress != "" {
		return ShapeSingle, []json.RawMessage{json.RawMessage(body)}
	}
	return ShapeUnknown, nil
}

// ParseRecord decodes one record document. A type-mismatched document is a
// per-record failure, never a batch failure.
func ParseRecord(doc json.RawMessage) (RawRecord, error) {
	var rec RawRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return RawRecord{}, err
	}
	if strings.TrimSpace(rec.MacAddress) == "" {
		return RawRecord{}, ErrMissingMAC
	}
	return rec, nil
}

// ParseTimestamp parses a record timestamp, trying each supported format.
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}
