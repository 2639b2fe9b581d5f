package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Record is the persisted form of one cache entry.
type Record struct {
	Value      json.RawMessage `json:"value"`
	StoredAt   float64         `json:"stored_at"`
	TTLSeconds float64         `json:"ttl_seconds"`
}

// NewRecord stamps value with now and ttl.
func NewRecord(value []byte, now time.Time, ttl time.Duration) Record {
	return Record{
		Value:      json.RawMessage(value),
		StoredAt:   float64(now.UnixNano()) / float64(time.Second),
		TTLSeconds: ttl.Seconds(),
	}
}

// Expired reports whether the entry is logically absent at now.
func (r Record) Expired(now time.Time) bool {
	nowSeconds := float64(now.UnixNano()) / float64(time.Second)
	return nowSeconds-r.StoredAt > r.TTLSeconds
}

// Encode marshals the record; value must be valid JSON.
func (r Record) Encode() ([]byte, error) {
	if !json.Valid(r.Value) {
		return nil, errors.New("cache value is not valid JSON")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a persisted record. Records missing any field are
// rejected so callers can treat them as corrupt. An explicit JSON null is a
// valid value; only an absent "value" key is missing.
func DecodeRecord(data []byte) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Record{}, fmt.Errorf("failed to decode cache record: %w", err)
	}
	value, ok := fields["value"]
	if !ok || len(value) == 0 {
		return Record{}, errors.New("cache record missing value")
	}

	var raw struct {
		StoredAt   *float64 `json:"stored_at"`
		TTLSeconds *float64 `json:"ttl_seconds"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("failed to decode cache record: %w", err)
	}
	switch {
	case raw.StoredAt == nil:
		return Record{}, errors.New("cache record missing stored_at")
	case raw.TTLSeconds == nil:
		return Record{}, errors.New("cache record missing ttl_seconds")
	case math.IsNaN(*raw.StoredAt) || math.IsNaN(*raw.TTLSeconds):
		return Record{}, errors.New("cache record has invalid timestamps")
	}
	return Record{Value: value, StoredAt: *raw.StoredAt, TTLSeconds: *raw.TTLSeconds}, nil
}
