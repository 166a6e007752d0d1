// Package docstore is the persisted-store boundary: typed domain records
// serialized as JSON documents, written in batches with caller-generated
// ids. The import reconciler only ever talks to the Store interface.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

type Record struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

type Store interface {
	// Query returns every record of one type.
	Query(ctx context.Context, recordType string) ([]Record, error)
	// BatchUpsert writes records in one transaction. Records carry
	// caller-generated ids; an existing id is replaced.
	BatchUpsert(ctx context.Context, recs []Record) error
	// BatchDelete removes records by id in one transaction. Missing ids
	// are not an error.
	BatchDelete(ctx context.Context, ids []string) error
}

// NewRecord marshals a domain value into a store record.
func NewRecord(id, recordType string, v any) (Record, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s record: %w", recordType, err)
	}
	return Record{ID: id, Type: recordType, Body: body}, nil
}

// Decode unmarshals a record slice into domain values.
func Decode[T any](recs []Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		var v T
		if err := json.Unmarshal(r.Body, &v); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", r.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ToList normalizes a legacy collection export into an ordered record
// slice. Exports arrive in two shapes: a JSON array of records, or an
// object keyed by record id. Normalizing once here means nothing past this
// boundary has to care which shape it was.
func ToList(recordType string, raw json.RawMessage) ([]Record, error) {
	var asArray []json.RawMessage
	if err := json.Unmarshal(raw, &asArray); err == nil {
		recs := make([]Record, 0, len(asArray))
		for i, body := range asArray {
			id := embeddedID(body)
			if id == "" {
				return nil, fmt.Errorf("%s[%d]: record has no id", recordType, i)
			}
			recs = append(recs, Record{ID: id, Type: recordType, Body: body})
		}
		return recs, nil
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("%s: collection is neither array nor keyed map", recordType)
	}
	ids := make([]string, 0, len(asMap))
	for id := range asMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	recs := make([]Record, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, Record{ID: id, Type: recordType, Body: asMap[id]})
	}
	return recs, nil
}

func embeddedID(body json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.ID
}
