// Package mapper turns raw rows from the remote store into domain entities.
//
// Every function here is pure. Optional fields fall back to documented
// defaults; fields the domain cannot do without are rejected with a
// *MalformedRecordError.
package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/adi-253/chatsync/internal/models"
)

// Record is one row as decoded from JSON.
type Record = map[string]any

// MalformedRecordError reports a required field that is absent or of the
// wrong type.
type MalformedRecordError struct {
	Entity string
	Field  string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record: missing or invalid %q", e.Entity, e.Field)
}

func (e *MalformedRecordError) Is(target error) bool {
	return target == models.ErrMalformedRecord
}

func malformed(entity, field string) error {
	return &MalformedRecordError{Entity: entity, Field: field}
}

// requiredString returns a non-empty string field or a MalformedRecordError.
func requiredString(r Record, entity, field string) (string, error) {
	s, ok := r[field].(string)
	if !ok || s == "" {
		return "", malformed(entity, field)
	}
	return s, nil
}

func str(r Record, field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func boolean(r Record, field string) bool {
	b, _ := r[field].(bool)
	return b
}

func integer(r Record, field string) int {
	switch v := r[field].(type) {
	case float64:
		return int(math.Round(v))
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// Layouts accepted for timestamps. PostgREST emits timestamptz with an
// offset and plain timestamp columns without one.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
}

func timestamp(r Record, field string) (time.Time, bool) {
	switch v := r[field].(type) {
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), true
			}
		}
	case float64:
		// unix milliseconds
		return time.UnixMilli(int64(v)).UTC(), true
	case time.Time:
		return v.UTC(), true
	}
	return time.Time{}, false
}

func optTime(r Record, field string) *time.Time {
	t, ok := timestamp(r, field)
	if !ok {
		return nil
	}
	return &t
}

func stringList(r Record, field string) []string {
	out := []string{}
	switch v := r[field].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// rows returns an embedded relation as a list of records. A to-one embed
// decoded as a single object is returned as a one-element list.
func rows(r Record, field string) []Record {
	switch v := r[field].(type) {
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			if rec, ok := item.(map[string]any); ok {
				out = append(out, rec)
			}
		}
		return out
	case []Record:
		return v
	case map[string]any:
		return []Record{v}
	}
	return nil
}

func object(r Record, field string) map[string]any {
	m, _ := r[field].(map[string]any)
	return m
}
