package firestore

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// Timestamp converts a stored value to UTC. Documents written by different
// clients carry native timestamps, RFC 3339 or date-only strings, and
// {seconds, nanoseconds} maps (with or without a leading underscore); all of
// them end up here and nowhere else.
func Timestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return t.UTC(), nil
	case string:
		return parseTimestamp(t)
	case map[string]any:
		return timestampFromMap(t)
	default:
		return time.Time{}, fmt.Errorf("firestore: unsupported timestamp type %T", v)
	}
}

// TimestampPtr is Timestamp for optional fields; absent and empty values are nil.
func TimestampPtr(v any) (*time.Time, error) {
	t, err := Timestamp(v)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("firestore: unparseable timestamp %q", s)
}

func timestampFromMap(m map[string]any) (time.Time, error) {
	secRaw, ok := firstKey(m, "seconds", "_seconds")
	if !ok {
		return time.Time{}, fmt.Errorf("firestore: timestamp map without seconds")
	}
	sec, err := toInt64(secRaw)
	if err != nil {
		return time.Time{}, fmt.Errorf("firestore: timestamp seconds: %w", err)
	}
	var nsec int64
	if raw, ok := firstKey(m, "nanoseconds", "_nanoseconds", "nanos"); ok {
		if nsec, err = toInt64(raw); err != nil {
			return time.Time{}, fmt.Errorf("firestore: timestamp nanoseconds: %w", err)
		}
	}
	if nsec < 0 || nsec >= int64(time.Second) {
		return time.Time{}, fmt.Errorf("firestore: timestamp nanoseconds %d out of range", nsec)
	}
	return time.Unix(sec, nsec).UTC(), nil
}

func firstKey(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("non-integral %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported %T", v)
	}
}
