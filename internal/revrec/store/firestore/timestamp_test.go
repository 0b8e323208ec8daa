package firestore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimestampNormalizesStoredShapes(t *testing.T) {
	want := time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)
	jakarta := time.FixedZone("WIB", 7*3600)

	cases := []struct {
		name string
		in   any
		want time.Time
	}{
		{"native", want.In(jakarta), want},
		{"pointer", &want, want},
		{"rfc3339 offset", "2025-03-15T17:30:00+07:00", want},
		{"rfc3339 nano", "2025-03-15T10:30:00.000Z", want},
		{"naive datetime", "2025-03-15T10:30:00", want},
		{"date only", "2025-03-15", time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"seconds map", map[string]any{"seconds": want.Unix(), "nanoseconds": int64(0)}, want},
		{"underscore map", map[string]any{"_seconds": float64(want.Unix()), "_nanoseconds": float64(500)}, want.Add(500)},
		{"json number map", map[string]any{"seconds": json.Number("1742034600")}, want},
		{"nil", nil, time.Time{}},
		{"empty string", "  ", time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Timestamp(tc.in)
			require.NoError(t, err)
			require.True(t, tc.want.Equal(got), "got %s want %s", got, tc.want)
			if !got.IsZero() {
				require.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestTimestampRejectsGarbage(t *testing.T) {
	for name, in := range map[string]any{
		"text":          "next tuesday",
		"map no secs":   map[string]any{"nanoseconds": 1},
		"bad nanos":     map[string]any{"seconds": 1, "nanoseconds": int64(2e9)},
		"fractional":    map[string]any{"seconds": 1.5},
		"unknown type":  42,
		"string digits": map[string]any{"seconds": "abc"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Timestamp(in)
			require.Error(t, err)
		})
	}
}

func TestTimestampPtrTreatsEmptyAsAbsent(t *testing.T) {
	got, err := TimestampPtr(nil)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = TimestampPtr("2025-01-02")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 2, got.Day())
}
