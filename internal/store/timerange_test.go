package store

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimeRange(t *testing.T) {
	cases := []struct {
		in       string
		want     TimeRange
		lookback time.Duration
		bucket   int64
	}{
		{in: "hour", want: RangeHour, lookback: time.Hour, bucket: 300},
		{in: "Day", want: RangeDay, lookback: 24 * time.Hour, bucket: 3600},
		{in: " week ", want: RangeWeek, lookback: 7 * 24 * time.Hour, bucket: 21600},
		{in: "month", want: RangeMonth, lookback: 30 * 24 * time.Hour, bucket: 86400},
		{in: "year", want: RangeYear, lookback: 365 * 24 * time.Hour, bucket: 2592000},
	}
	for _, tc := range cases {
		got, err := ParseTimeRange(tc.in)
		if err != nil {
			t.Fatalf("ParseTimeRange(%q) error = %v", tc.in, err)
		}
		if got != tc.want || got.Lookback() != tc.lookback || got.BucketSeconds() != tc.bucket {
			t.Fatalf("ParseTimeRange(%q) = %q (%s, %d)", tc.in, got, got.Lookback(), got.BucketSeconds())
		}
	}
}

func TestParseTimeRangeRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "decade", "1h", "days"} {
		if _, err := ParseTimeRange(in); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("ParseTimeRange(%q) error = %v, want ErrInvalidRange", in, err)
		}
	}
	if TimeRange("decade").Valid() {
		t.Fatalf("expected decade to be invalid")
	}
	if !DefaultTimeRange.Valid() {
		t.Fatalf("expected default range to be valid")
	}
}
