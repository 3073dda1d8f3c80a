package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidRange = errors.New("invalid time range")

type TimeRange string

const (
	RangeHour  TimeRange = "hour"
	RangeDay   TimeRange = "day"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"

	DefaultTimeRange = RangeDay
)

type rangeSpec struct {
	lookback      time.Duration
	bucketSeconds int64
}

var rangeSpecs = map[TimeRange]rangeSpec{
	RangeHour:  {lookback: time.Hour, bucketSeconds: 300},
	RangeDay:   {lookback: 24 * time.Hour, bucketSeconds: 3600},
	RangeWeek:  {lookback: 168 * time.Hour, bucketSeconds: 21600},
	RangeMonth: {lookback: 720 * time.Hour, bucketSeconds: 86400},
	RangeYear:  {lookback: 8760 * time.Hour, bucketSeconds: 2592000},
}

// ParseTimeRange accepts only the named ranges; anything else is rejected
// rather than defaulted.
func ParseTimeRange(v string) (TimeRange, error) {
	r := TimeRange(strings.ToLower(strings.TrimSpace(v)))
	if _, ok := rangeSpecs[r]; !ok {
		return "", fmt.Errorf("%w %q (expected hour|day|week|month|year)", ErrInvalidRange, v)
	}
	return r, nil
}

func (r TimeRange) Valid() bool {
	_, ok := rangeSpecs[r]
	return ok
}

func (r TimeRange) Lookback() time.Duration {
	return rangeSpecs[r].lookback
}

// BucketSeconds is the aggregation bucket width for the range.
func (r TimeRange) BucketSeconds() int64 {
	return rangeSpecs[r].bucketSeconds
}
