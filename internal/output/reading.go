package output

import (
	"strconv"
	"strings"
	"time"
)

// Cell renderers for reading fields. A measurement the sensor did not report
// prints as "-" so numeric columns stay aligned; a missing name or timestamp
// prints as <none>.
const (
	Missing = "-"
	None    = "<none>"
)

// Measurement renders a physical value with the two decimals readings are
// stored with.
func Measurement(v *float64) string {
	if v == nil {
		return Missing
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// Temperature renders the one measurement every stored reading carries.
func Temperature(v float64) string {
	return Measurement(&v)
}

func Count(v *int) string {
	if v == nil {
		return Missing
	}
	return strconv.Itoa(*v)
}

func Timestamp(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func OptionalTimestamp(ts *int64) string {
	if ts == nil {
		return None
	}
	return Timestamp(*ts)
}

// Age renders how long ago a reading was taken, e.g. "42s" or "1h5m0s".
func Age(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return (time.Duration(seconds) * time.Second).String()
}

func YesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// OrNone renders a missing or blank optional value as <none>.
func OrNone(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return None
	}
	return strings.TrimSpace(*v)
}
