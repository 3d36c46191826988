package sqlite

import (
	"time"

	"github.com/bytedance/sonic"
)

// timeLayout is fixed-width so that stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimeForDB formats t in UTC with nanosecond precision.
func FormatTimeForDB(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTimeFromDB parses a timestamp written by FormatTimeForDB. Plain
// RFC3339 values are accepted as well.
func ParseTimeFromDB(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// FormatTagsForDB encodes tags as a JSON array. nil becomes "[]".
func FormatTagsForDB(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	return sonic.ConfigStd.MarshalToString(tags)
}

// ParseTagsFromDB decodes a JSON tag array. An empty array yields nil.
func ParseTagsFromDB(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var tags []string
	if err := sonic.ConfigStd.UnmarshalFromString(s, &tags); err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return tags, nil
}
