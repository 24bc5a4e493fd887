package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one result row keyed by column name. Drivers disagree on the Go types they
// return, so accessors normalise the common ones.
type Row map[string]any

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Int64 returns the column as an integer; missing or NULL values yield zero.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case uint32:
		return int64(v)
	case float64:
		return int64(v)
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

// Int returns the column as an int.
func (r Row) Int(col string) int {
	return int(r.Int64(col))
}

// String returns the column as a string; NULL yields "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Decimal returns a numeric column without going through float formatting where possible.
func (r Row) Decimal(col string) decimal.Decimal {
	switch v := r[col].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case float32:
		return decimal.NewFromFloat32(v)
	case int64:
		return decimal.NewFromInt(v)
	case []byte:
		d, _ := decimal.NewFromString(strings.TrimSpace(string(v)))
		return d
	case string:
		d, _ := decimal.NewFromString(strings.TrimSpace(v))
		return d
	}
	return decimal.Zero
}

// Time returns a timestamp column in UTC; NULL or unparseable values yield the zero time.
func (r Row) Time(col string) time.Time {
	t, _ := r.NullTime(col)
	return t
}

// NullTime returns the timestamp and whether the column held a value.
func (r Row) NullTime(col string) (time.Time, bool) {
	switch v := r[col].(type) {
	case time.Time:
		return v.UTC(), !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return v.UTC(), true
	case []byte:
		return parseTime(string(v))
	case string:
		return parseTime(v)
	case int64:
		return time.Unix(v, 0).UTC(), true
	}
	return time.Time{}, false
}

func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
