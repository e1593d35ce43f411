package descriptor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/graphsync/schema/field"
)

// Layouts accepted when a datetime arrives as text: driver strings,
// json_agg output and FOR XML output.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// TruncateEnum returns the stored code of an enum value.
func TruncateEnum(fd *field.Descriptor, v string) string {
	if fd.MaxLength <= 0 {
		return v
	}
	r := []rune(v)
	if len(r) <= fd.MaxLength {
		return v
	}
	return string(r[:fd.MaxLength])
}

// RestoreEnum returns the declared enum value stored as code, and false
// when no declared value matches.
func RestoreEnum(fd *field.Descriptor, code string) (string, bool) {
	if fd.HasEnum(code) {
		return code, true
	}
	for _, v := range fd.Enum {
		if TruncateEnum(fd, v) == code {
			return v, true
		}
	}
	return "", false
}

// WriteValue converts a record value into the parameter bound for the
// property's column. Values that cannot be converted are returned as is
// and left to the store to reject.
func WriteValue(fd *field.Descriptor, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch fd.Type {
	case field.TypeEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("descriptor: enum %q expects a string, got %T", fd.Name, v)
		}
		return TruncateEnum(fd, s), nil
	case field.TypeDate:
		switch v := v.(type) {
		case time.Time:
			return v.Format(time.DateOnly), nil
		case string:
			if t, ok := parseTime(v); ok {
				return t.Format(time.DateOnly), nil
			}
		}
	case field.TypeDateTime:
		t, ok := toTime(v)
		if !ok {
			return v, nil
		}
		if !fd.Timezone {
			return wallClock(t), nil
		}
		return t.UTC(), nil
	case field.TypeInteger:
		if n, ok := toInt(v); ok {
			return n, nil
		}
	case field.TypeNumber:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case field.TypeBool:
		if b, ok := toBool(v); ok {
			return b, nil
		}
	case field.TypeString:
		if n, ok := v.(json.Number); ok {
			return n.String(), nil
		}
	}
	return v, nil
}

// ReadValue converts a value read from the store into its record form.
func ReadValue(fd *field.Descriptor, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch fd.Type {
	case field.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case field.TypeEnum:
		s := fmt.Sprint(v)
		if e, ok := RestoreEnum(fd, strings.TrimRight(s, " ")); ok {
			return e, nil
		}
		return nil, nil
	case field.TypeInteger:
		if n, ok := toInt(v); ok {
			return n, nil
		}
	case field.TypeNumber:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case field.TypeBool:
		if b, ok := toBool(v); ok {
			return b, nil
		}
	case field.TypeDate:
		switch v := v.(type) {
		case time.Time:
			return v.Format(time.DateOnly), nil
		case string:
			if len(v) >= len(time.DateOnly) {
				return v[:len(time.DateOnly)], nil
			}
		}
	case field.TypeDateTime:
		if t, ok := toTime(v); ok {
			if !fd.Timezone {
				return wallClock(t), nil
			}
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("cannot read %T as %s", v, fd.Type)
}

// wallClock drops the zone of t, keeping its wall clock reading as UTC.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func toTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v != nil {
			return *v, true
		}
	case string:
		return parseTime(v)
	}
	return time.Time{}, false
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toInt(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	case float64:
		if v == math.Trunc(v) {
			return int64(v), true
		}
	case float32:
		if float64(v) == math.Trunc(float64(v)) {
			return int64(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		return toInt(string(v))
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	if n, ok := toInt(v); ok {
		return float64(n), true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch v := v.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	}
	if n, ok := toInt(v); ok {
		return n != 0, true
	}
	return false, false
}
