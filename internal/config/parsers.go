// Package config loads tickfire run settings from flags and config files.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// lookupSetting returns the first candidate key present in settings. Viper
// lower-cases keys, so each candidate is also tried in lower case.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		for _, k := range []string{key, strings.ToLower(key)} {
			if val, ok := settings[k]; ok {
				return val, true
			}
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return fmt.Sprint(value), nil
}

// asInt64 accepts any integer type, whole floats (JSON numbers), and decimal
// strings. Blank strings and nil are zero.
func asInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return wholeFloat(float64(v))
	case float64:
		return wholeFloat(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseInt(s, 10, 64)
	}
	return 0, fmt.Errorf("expected a number, got %T", value)
}

func wholeFloat(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("expected a whole number, got %g", f)
	}
	return int64(f), nil
}

func asInt(value interface{}) (int, error) {
	v, err := asInt64(value)
	return int(v), err
}

func asFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	i, err := asInt64(value)
	if err != nil {
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
	return float64(i), nil
}

func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return false, nil
		}
		return strconv.ParseBool(s)
	}
	return false, fmt.Errorf("expected a boolean, got %T", value)
}

// asDuration parses Go duration strings. Bare numbers are seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		return time.ParseDuration(s)
	}
	secs, err := asFloat64(value)
	if err != nil {
		return 0, fmt.Errorf("expected a duration, got %T", value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// asStringMap converts a decoded YAML or JSON object to string values,
// keeping key case.
func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	if m, ok := value.(map[string]string); ok {
		out := make(map[string]string, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	raw, err := stringKeys(value, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("key cannot be empty")
		}
		if out[k], err = asString(v); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
	}
	return out, nil
}

// asStringSlice accepts a list or a single string.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case string:
		return []string{v}, nil
	case []interface{}:
		out := make([]string, len(v))
		for i, item := range v {
			s, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of strings, got %T", value)
}

// toStringKeyMap converts a nested config section to a map with lower-cased keys.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	return stringKeys(value, true)
}

func stringKeys(value interface{}, lower bool) (map[string]interface{}, error) {
	norm := func(k string) string {
		if lower {
			return strings.ToLower(strings.TrimSpace(k))
		}
		return k
	}
	out := map[string]interface{}{}
	switch v := value.(type) {
	case map[string]interface{}:
		for k, val := range v {
			out[norm(k)] = val
		}
	case map[interface{}]interface{}:
		for k, val := range v {
			key, err := asString(k)
			if err != nil {
				return nil, err
			}
			out[norm(key)] = val
		}
	default:
		return nil, fmt.Errorf("expected a map, got %T", value)
	}
	return out, nil
}
