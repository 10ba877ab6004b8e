package corpus

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// parseJSON selects payloads with a gjson path ("$." prefixes are accepted).
// Without a path the document itself must be an array. String elements
// become payloads verbatim; any other element is sent as its raw JSON.
func parseJSON(data []byte, path string) ([]string, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}

	result := gjson.ParseBytes(data)
	if path != "" {
		result = gjson.GetBytes(data, normalizePath(path))
		if !result.Exists() {
			return nil, fmt.Errorf("path %q not found", path)
		}
		if !result.IsArray() {
			return []string{payloadOf(result)}, nil
		}
	}
	if !result.IsArray() {
		return nil, errors.New("expected a JSON array of payloads (use a path to select one)")
	}

	var payloads []string
	result.ForEach(func(_, value gjson.Result) bool {
		payloads = append(payloads, payloadOf(value))
		return true
	})
	return payloads, nil
}

func payloadOf(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	return v.Raw
}

func normalizePath(path string) string {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			return path[2:]
		}
		if len(path) == 1 {
			return "@this"
		}
	}
	return path
}
