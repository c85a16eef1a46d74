package functions

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Args is the loosely typed argument object of one tool call.
type Args map[string]interface{}

// ParseArgs decodes a tool call's JSON arguments. Empty input is an empty object.
func ParseArgs(raw string) (Args, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Args{}, nil
	}
	var args Args
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, &ArgumentError{Message: fmt.Sprintf("arguments are not a valid JSON object: %v", err)}
	}
	if args == nil {
		args = Args{}
	}
	return args, nil
}

// String returns the trimmed string value of key, or "".
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Int returns key as an int, or def when missing or not numeric.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// require returns an ArgumentError naming every missing or empty key.
func (a Args) require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if a.String(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &ArgumentError{Message: "missing required argument(s): " + strings.Join(missing, ", ")}
	}
	return nil
}
