package normalize

import (
	"strconv"
	"strings"
)

// Resolve walks payload along each dot-separated key path in order and
// returns the first value that resolves and is non-empty. Missing keys at
// any depth are the common case (pre-market, partial responses), so a failed
// traversal simply moves on to the next candidate path. When no path
// resolves, def is returned.
func Resolve(payload interface{}, paths []string, def interface{}) interface{} {
	for _, path := range paths {
		if v, ok := lookup(payload, path); ok && truthy(v) {
			return v
		}
	}
	return def
}

// ResolveFloat resolves a numeric field through Resolve and coerces the
// result to float64. JSON numbers decode as float64; integer and string
// forms seen in some CSE responses are accepted too.
func ResolveFloat(payload interface{}, paths []string, def float64) float64 {
	v := Resolve(payload, paths, nil)
	if v == nil {
		return def
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

func lookup(payload interface{}, path string) (interface{}, bool) {
	current := payload
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// truthy reports whether a resolved value should win the priority race.
// Zero numbers, empty strings and nils lose so that later candidates and
// the fallback default get their chance.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case float32:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case map[string]interface{}:
		return len(t) > 0
	case []interface{}:
		return len(t) > 0
	default:
		return true
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		return parseFloat(t)
	default:
		return 0, false
	}
}

// parseFloat accepts the thousand-separated number strings some CSE
// endpoints return, e.g. "1,234,567.89".
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
