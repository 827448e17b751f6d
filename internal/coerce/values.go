// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package coerce

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// leadingFloat matches the longest numeric prefix of a string, so "12.5kg"
// reads as 12.5 the same way the producers of these documents read it.
var leadingFloat = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)

// Number coerces v to a float64.
//
// nil, the empty string and anything that does not parse yield 0. Strings
// are read by their numeric prefix; booleans and containers are not numbers.
func Number(v any) float64 {
	n, _ := ParseNumber(v)
	return n
}

// ParseNumber is Number that also reports whether v carried a usable number.
func ParseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint8:
		return float64(n), true
	case json.Number:
		return parseLeadingFloat(string(n))
	case string:
		return parseLeadingFloat(n)
	default:
		return 0, false
	}
}

func parseLeadingFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	prefix := leadingFloat.FindString(s)
	if prefix == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Clamp limits n to [lo, hi].
func Clamp(n, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, n))
}

// Percent coerces v to a number clamped to [0, 100].
func Percent(v any) float64 {
	return Clamp(Number(v), 0, 100)
}

// String coerces v to its canonical text form.
//
// Sequences are joined with ", ", mappings are rendered as JSON with sorted
// keys and nil becomes the empty string.
func String(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []any:
		parts := make([]string, len(s))
		for i, item := range s {
			parts[i] = String(item)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(s, ", ")
	case map[string]any:
		data, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(data)
	case bool:
		return strconv.FormatBool(s)
	case json.Number:
		return s.String()
	default:
		if n, ok := ParseNumber(v); ok {
			return FormatNumber(n)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(data), `"`)
	}
}

// FormatNumber renders n without a trailing ".0" for whole values.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Bool coerces v to a boolean. Strings "true"/"false" (any case) and the
// numbers 0 and 1 are accepted; anything else is reported as not a boolean.
func Bool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return false, false
	default:
		n, ok := ParseNumber(v)
		if !ok {
			return false, false
		}
		switch n {
		case 0:
			return false, true
		case 1:
			return true, true
		}
		return false, false
	}
}
