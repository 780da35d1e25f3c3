package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Upstream payloads are decoded into map[string]any. Providers are not
// consistent about types: numbers arrive as JSON numbers or quoted strings,
// flags as bools, "true"/"Y"/1. The Flex* helpers coerce without failing.

// FlexFloat coerces a decoded JSON value to float64.
func FlexFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FlexInt coerces a decoded JSON value to int, truncating "28.5" to 28.
func FlexInt(v any) (int, bool) {
	f, ok := FlexFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// FlexBool coerces a decoded JSON value to bool.
func FlexBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "t", "y", "yes", "1":
			return true, true
		case "false", "f", "n", "no", "0":
			return false, true
		}
		return false, false
	}
	if f, ok := FlexFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

// FlexString coerces a decoded JSON value to a trimmed string.
func FlexString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// FlexMap returns v as a JSON object, or nil.
func FlexMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// FlexSlice returns v as a JSON array, or nil.
func FlexSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// UnmarshalJSON accepts actual results whose value is a quoted number, as
// produced by some box-score exports.
func (a *ActualResult) UnmarshalJSON(data []byte) error {
	type Alias ActualResult
	aux := &struct {
		ActualValue any `json:"actual_value"`
		*Alias
	}{Alias: (*Alias)(a)}

	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("flex unmarshal: %w", err)
	}
	if aux.ActualValue == nil {
		return fmt.Errorf("flex unmarshal: actual_value is required")
	}
	v, ok := FlexFloat(aux.ActualValue)
	if !ok {
		return fmt.Errorf("flex unmarshal: actual_value %v is not numeric", aux.ActualValue)
	}
	a.ActualValue = v
	return nil
}
