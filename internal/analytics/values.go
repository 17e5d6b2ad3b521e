// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package analytics

import (
	"fmt"
	"math"
	"strconv"
)

// floatLike matches json.Number from both encoding/json and goccy/go-json.
type floatLike interface {
	Float64() (float64, error)
}

// ToFloat converts a raw cell value to float64.
// Only Go numeric kinds and JSON numbers convert; strings and booleans do not,
// so a numeric-looking string in a numeric column counts as missing.
// NaN and infinities are reported as not convertible.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case floatLike:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsNumeric reports whether v is dispatched to a numeric processor.
func IsNumeric(v any) bool {
	_, ok := ToFloat(v)
	return ok
}

// IsCategorical reports whether v is dispatched to a categorical processor.
func IsCategorical(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	default:
		return false
	}
}

// CategoryString renders a categorical value the way vocabularies store it.
func CategoryString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(v)
	}
}
