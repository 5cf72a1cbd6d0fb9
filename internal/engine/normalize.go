package engine

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// IsBlank reports whether a raw value counts as "not entered". Blank leaf
// inputs contribute 0 to sums and never trip pattern checks.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// ParseAmount normalizes a currency or percentage input to a float64
// rounded to 2 decimal places. Currency symbols, grouping commas, percent
// signs and surrounding whitespace are stripped; accounting-style
// parentheses negate. Blank input parses as 0 with ok=true; a non-blank
// value that still fails to parse returns ok=false, which validation
// reports as a finding rather than an error.
func ParseAmount(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, true
	case float64:
		return Round2(t), true
	case float32:
		return Round2(float64(t)), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return Round2(f), true
	case bool:
		return 0, false
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, true
		}
		negative := false
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			negative = true
			s = s[1 : len(s)-1]
		}
		s = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(s)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		if negative {
			f = -f
		}
		return Round2(f), true
	default:
		return 0, false
	}
}

func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
