package sales

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// CoerceAmount turns a loosely typed amount field into a number.
// Native numbers are used as-is; anything else is parsed from the leading
// numeric prefix of its string form. Missing, unparseable and non-finite
// values yield 0.
func CoerceAmount(raw any) float64 {
	var v float64
	switch n := raw.(type) {
	case nil:
		return 0
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int8:
		v = float64(n)
	case int16:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint:
		v = float64(n)
	case uint8:
		v = float64(n)
	case uint16:
		v = float64(n)
	case uint32:
		v = float64(n)
	case uint64:
		v = float64(n)
	case json.Number:
		v = parseLeadingFloat(n.String())
	case string:
		v = parseLeadingFloat(n)
	case []byte:
		v = parseLeadingFloat(string(n))
	default:
		v = parseLeadingFloat(fmt.Sprint(n))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseLeadingFloat(s string) float64 {
	m := numericPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return f
}
