// Package money turns heterogeneous monetary representations into plain amounts.
package money

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// currencyMarkers are matched after whitespace removal and lower-casing.
// Only markers that carry separator characters need listing here; plain
// letters and symbols are dropped by the character filter anyway.
// Longer markers come first so "u.s.$" is not half-eaten by "$".
var currencyMarkers = []string{
	"francscfa",
	"f.cfa",
	"fcfa",
	"u.s.d",
	"u.s.$",
	"usd",
	"eur.",
	"eur",
	"frs.",
	"fr.",
	"xof",
	"xaf",
	"cfa",
	"€",
	"$",
}

// Normalize returns the numeric amount held by v. Numbers pass through,
// strings are cleaned of whitespace, currency markers and thousands
// separators. Anything that cannot be read yields 0; the result is
// always finite.
func Normalize(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err == nil {
			return finite(f)
		}
		if errors.Is(err, strconv.ErrRange) {
			return 0
		}
		return parse(string(n))
	case string:
		return parse(n)
	case *string:
		if n == nil {
			return 0
		}
		return parse(*n)
	}
	return 0
}

func parse(raw string) float64 {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if s == "" {
		return 0
	}
	s = strings.ToLower(s)
	for _, marker := range currencyMarkers {
		s = strings.ReplaceAll(s, marker, "")
	}
	s = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	s = resolveSeparators(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

// resolveSeparators drops commas used to group thousands. When the last
// comma is not followed by exactly three digits it reads as a decimal
// comma ("1234,56"), which is how space-grouped amounts are written.
func resolveSeparators(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	if strings.Contains(s, ".") {
		return strings.ReplaceAll(s, ",", "")
	}
	last := strings.LastIndex(s, ",")
	tail := s[last+1:]
	if len(tail) != 3 {
		return strings.ReplaceAll(s[:last], ",", "") + "." + tail
	}
	return strings.ReplaceAll(s, ",", "")
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
