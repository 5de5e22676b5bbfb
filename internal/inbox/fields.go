package inbox

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"workinbox/internal/domain"
	"workinbox/internal/money"
)

// Field aliases shared by every source domain. Domain specific lists live
// next to their adapter.
var (
	createdKeys  = []string{"createdAt", "created_at", "date"}
	projectKeys  = []string{"projectId", "project_id", "project"}
	ownerKeys    = []string{"ownerOrg", "owner_org", "entity", "department"}
	decisionKeys = []string{"decision", "decisionId", "decision_id", "governanceDecision", "governance_decision", "decisionRecordId", "decision_record_id"}
	statusKeys   = []string{"status", "state", "statut"}
)

// fields reads optional values out of a raw record by alias.
type fields struct {
	rec domain.Record
}

// value returns the first non-nil value stored under one of keys.
func (f fields) value(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := f.rec[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (f fields) str(keys ...string) string {
	v, ok := f.value(keys...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		if s == math.Trunc(s) && math.Abs(s) < 1e15 {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func (f fields) amount(keys ...string) float64 {
	v, _ := f.value(keys...)
	return money.Normalize(v)
}

// maxDays bounds accepted day counts so they always fit an int.
const maxDays = math.MaxInt32

// days reads a whole day count. Values that are present but unreadable
// or out of range count as absent.
func (f fields) days(keys ...string) *int {
	v, ok := f.value(keys...)
	if !ok {
		return nil
	}
	var d float64
	switch n := v.(type) {
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		d = p
	case json.Number:
		p, err := n.Float64()
		if err != nil {
			return nil
		}
		d = p
	default:
		d = money.Normalize(v)
		if d == 0 && !isZeroNumber(v) {
			return nil
		}
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || math.Abs(d) > maxDays {
		return nil
	}
	out := int(math.Round(d))
	return &out
}

// decided reports whether a governance decision is recorded.
func (f fields) decided() bool {
	v, ok := f.value(decisionKeys...)
	if !ok {
		return false
	}
	switch d := v.(type) {
	case string:
		return strings.TrimSpace(d) != ""
	case bool:
		return d
	case map[string]any:
		return len(d) > 0
	case []any:
		return len(d) > 0
	}
	return true
}

func (f fields) flag(keys ...string) bool {
	v, ok := f.value(keys...)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		p, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && p
	}
	return false
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func (f fields) time(keys ...string) (time.Time, bool) {
	v, ok := f.value(keys...)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// createdAt falls back to the aggregation time.
func (f fields) createdAt(now time.Time) time.Time {
	if t, ok := f.time(createdKeys...); ok {
		return t
	}
	return now
}

func isZeroNumber(v any) bool {
	switch n := v.(type) {
	case int:
		return n == 0
	case int64:
		return n == 0
	case float64:
		return n == 0
	case float32:
		return n == 0
	case int32:
		return n == 0
	case uint:
		return n == 0
	case uint64:
		return n == 0
	}
	return false
}

// StatusSet is an allow-list of status strings compared after folding
// case, accents and separators, so "Reçue", "RECUE" and "recue" match.
type StatusSet map[string]struct{}

func NewStatusSet(statuses ...string) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, s := range statuses {
		if k := foldStatus(s); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func (s StatusSet) Contains(status string) bool {
	_, ok := s[foldStatus(status)]
	return ok
}

func foldStatus(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)
	folded = strings.NewReplacer("_", " ", "-", " ").Replace(folded)
	return strings.Join(strings.Fields(folded), " ")
}
