package query

import (
	"fmt"
	"strconv"
	"strings"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/core/aggregation"
	"github.com/pulse-analytics/pulse/internal/core/storage"
)

// Dimension names accepted by filters and groupBy.
const (
	DimDate        = "date"
	DimPath        = "path"
	DimReferrer    = "referrer"
	DimCountry     = "country"
	DimRegion      = "region"
	DimDevice      = "device"
	DimBrowser     = "browser"
	DimOS          = "os"
	DimType        = "type"
	DimAction      = "action"
	DimCategory    = "category"
	DimUTMSource   = "utm_source"
	DimUTMMedium   = "utm_medium"
	DimUTMCampaign = "utm_campaign"
	DimDuration    = "duration"
	DimScrollDepth = "scrollDepth"
	DimValue       = "value"
)

// pushdownColumn maps dimensions onto store columns that support equality pushdown.
var pushdownColumn = map[string]string{
	DimPath:     storage.ColumnPath,
	DimCountry:  storage.ColumnCountry,
	DimDevice:   storage.ColumnDevice,
	DimBrowser:  storage.ColumnBrowser,
	DimOS:       storage.ColumnOS,
	DimReferrer: storage.ColumnReferrerDomain,
	DimType:     storage.ColumnKind,
}

// IsDimension reports whether name is a known dimension.
func IsDimension(name string) bool {
	switch name {
	case DimDate, DimPath, DimReferrer, DimCountry, DimRegion, DimDevice, DimBrowser, DimOS,
		DimType, DimAction, DimCategory, DimUTMSource, DimUTMMedium, DimUTMCampaign,
		DimDuration, DimScrollDepth, DimValue:
		return true
	default:
		return false
	}
}

// IsNumericDimension reports whether the dimension holds a number. Its group
// values sort by magnitude rather than as text.
func IsNumericDimension(name string) bool {
	switch name {
	case DimDuration, DimScrollDepth, DimValue:
		return true
	default:
		return false
	}
}

// dimensionValue returns the event's value for a dimension in string form.
// Numbers use the shortest decimal representation.
func dimensionValue(e *v1.Event, dim string) string {
	switch dim {
	case DimDate:
		return aggregation.DayKey(e.IngestedAt)
	case DimPath:
		return e.Path
	case DimReferrer:
		return e.ReferrerDomain
	case DimCountry:
		return e.Country
	case DimRegion:
		return e.Region
	case DimDevice:
		return e.Device
	case DimBrowser:
		return e.Browser
	case DimOS:
		return e.OS
	case DimType:
		return string(e.Kind)
	case DimAction:
		return e.Action
	case DimCategory:
		return e.Category
	case DimUTMSource:
		return deref(e.UTM.Source)
	case DimUTMMedium:
		return deref(e.UTM.Medium)
	case DimUTMCampaign:
		return deref(e.UTM.Campaign)
	case DimDuration:
		return formatNumber(e.Duration)
	case DimScrollDepth:
		return formatNumber(e.ScrollDepth)
	case DimValue:
		return formatNumber(e.Value)
	default:
		return ""
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// scalarString renders a filter value the way dimensionValue renders stored values.
func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return formatNumber(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func toNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// checkFilter returns a message describing why f is malformed, or "".
func checkFilter(f Filter) string {
	if !IsDimension(f.Dimension) {
		return fmt.Sprintf("unknown dimension %q", f.Dimension)
	}
	if !f.Operator.Valid() {
		return fmt.Sprintf("unknown operator %q", f.Operator)
	}
	switch f.Operator {
	case OpIn:
		list, ok := f.Value.([]interface{})
		if !ok {
			return "value must be a list for operator in"
		}
		for _, item := range list {
			if _, ok := scalarString(item); !ok {
				return "list values must be strings or numbers"
			}
		}
	case OpGt, OpLt, OpGte, OpLte:
		if _, ok := toNumber(f.Value); !ok {
			return fmt.Sprintf("value must be numeric for operator %s", f.Operator)
		}
	case OpContains:
		if _, ok := f.Value.(string); !ok {
			return "value must be a string for operator contains"
		}
	case OpEq, OpNe:
		if _, ok := scalarString(f.Value); !ok {
			return fmt.Sprintf("value must be a string or number for operator %s", f.Operator)
		}
	}
	return ""
}

// matches evaluates one well-formed filter against an event.
func (f Filter) matches(e *v1.Event) bool {
	stored := dimensionValue(e, f.Dimension)

	switch f.Operator {
	case OpEq:
		want, _ := scalarString(f.Value)
		return stored == want
	case OpNe:
		want, _ := scalarString(f.Value)
		return stored != want
	case OpContains:
		want, _ := f.Value.(string)
		return strings.Contains(stored, want)
	case OpIn:
		list, _ := f.Value.([]interface{})
		for _, item := range list {
			if s, ok := scalarString(item); ok && s == stored {
				return true
			}
		}
		return false
	case OpGt, OpLt, OpGte, OpLte:
		have, ok := toNumber(stored)
		if !ok {
			return false
		}
		want, _ := toNumber(f.Value)
		switch f.Operator {
		case OpGt:
			return have > want
		case OpLt:
			return have < want
		case OpGte:
			return have >= want
		default:
			return have <= want
		}
	default:
		return false
	}
}

// applyFilters keeps the events that satisfy every filter.
func applyFilters(events []*v1.Event, filters []Filter) []*v1.Event {
	if len(filters) == 0 {
		return events
	}
	out := events[:0:0]
	for _, e := range events {
		keep := true
		for _, f := range filters {
			if !f.matches(e) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, e)
		}
	}
	return out
}

// pushdownEquals extracts string equality filters the store can apply natively.
func pushdownEquals(filters []Filter) map[string]string {
	var equals map[string]string
	for _, f := range filters {
		if f.Operator != OpEq {
			continue
		}
		col, ok := pushdownColumn[f.Dimension]
		if !ok {
			continue
		}
		s, ok := f.Value.(string)
		if !ok {
			continue
		}
		if equals == nil {
			equals = make(map[string]string)
		}
		if prev, dup := equals[col]; dup && prev != s {
			// Contradictory equalities; the in-process pass returns nothing either way.
			continue
		}
		equals[col] = s
	}
	return equals
}
