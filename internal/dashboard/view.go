package dashboard

import (
	"fmt"
	"time"
)

// Section names one independently fetched part of the view.
type Section string

const (
	SectionStats     Section = "stats"
	SectionAnalytics Section = "analytics"
	SectionAPIs      Section = "apis"
	SectionBilling   Section = "billing"
)

// Sections lists every section in fetch order.
var Sections = []Section{SectionStats, SectionAnalytics, SectionAPIs, SectionBilling}

// View is the merged dashboard state. Values handed out by the synchronizer
// are deep copies and may be modified freely.
type View struct {
	Stats     map[string]any        `json:"stats,omitempty"`
	Analytics map[string]any        `json:"analytics,omitempty"`
	Billing   map[string]any        `json:"billing,omitempty"`
	APIs      []map[string]any      `json:"apis,omitempty"`
	UpdatedAt map[Section]time.Time `json:"updated_at,omitempty"`
	Errors    map[Section]string    `json:"errors,omitempty"`
}

// Has reports whether section has been populated at least once.
func (v View) Has(s Section) bool {
	_, ok := v.UpdatedAt[s]
	return ok
}

// Clone returns a deep copy of v.
func (v View) Clone() View {
	out := View{
		Stats:     cloneMap(v.Stats),
		Analytics: cloneMap(v.Analytics),
		Billing:   cloneMap(v.Billing),
	}
	if v.APIs != nil {
		out.APIs = make([]map[string]any, len(v.APIs))
		for i, api := range v.APIs {
			out.APIs[i] = cloneMap(api)
		}
	}
	if v.UpdatedAt != nil {
		out.UpdatedAt = make(map[Section]time.Time, len(v.UpdatedAt))
		for k, t := range v.UpdatedAt {
			out.UpdatedAt[k] = t
		}
	}
	if v.Errors != nil {
		out.Errors = make(map[Section]string, len(v.Errors))
		for k, e := range v.Errors {
			out.Errors[k] = e
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			out[i] = cloneMap(item)
		}
		return out
	default:
		return v
	}
}

// idOf normalizes an entry id so "7" and 7 match.
func idOf(entry map[string]any) (string, bool) {
	raw, ok := entry["id"]
	if !ok || raw == nil {
		return "", false
	}
	switch id := raw.(type) {
	case string:
		return id, id != ""
	case float64:
		if id == float64(int64(id)) {
			return fmt.Sprintf("%d", int64(id)), true
		}
		return fmt.Sprintf("%v", id), true
	default:
		return fmt.Sprintf("%v", id), true
	}
}
