package dashboard

// Recognized delta kinds.
const (
	DeltaStatsUpdate     = "stats_update"
	DeltaAnalyticsUpdate = "analytics_update"
	DeltaBillingUpdate   = "billing_update"
	DeltaAPIUpdate       = "api_update"
	DeltaAPICreated      = "api_created"
	DeltaAPIDeleted      = "api_deleted"
)

// Delta is an incremental update pushed over the channel.
type Delta struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// mergeDelta folds d into v, returning the touched section. Unknown kinds
// return false and leave v untouched.
func mergeDelta(v *View, d Delta) (Section, bool) {
	switch d.Type {
	case DeltaStatsUpdate:
		v.Stats = shallowMerge(v.Stats, d.Data)
		return SectionStats, true
	case DeltaAnalyticsUpdate:
		v.Analytics = shallowMerge(v.Analytics, d.Data)
		return SectionAnalytics, true
	case DeltaBillingUpdate:
		v.Billing = shallowMerge(v.Billing, d.Data)
		return SectionBilling, true
	case DeltaAPIUpdate, DeltaAPICreated:
		v.APIs = upsertAPI(v.APIs, d.Data)
		return SectionAPIs, true
	case DeltaAPIDeleted:
		v.APIs = removeAPI(v.APIs, d.Data)
		return SectionAPIs, true
	}
	return "", false
}

func shallowMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, val := range src {
		dst[k] = cloneValue(val)
	}
	return dst
}

// upsertAPI merges data into the entry with the same id, appending when the
// id is unknown or absent.
func upsertAPI(list []map[string]any, data map[string]any) []map[string]any {
	if len(data) == 0 {
		return list
	}
	if id, ok := idOf(data); ok {
		for _, entry := range list {
			if other, ok := idOf(entry); ok && other == id {
				shallowMerge(entry, data)
				return list
			}
		}
	}
	return append(list, cloneMap(data))
}

func removeAPI(list []map[string]any, data map[string]any) []map[string]any {
	id, ok := idOf(data)
	if !ok {
		return list
	}
	out := list[:0]
	for _, entry := range list {
		if other, ok := idOf(entry); ok && other == id {
			continue
		}
		out = append(out, entry)
	}
	return out
}
