package quota

import (
	"encoding/json"
	"fmt"
	"time"
)

// quotaResponse is the raw shape of the quota-status endpoint. All numeric
// fields are pointers: the wire format omits fields freely between host
// releases, and "absent" must stay distinguishable from zero.
type quotaResponse struct {
	Models        []modelEntry `json:"models"`
	PromptCredits *creditEntry `json:"promptCredits"`
}

type modelEntry struct {
	ModelID   string   `json:"modelId"`
	Label     string   `json:"label"`
	Used      *float64 `json:"used"`
	Limit     *float64 `json:"limit"`
	Remaining *float64 `json:"remaining"`
	Exhausted bool     `json:"exhausted"`
	ResetsIn  string   `json:"resetsIn"`
}

type creditEntry struct {
	Available int `json:"available"`
	Monthly   int `json:"monthly"`
}

// ParseSnapshot converts a raw quota payload into a Snapshot. Structural
// mismatch is an error for the caller to report; it never panics.
func ParseSnapshot(data []byte, now time.Time) (*Snapshot, error) {
	var raw quotaResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed quota payload: %w", err)
	}

	snap := &Snapshot{Timestamp: now}
	for _, entry := range raw.Models {
		if entry.ModelID == "" && entry.Label == "" {
			continue
		}
		m := ModelQuota{
			ModelID:  entry.ModelID,
			Label:    entry.Label,
			ResetsIn: entry.ResetsIn,
		}
		if m.Label == "" {
			m.Label = m.ModelID
		}
		m.RemainingPercent = remainingPercent(entry)
		m.Exhausted = entry.Exhausted || (m.RemainingPercent != nil && *m.RemainingPercent == 0)
		if entry.Exhausted && m.RemainingPercent != nil && *m.RemainingPercent > 0 {
			// The explicit flag wins over conflicting numerics.
			zero := 0.0
			m.RemainingPercent = &zero
		}
		snap.Models = append(snap.Models, m)
	}

	if raw.PromptCredits != nil {
		snap.PromptCredits = &PromptCredits{
			Available: raw.PromptCredits.Available,
			Monthly:   raw.PromptCredits.Monthly,
		}
	}
	return snap, nil
}

// remainingPercent maps whatever numerator/denominator fields the entry
// carries to a percentage clamped to [0,100]. Entries without a usable
// limit stay unknown (nil) rather than defaulting to zero, so "unknown"
// and "exhausted" remain distinct.
func remainingPercent(entry modelEntry) *float64 {
	if entry.Limit == nil || *entry.Limit <= 0 {
		return nil
	}
	var remaining float64
	switch {
	case entry.Remaining != nil:
		remaining = *entry.Remaining
	case entry.Used != nil:
		remaining = *entry.Limit - *entry.Used
	default:
		return nil
	}
	pct := remaining / *entry.Limit * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return &pct
}
