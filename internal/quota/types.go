package quota

import "time"

// Snapshot is a complete, immutable reading of all models' quota state at
// one instant. Each successful poll produces a fresh snapshot; the previous
// one is discarded, never merged, so stale fields cannot leak.
type Snapshot struct {
	Timestamp     time.Time      `json:"timestamp"`
	Models        []ModelQuota   `json:"models"`
	PromptCredits *PromptCredits `json:"promptCredits,omitempty"`
}

// ModelQuota is the normalized per-model quota entry. RemainingPercent is
// nil when the payload carried no usable numeric fields, which is distinct
// from an exhausted 0.
type ModelQuota struct {
	ModelID          string   `json:"modelId"`
	Label            string   `json:"label"`
	RemainingPercent *float64 `json:"remainingPercent,omitempty"`
	Exhausted        bool     `json:"exhausted"`
	ResetsIn         string   `json:"resetsIn,omitempty"`
}

type PromptCredits struct {
	Available int `json:"available"`
	Monthly   int `json:"monthly"`
}

// PinFirst reorders models in place so that pinned model IDs come first, in
// the pinned order; the rest keep their payload order.
func PinFirst(models []ModelQuota, pinned []string) {
	if len(pinned) == 0 || len(models) == 0 {
		return
	}
	rank := make(map[string]int, len(pinned))
	for i, id := range pinned {
		rank[id] = i
	}
	ordered := make([]ModelQuota, 0, len(models))
	for _, id := range pinned {
		for _, m := range models {
			if m.ModelID == id {
				ordered = append(ordered, m)
			}
		}
	}
	for _, m := range models {
		if _, ok := rank[m.ModelID]; !ok {
			ordered = append(ordered, m)
		}
	}
	copy(models, ordered)
}
