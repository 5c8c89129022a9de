package clause

import "time"

// ContentSnapshot is one revision attempt's content for a clause.
type ContentSnapshot struct {
	Round   int       `json:"round"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	SavedAt time.Time `json:"saved_at"`
}

// FixHistory is the append-only revision log for one clause order across
// rounds. IsPassed marks the clause as settled: it is excluded from any
// further revision.
type FixHistory struct {
	ContractID string            `json:"contract_id"`
	Order      int               `json:"order"`
	Round      int               `json:"round"`
	IsPassed   bool              `json:"is_passed"`
	PrevData   []ContentSnapshot `json:"prev_data"`
	RecentData *ContentSnapshot  `json:"recent_data,omitempty"`
}

// PassedOrders extracts the set of settled clause orders from a history list.
func PassedOrders(histories []FixHistory) map[int]bool {
	passed := make(map[int]bool)
	for _, h := range histories {
		if h.IsPassed {
			passed[h.Order] = true
		}
	}
	return passed
}
