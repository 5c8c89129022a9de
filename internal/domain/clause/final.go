package clause

import (
	"sort"
	"time"
)

// FinalClause is a clause in the frozen legal output. Assessments are
// negotiation metadata and are not part of the final document.
type FinalClause struct {
	Order   int    `json:"order"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// FinalContract is the write-once terminal artifact of a negotiation.
type FinalContract struct {
	ContractID        string        `json:"contract_id"`
	TotalFinalClauses int           `json:"total_final_clauses"`
	FinalClauses      []FinalClause `json:"final_clauses"`
	CreatedAt         time.Time     `json:"created_at"`
}

// NewFinalContract freezes the given round into a final contract, stripping
// assessments and numbering clauses by their order field.
func NewFinalContract(contractID string, r *Round) *FinalContract {
	finals := make([]FinalClause, 0, len(r.Clauses))
	for _, c := range r.Clauses {
		finals = append(finals, FinalClause{
			Order:   c.Order,
			Title:   c.Title,
			Content: c.Content,
		})
	}
	sort.Slice(finals, func(i, j int) bool { return finals[i].Order < finals[j].Order })

	return &FinalContract{
		ContractID:        contractID,
		TotalFinalClauses: len(finals),
		FinalClauses:      finals,
	}
}
