// Package clause defines the lease clause entities: per-round clause
// snapshots, revision history, and the final frozen contract.
package clause

import (
	"fmt"
	"time"
)

// Level is the per-party risk level of a clause.
type Level string

const (
	LevelSafe   Level = "SAFE"
	LevelWarn   Level = "WARN"
	LevelDanger Level = "DANGER"
)

// Valid reports whether l is a known risk level.
func (l Level) Valid() bool {
	switch l {
	case LevelSafe, LevelWarn, LevelDanger:
		return true
	}
	return false
}

// Evaluation is one party's risk assessment of a clause.
type Evaluation struct {
	Level  Level  `json:"level"`
	Reason string `json:"reason"`
}

// Assessment holds both parties' evaluations of a clause.
type Assessment struct {
	Owner  Evaluation `json:"owner"`
	Tenant Evaluation `json:"tenant"`
}

// Clause is a single negotiable lease term. Immutable once written to a
// round snapshot.
type Clause struct {
	Order      int        `json:"order"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Assessment Assessment `json:"assessment"`
}

// Round is the ordered clause snapshot for (contractID, number).
// Number starts at 0 and increments monotonically; a round is immutable
// once superseded.
type Round struct {
	ContractID string    `json:"contract_id"`
	Number     int       `json:"number"`
	Clauses    []Clause  `json:"clauses"`
	CreatedAt  time.Time `json:"created_at"`
}

// Clause returns the clause with the given order, if present.
func (r *Round) Clause(order int) (*Clause, bool) {
	for i := range r.Clauses {
		if r.Clauses[i].Order == order {
			return &r.Clauses[i], true
		}
	}
	return nil, false
}

// HasOrder reports whether the round contains a clause with the given order.
func (r *Round) HasOrder(order int) bool {
	_, ok := r.Clause(order)
	return ok
}

// ValidateSeed checks a round-0 seed clause set: at least one clause,
// unique orders, non-empty titles and content.
func ValidateSeed(clauses []Clause) error {
	if len(clauses) == 0 {
		return fmt.Errorf("clause set is empty")
	}
	seen := make(map[int]bool, len(clauses))
	for _, c := range clauses {
		if seen[c.Order] {
			return fmt.Errorf("duplicate clause order %d", c.Order)
		}
		seen[c.Order] = true
		if c.Title == "" {
			return fmt.Errorf("clause %d: title is required", c.Order)
		}
		if c.Content == "" {
			return fmt.Errorf("clause %d: content is required", c.Order)
		}
	}
	return nil
}
