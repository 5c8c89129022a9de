// Package negotiation defines the multi-round clause negotiation state:
// per-party selections, the contract-level state machine, and the events
// emitted on transitions.
package negotiation

import (
	"sort"
	"time"

	"github.com/nohjs/Yaksok/internal/domain/clause"
	"github.com/nohjs/Yaksok/internal/domain/precheck"
)

// Party identifies one side of the lease contract.
type Party string

const (
	PartyOwner  Party = "owner"
	PartyTenant Party = "tenant"
)

// Valid reports whether p is a known party.
func (p Party) Valid() bool {
	return p == PartyOwner || p == PartyTenant
}

// State is the contract-level negotiation state.
type State string

const (
	// StateAwaitingSelections: both parties may submit selections for the
	// current round.
	StateAwaitingSelections State = "awaiting_selections"
	// StateRevising: the round closed and flagged clauses are being revised.
	StateRevising State = "revising"
	// StateFinalized: terminal. The final contract exists and the
	// negotiation is immutable.
	StateFinalized State = "finalized"
)

// Negotiation is the per-contract aggregate root tracking the active round
// and state.
type Negotiation struct {
	ContractID   string    `json:"contract_id"`
	CurrentRound int       `json:"current_round"`
	State        State     `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SelectionState records both parties' per-clause decisions for one round.
// A true entry flags that clause order for revision; absence or false means
// accept-as-is. Processed flips to true exactly once, only after both
// completion flags are set.
type SelectionState struct {
	ContractID       string       `json:"contract_id"`
	Round            int          `json:"round"`
	OwnerSelections  map[int]bool `json:"owner_selections"`
	TenantSelections map[int]bool `json:"tenant_selections"`
	OwnerCompleted   bool         `json:"owner_completed"`
	TenantCompleted  bool         `json:"tenant_completed"`
	Processed        bool         `json:"processed"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// BothCompleted reports whether both parties have submitted for this round.
func (s *SelectionState) BothCompleted() bool {
	return s.OwnerCompleted && s.TenantCompleted
}

// FlaggedOrders returns the sorted union of clause orders flagged by either
// party, excluding orders already settled (isPassed) in the fix history.
func (s *SelectionState) FlaggedOrders(passed map[int]bool) []int {
	set := make(map[int]bool)
	for order, flagged := range s.OwnerSelections {
		if flagged && !passed[order] {
			set[order] = true
		}
	}
	for order, flagged := range s.TenantSelections {
		if flagged && !passed[order] {
			set[order] = true
		}
	}

	orders := make([]int, 0, len(set))
	for order := range set {
		orders = append(orders, order)
	}
	sort.Ints(orders)
	return orders
}

// CreateRequest holds everything needed to open a negotiation: the round-0
// clause set recommended by the AI service plus the revision context.
type CreateRequest struct {
	ContractID string                  `json:"contract_id"`
	Clauses    []clause.Clause         `json:"clauses"`
	Document   precheck.DocumentData   `json:"document"`
	Owner      precheck.OwnerPrecheck  `json:"owner_precheck"`
	Tenant     precheck.TenantPrecheck `json:"tenant_precheck"`
}

// Validate checks the request before seeding round 0.
func (r *CreateRequest) Validate() error {
	return clause.ValidateSeed(r.Clauses)
}
