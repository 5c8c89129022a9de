// Package clausestore defines the persistence port for negotiation state.
package clausestore

import (
	"context"

	"github.com/nohjs/Yaksok/internal/domain/clause"
	"github.com/nohjs/Yaksok/internal/domain/negotiation"
	"github.com/nohjs/Yaksok/internal/domain/precheck"
)

// Store is the port interface for the clause negotiation store.
//
// Round snapshots and final contracts are immutable once written. The only
// mutable records are the per-round selection state and the per-clause fix
// history, and both are only mutated through the operations below.
type Store interface {
	// CreateNegotiation seeds round 0 from the given clause set, stores the
	// revision context, and opens an empty selection state for round 0.
	// Returns domain.ErrConflict if a negotiation already exists for the
	// contract.
	CreateNegotiation(ctx context.Context, req *negotiation.CreateRequest) (*negotiation.Negotiation, error)

	// GetNegotiation returns the contract-level negotiation record.
	GetNegotiation(ctx context.Context, contractID string) (*negotiation.Negotiation, error)

	// SetState updates the contract-level state.
	SetState(ctx context.Context, contractID string, state negotiation.State) error

	// GetRound returns the immutable clause snapshot for (contractID, round).
	GetRound(ctx context.Context, contractID string, round int) (*clause.Round, error)

	// GetSelectionState returns the selection state for (contractID, round).
	GetSelectionState(ctx context.Context, contractID string, round int) (*negotiation.SelectionState, error)

	// SaveSelections overwrites one party's selections for the round and
	// marks that party completed. It must refuse rounds whose selection
	// state is already processed (domain.ErrStaleRound).
	SaveSelections(ctx context.Context, contractID string, round int, party negotiation.Party, selections map[int]bool) (*negotiation.SelectionState, error)

	// MarkProcessed atomically flips processed to true when both completion
	// flags are set and processed is still false. Returns true only for the
	// single caller that won the flip; every other caller gets false.
	MarkProcessed(ctx context.Context, contractID string, round int) (bool, error)

	// ListFixHistory returns the per-clause revision logs for the contract.
	ListFixHistory(ctx context.Context, contractID string) ([]clause.FixHistory, error)

	// GetRevisionContext returns the OCR document and both parties'
	// precheck data captured at negotiation creation.
	GetRevisionContext(ctx context.Context, contractID string) (*precheck.RevisionContext, error)

	// CommitRound atomically persists the next round snapshot, the updated
	// fix histories, a fresh selection state for the new round, and the
	// bumped current round. Partial commits must be impossible.
	CommitRound(ctx context.Context, next *clause.Round, fixes []clause.FixHistory) error

	// SaveFinalContract writes the final contract exactly once and moves
	// the negotiation to the finalized state. When a final contract already
	// exists it is returned unchanged with created=false.
	SaveFinalContract(ctx context.Context, fc *clause.FinalContract) (stored *clause.FinalContract, created bool, err error)

	// GetFinalContract returns the final contract, or domain.ErrNotFound
	// while the negotiation is still running.
	GetFinalContract(ctx context.Context, contractID string) (*clause.FinalContract, error)
}
