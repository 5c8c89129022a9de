package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nohjs/Yaksok/internal/adapter/otel"
	"github.com/nohjs/Yaksok/internal/domain"
	"github.com/nohjs/Yaksok/internal/domain/negotiation"
	"github.com/nohjs/Yaksok/internal/port/clausestore"
	"github.com/nohjs/Yaksok/internal/port/messagequeue"
)

// SelectionService tracks each party's per-clause accept/flag decisions for
// the active round and fires the round-ready signal exactly once when both
// parties have completed.
type SelectionService struct {
	store   clausestore.Store
	queue   messagequeue.Queue
	metrics *otel.Metrics
}

// NewSelectionService creates a new SelectionService.
func NewSelectionService(store clausestore.Store, queue messagequeue.Queue) *SelectionService {
	return &SelectionService{store: store, queue: queue}
}

// SetMetrics attaches metric instruments. Optional.
func (s *SelectionService) SetMetrics(m *otel.Metrics) {
	s.metrics = m
}

// SubmitRequest is one party's selection submission for a round. A true
// entry flags that clause order for revision.
type SubmitRequest struct {
	ContractID string            `json:"contract_id"`
	Round      int               `json:"round"`
	Party      negotiation.Party `json:"party"`
	Selections map[int]bool      `json:"selections"`
}

// Submit merges the party's selections into the round's selection state and
// marks that party completed. Resubmission before the round closes
// overwrites that party's prior selections only. When the submission
// completes the round, the processed flag is won atomically and the
// round-ready signal is published for the engine.
func (s *SelectionService) Submit(ctx context.Context, req SubmitRequest) (*negotiation.SelectionState, error) {
	if !req.Party.Valid() {
		return nil, fmt.Errorf("submit selections: unknown party %q", req.Party)
	}

	neg, err := s.store.GetNegotiation(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if neg.State == negotiation.StateFinalized {
		return nil, fmt.Errorf("submit selections for %s: %w", req.ContractID, domain.ErrAlreadyFinalized)
	}
	if req.Round != neg.CurrentRound {
		return nil, fmt.Errorf("submit selections for %s round %d (current %d): %w",
			req.ContractID, req.Round, neg.CurrentRound, domain.ErrStaleRound)
	}

	round, err := s.store.GetRound(ctx, req.ContractID, req.Round)
	if err != nil {
		return nil, err
	}
	for order := range req.Selections {
		if !round.HasOrder(order) {
			return nil, fmt.Errorf("submit selections for %s round %d, order %d: %w",
				req.ContractID, req.Round, order, domain.ErrUnknownClause)
		}
	}

	st, err := s.store.SaveSelections(ctx, req.ContractID, req.Round, req.Party, req.Selections)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SelectionsSubmitted.Add(ctx, 1)
	}
	slog.Info("selections submitted",
		"contract_id", req.ContractID, "round", req.Round, "party", req.Party,
		"flagged", len(req.Selections))

	if st.BothCompleted() {
		won, err := s.store.MarkProcessed(ctx, req.ContractID, req.Round)
		if err != nil {
			return nil, err
		}
		if won {
			st.Processed = true
			s.publishRoundReady(ctx, req.ContractID, req.Round)
		}
	}

	return st, nil
}

// State returns the selection state for the given round.
func (s *SelectionService) State(ctx context.Context, contractID string, round int) (*negotiation.SelectionState, error) {
	return s.store.GetSelectionState(ctx, contractID, round)
}

// publishRoundReady hands the closed round to the engine via the queue.
// The processed flag is already committed; if the publish fails the signal
// can be re-driven through the engine's Kick operation.
func (s *SelectionService) publishRoundReady(ctx context.Context, contractID string, round int) {
	data, err := json.Marshal(negotiation.RoundReady{ContractID: contractID, Round: round})
	if err != nil {
		slog.Error("marshal round-ready", "contract_id", contractID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectRoundReady, data); err != nil {
		slog.Error("publish round-ready failed", "contract_id", contractID, "round", round, "error", err)
		return
	}
	slog.Info("round ready", "contract_id", contractID, "round", round)
}
