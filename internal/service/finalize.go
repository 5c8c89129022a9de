package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nohjs/Yaksok/internal/adapter/otel"
	"github.com/nohjs/Yaksok/internal/domain/clause"
	"github.com/nohjs/Yaksok/internal/domain/negotiation"
	"github.com/nohjs/Yaksok/internal/port/broadcast"
	"github.com/nohjs/Yaksok/internal/port/clausestore"
	"github.com/nohjs/Yaksok/internal/port/messagequeue"
)

// FinalizationService freezes the agreed clause set into the immutable
// final contract, exactly once per contract.
type FinalizationService struct {
	store   clausestore.Store
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	metrics *otel.Metrics
}

// NewFinalizationService creates a new FinalizationService.
func NewFinalizationService(store clausestore.Store, queue messagequeue.Queue, hub broadcast.Broadcaster) *FinalizationService {
	return &FinalizationService{store: store, queue: queue, hub: hub}
}

// SetMetrics attaches metric instruments. Optional.
func (s *FinalizationService) SetMetrics(m *otel.Metrics) {
	s.metrics = m
}

// Finalize snapshots the given round into the final contract, stripping
// assessments. Retries and duplicate calls return the stored document
// unchanged; the finalized event fires only for the call that created it.
func (s *FinalizationService) Finalize(ctx context.Context, contractID string, round int, forced bool) (*clause.FinalContract, error) {
	r, err := s.store.GetRound(ctx, contractID, round)
	if err != nil {
		return nil, err
	}

	stored, created, err := s.store.SaveFinalContract(ctx, clause.NewFinalContract(contractID, r))
	if err != nil {
		return nil, err
	}
	if !created {
		return stored, nil
	}

	if s.metrics != nil {
		s.metrics.Finalizations.Add(ctx, 1)
	}
	s.emit(ctx, negotiation.NegotiationFinalized{ContractID: contractID, Round: round, Forced: forced})
	slog.Info("negotiation finalized",
		"contract_id", contractID, "round", round, "forced", forced,
		"clauses", stored.TotalFinalClauses)
	return stored, nil
}

// Get returns the final contract, or domain.ErrNotFound while the
// negotiation is still running.
func (s *FinalizationService) Get(ctx context.Context, contractID string) (*clause.FinalContract, error) {
	return s.store.GetFinalContract(ctx, contractID)
}

func (s *FinalizationService) emit(ctx context.Context, ev negotiation.NegotiationFinalized) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal finalized event", "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectFinalized, data); err != nil {
		slog.Error("publish finalized event failed", "contract_id", ev.ContractID, "error", err)
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, negotiation.EventFinalized, ev)
	}
}
