package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nohjs/Yaksok/internal/adapter/otel"
	"github.com/nohjs/Yaksok/internal/config"
	"github.com/nohjs/Yaksok/internal/domain/clause"
	"github.com/nohjs/Yaksok/internal/domain/negotiation"
	"github.com/nohjs/Yaksok/internal/domain/precheck"
	"github.com/nohjs/Yaksok/internal/port/broadcast"
	"github.com/nohjs/Yaksok/internal/port/clausestore"
	"github.com/nohjs/Yaksok/internal/port/messagequeue"
	"github.com/nohjs/Yaksok/internal/port/reviser"
	"github.com/nohjs/Yaksok/internal/resilience"
)

// NegotiationService is the round-transition engine. It consumes the
// round-ready signal, computes the flagged clause set, revises flagged
// clauses through the AI service, and commits the next round, or hands the
// terminal round to the finalizer.
//
// Round transitions are strictly serialized per contract; cross-contract
// transitions run independently.
type NegotiationService struct {
	store     clausestore.Store
	revClient reviser.Client
	queue     messagequeue.Queue
	hub       broadcast.Broadcaster
	cfg       config.Negotiation
	finalizer *FinalizationService
	metrics   *otel.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewNegotiationService creates the engine with all dependencies.
func NewNegotiationService(
	store clausestore.Store,
	revClient reviser.Client,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	cfg config.Negotiation,
	finalizer *FinalizationService,
) *NegotiationService {
	return &NegotiationService{
		store:     store,
		revClient: revClient,
		queue:     queue,
		hub:       hub,
		cfg:       cfg,
		finalizer: finalizer,
		locks:     make(map[string]*sync.Mutex),
	}
}

// SetMetrics attaches metric instruments. Optional.
func (s *NegotiationService) SetMetrics(m *otel.Metrics) {
	s.metrics = m
}

// Create validates and seeds a new negotiation at round 0.
func (s *NegotiationService) Create(ctx context.Context, req *negotiation.CreateRequest) (*negotiation.Negotiation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ContractID == "" {
		req.ContractID = uuid.New().String()
	}
	neg, err := s.store.CreateNegotiation(ctx, req)
	if err != nil {
		return nil, err
	}
	slog.Info("negotiation created", "contract_id", neg.ContractID, "clauses", len(req.Clauses))
	return neg, nil
}

// Get returns the contract-level negotiation record.
func (s *NegotiationService) Get(ctx context.Context, contractID string) (*negotiation.Negotiation, error) {
	return s.store.GetNegotiation(ctx, contractID)
}

// FixHistory returns the per-clause revision logs for the contract.
func (s *NegotiationService) FixHistory(ctx context.Context, contractID string) ([]clause.FixHistory, error) {
	return s.store.ListFixHistory(ctx, contractID)
}

// StartRoundSubscriber consumes round-ready signals from the queue. The
// returned function cancels the subscription.
func (s *NegotiationService) StartRoundSubscriber(ctx context.Context) (func(), error) {
	return s.queue.Subscribe(ctx, messagequeue.SubjectRoundReady, func(ctx context.Context, _ string, data []byte) error {
		var ev negotiation.RoundReady
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Error("malformed round-ready message", "error", err)
			return nil // poison message, do not redeliver
		}

		err := s.ProcessRound(ctx, ev.ContractID, ev.Round)
		var partial *negotiation.PartialRevisionError
		if errors.As(err, &partial) {
			// The round advanced; the listed clauses stay flagged for the
			// next round. Redelivery would be a no-op.
			slog.Warn("round advanced with unrevised clauses",
				"contract_id", partial.ContractID, "round", partial.Round, "orders", partial.Orders)
			return nil
		}
		return err
	})
}

// Kick re-drives a contract whose round-ready signal was lost: if the
// current round's selection state is processed but the transition has not
// happened yet, it runs the transition now.
func (s *NegotiationService) Kick(ctx context.Context, contractID string) error {
	neg, err := s.store.GetNegotiation(ctx, contractID)
	if err != nil {
		return err
	}
	if neg.State == negotiation.StateFinalized {
		return nil
	}
	return s.ProcessRound(ctx, contractID, neg.CurrentRound)
}

// ProcessRound runs one round transition for (contractID, round). It is
// idempotent: signals for superseded or unprocessed rounds are no-ops, so
// queue redelivery can never double-advance a round.
func (s *NegotiationService) ProcessRound(ctx context.Context, contractID string, round int) error {
	lock := s.lockFor(contractID)
	lock.Lock()
	defer lock.Unlock()

	neg, err := s.store.GetNegotiation(ctx, contractID)
	if err != nil {
		return err
	}
	if neg.State == negotiation.StateFinalized || neg.CurrentRound != round {
		return nil
	}

	st, err := s.store.GetSelectionState(ctx, contractID, round)
	if err != nil {
		return err
	}
	if !st.Processed {
		return nil
	}

	cur, err := s.store.GetRound(ctx, contractID, round)
	if err != nil {
		return err
	}
	histories, err := s.store.ListFixHistory(ctx, contractID)
	if err != nil {
		return err
	}

	ctx, span := otel.StartRoundSpan(ctx, contractID, round)
	defer span.End()

	flagged := st.FlaggedOrders(clause.PassedOrders(histories))

	if len(flagged) == 0 {
		_, err := s.finalizer.Finalize(ctx, contractID, round, false)
		return err
	}
	if round+1 >= s.cfg.MaxRounds {
		slog.Warn("round cap reached, forcing finalization",
			"contract_id", contractID, "round", round, "outstanding", flagged)
		_, err := s.finalizer.Finalize(ctx, contractID, round, true)
		return err
	}

	if err := s.store.SetState(ctx, contractID, negotiation.StateRevising); err != nil {
		return err
	}

	rc, err := s.store.GetRevisionContext(ctx, contractID)
	if err != nil {
		return err
	}

	outcomes := s.reviseFlagged(ctx, rc, cur, histories, flagged)

	next, fixes, ev := buildNextRound(cur, histories, flagged, outcomes)

	if err := s.store.CommitRound(ctx, next, fixes); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RoundsAdvanced.Add(ctx, 1)
		s.metrics.RevisionsSucceeded.Add(ctx, int64(len(ev.RevisedOrders)))
		s.metrics.RevisionsFailed.Add(ctx, int64(len(ev.FailedOrders)))
	}
	s.emit(ctx, messagequeue.SubjectRoundAdvanced, negotiation.EventRoundAdvanced, ev)
	slog.Info("round advanced", "contract_id", contractID,
		"round", next.Number, "revised", len(ev.RevisedOrders), "failed", len(ev.FailedOrders))

	if len(ev.FailedOrders) > 0 {
		return &negotiation.PartialRevisionError{ContractID: contractID, Round: round, Orders: ev.FailedOrders}
	}
	return nil
}

// revOutcome is one flagged clause's revision result.
type revOutcome struct {
	order  int
	result *reviser.Result
	err    error
}

// reviseFlagged calls the revision service for every flagged clause with
// bounded parallelism. A failed clause never blocks the others; its outcome
// carries the error instead.
func (s *NegotiationService) reviseFlagged(ctx context.Context, rc *precheck.RevisionContext, cur *clause.Round, histories []clause.FixHistory, flagged []int) []revOutcome {
	histByOrder := make(map[int]clause.FixHistory, len(histories))
	for _, h := range histories {
		histByOrder[h.Order] = h
	}

	outcomes := make([]revOutcome, len(flagged))
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.MaxParallelClauses)

	for i, order := range flagged {
		prior, _ := cur.Clause(order)
		history := histByOrder[order].PrevData
		g.Go(func() error {
			res, err := s.reviseOne(ctx, rc, cur.Number, *prior, history)
			outcomes[i] = revOutcome{order: order, result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// reviseOne runs a single clause revision with retry on transient faults.
func (s *NegotiationService) reviseOne(ctx context.Context, rc *precheck.RevisionContext, round int, prior clause.Clause, history []clause.ContentSnapshot) (*reviser.Result, error) {
	ctx, span := otel.StartRevisionSpan(ctx, rc.ContractID, round, prior.Order)
	defer span.End()

	req := reviser.Request{
		ContractID:   rc.ContractID,
		Round:        round,
		Order:        prior.Order,
		PriorTitle:   prior.Title,
		PriorContent: prior.Content,
		Document:     rc.Document,
		Owner:        rc.Owner,
		Tenant:       rc.Tenant,
		History:      history,
	}

	start := time.Now()
	var res *reviser.Result
	err := resilience.Retry(ctx, s.cfg.RevisionRetries, s.cfg.RevisionBackoff, reviser.Retryable,
		func(ctx context.Context) error {
			var callErr error
			res, callErr = s.revClient.Revise(ctx, req)
			return callErr
		})
	if s.metrics != nil {
		s.metrics.RevisionDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		slog.Error("clause revision failed", "contract_id", rc.ContractID,
			"round", round, "order", prior.Order, "error", err)
		return nil, err
	}
	return res, nil
}

// buildNextRound assembles the round N+1 snapshot and fix history updates
// from this round's revision outcomes. Unflagged clauses carry over
// unchanged; clauses with history that went unflagged this round are
// settled (isPassed).
func buildNextRound(cur *clause.Round, histories []clause.FixHistory, flagged []int, outcomes []revOutcome) (*clause.Round, []clause.FixHistory, negotiation.RoundAdvanced) {
	now := time.Now().UTC()
	nextNumber := cur.Number + 1

	histByOrder := make(map[int]clause.FixHistory, len(histories))
	for _, h := range histories {
		histByOrder[h.Order] = h
	}
	flaggedSet := make(map[int]bool, len(flagged))
	for _, order := range flagged {
		flaggedSet[order] = true
	}

	var fixes []clause.FixHistory
	revised := make(map[int]clause.Clause)
	ev := negotiation.RoundAdvanced{ContractID: cur.ContractID, Round: nextNumber}

	for _, out := range outcomes {
		prior, _ := cur.Clause(out.order)

		h, ok := histByOrder[out.order]
		if !ok {
			h = clause.FixHistory{ContractID: cur.ContractID, Order: out.order}
		}
		h.Round = nextNumber
		h.IsPassed = false
		h.PrevData = append(h.PrevData, clause.ContentSnapshot{
			Round: cur.Number, Title: prior.Title, Content: prior.Content, SavedAt: now,
		})

		if out.err != nil {
			// Exhausted retries: carry the prior content into the next round.
			h.RecentData = &clause.ContentSnapshot{
				Round: nextNumber, Title: prior.Title, Content: prior.Content, SavedAt: now,
			}
			ev.FailedOrders = append(ev.FailedOrders, out.order)
		} else {
			revised[out.order] = clause.Clause{
				Order:      out.order,
				Title:      out.result.Title,
				Content:    out.result.Content,
				Assessment: out.result.Assessment,
			}
			h.RecentData = &clause.ContentSnapshot{
				Round: nextNumber, Title: out.result.Title, Content: out.result.Content, SavedAt: now,
			}
			ev.RevisedOrders = append(ev.RevisedOrders, out.order)
		}
		fixes = append(fixes, h)
	}

	// Previously revised clauses that went unflagged this round are settled.
	for _, h := range histories {
		if !h.IsPassed && !flaggedSet[h.Order] {
			h.IsPassed = true
			fixes = append(fixes, h)
		}
	}

	next := &clause.Round{ContractID: cur.ContractID, Number: nextNumber, CreatedAt: now}
	for _, c := range cur.Clauses {
		if nc, ok := revised[c.Order]; ok {
			next.Clauses = append(next.Clauses, nc)
		} else {
			next.Clauses = append(next.Clauses, c)
		}
	}

	if ev.RevisedOrders == nil {
		ev.RevisedOrders = []int{}
	}
	return next, fixes, ev
}

// emit publishes an event to the queue and the websocket hub. Both are
// best-effort: the transition is already committed.
func (s *NegotiationService) emit(ctx context.Context, subject, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Error("publish event failed", "subject", subject, "error", err)
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, eventType, payload)
	}
}

func (s *NegotiationService) lockFor(contractID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[contractID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[contractID] = lock
	}
	return lock
}
