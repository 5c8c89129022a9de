package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	ykhttp "github.com/nohjs/Yaksok/internal/adapter/http"
	"github.com/nohjs/Yaksok/internal/config"
	"github.com/nohjs/Yaksok/internal/domain"
	"github.com/nohjs/Yaksok/internal/domain/clause"
	"github.com/nohjs/Yaksok/internal/domain/negotiation"
	"github.com/nohjs/Yaksok/internal/domain/precheck"
	"github.com/nohjs/Yaksok/internal/port/messagequeue"
	"github.com/nohjs/Yaksok/internal/port/reviser"
	"github.com/nohjs/Yaksok/internal/service"
)

// memStore implements clausestore.Store in memory for handler tests.
type memStore struct {
	mu         sync.Mutex
	negs       map[string]*negotiation.Negotiation
	rounds     map[string]map[int]*clause.Round
	selections map[string]map[int]*negotiation.SelectionState
	histories  map[string]map[int]clause.FixHistory
	contexts   map[string]*precheck.RevisionContext
	finals     map[string]*clause.FinalContract
}

func newMemStore() *memStore {
	return &memStore{
		negs:       make(map[string]*negotiation.Negotiation),
		rounds:     make(map[string]map[int]*clause.Round),
		selections: make(map[string]map[int]*negotiation.SelectionState),
		histories:  make(map[string]map[int]clause.FixHistory),
		contexts:   make(map[string]*precheck.RevisionContext),
		finals:     make(map[string]*clause.FinalContract),
	}
}

func (m *memStore) CreateNegotiation(_ context.Context, req *negotiation.CreateRequest) (*negotiation.Negotiation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.negs[req.ContractID]; ok {
		return nil, domain.ErrConflict
	}
	now := time.Now().UTC()
	neg := &negotiation.Negotiation{
		ContractID: req.ContractID,
		State:      negotiation.StateAwaitingSelections,
		CreatedAt:  now, UpdatedAt: now,
	}
	m.negs[req.ContractID] = neg
	m.rounds[req.ContractID] = map[int]*clause.Round{
		0: {ContractID: req.ContractID, Number: 0, Clauses: req.Clauses, CreatedAt: now},
	}
	m.selections[req.ContractID] = map[int]*negotiation.SelectionState{
		0: {ContractID: req.ContractID, Round: 0, UpdatedAt: now},
	}
	m.histories[req.ContractID] = make(map[int]clause.FixHistory)
	m.contexts[req.ContractID] = &precheck.RevisionContext{ContractID: req.ContractID}
	cp := *neg
	return &cp, nil
}

func (m *memStore) GetNegotiation(_ context.Context, id string) (*negotiation.Negotiation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	neg, ok := m.negs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *neg
	return &cp, nil
}

func (m *memStore) SetState(_ context.Context, id string, state negotiation.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	neg, ok := m.negs[id]
	if !ok {
		return domain.ErrNotFound
	}
	neg.State = state
	return nil
}

func (m *memStore) GetRound(_ context.Context, id string, round int) (*clause.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id][round]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetSelectionState(_ context.Context, id string, round int) (*negotiation.SelectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.selections[id][round]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *memStore) SaveSelections(_ context.Context, id string, round int, party negotiation.Party, sel map[int]bool) (*negotiation.SelectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.selections[id][round]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if st.Processed {
		return nil, domain.ErrStaleRound
	}
	if party == negotiation.PartyOwner {
		st.OwnerSelections, st.OwnerCompleted = sel, true
	} else {
		st.TenantSelections, st.TenantCompleted = sel, true
	}
	cp := *st
	return &cp, nil
}

func (m *memStore) MarkProcessed(_ context.Context, id string, round int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.selections[id][round]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !st.BothCompleted() || st.Processed {
		return false, nil
	}
	st.Processed = true
	return true, nil
}

func (m *memStore) ListFixHistory(_ context.Context, id string) ([]clause.FixHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []clause.FixHistory
	for _, h := range m.histories[id] {
		out = append(out, h)
	}
	return out, nil
}

func (m *memStore) GetRevisionContext(_ context.Context, id string) (*precheck.RevisionContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.contexts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rc
	return &cp, nil
}

func (m *memStore) CommitRound(_ context.Context, next *clause.Round, fixes []clause.FixHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[next.ContractID][next.Number] = next
	for _, h := range fixes {
		m.histories[next.ContractID][h.Order] = h
	}
	m.selections[next.ContractID][next.Number] = &negotiation.SelectionState{
		ContractID: next.ContractID, Round: next.Number,
	}
	neg := m.negs[next.ContractID]
	neg.CurrentRound = next.Number
	neg.State = negotiation.StateAwaitingSelections
	return nil
}

func (m *memStore) SaveFinalContract(_ context.Context, fc *clause.FinalContract) (*clause.FinalContract, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.finals[fc.ContractID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	fc.CreatedAt = time.Now().UTC()
	m.finals[fc.ContractID] = fc
	if neg, ok := m.negs[fc.ContractID]; ok {
		neg.State = negotiation.StateFinalized
	}
	cp := *fc
	return &cp, true, nil
}

func (m *memStore) GetFinalContract(_ context.Context, id string) (*clause.FinalContract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fc, ok := m.finals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *fc
	return &cp, nil
}

// nopQueue implements messagequeue.Queue and discards everything.
type nopQueue struct{}

func (nopQueue) Publish(context.Context, string, []byte) error { return nil }
func (nopQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (nopQueue) Drain() error      { return nil }
func (nopQueue) Close() error      { return nil }
func (nopQueue) IsConnected() bool { return true }

// nopCache implements cache.Cache with no storage: every lookup misses.
type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (nopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (nopCache) Delete(context.Context, string) error                     { return nil }

// echoReviser returns the prior content marked as revised.
type echoReviser struct{}

func (echoReviser) Revise(_ context.Context, req reviser.Request) (*reviser.Result, error) {
	return &reviser.Result{
		Title:   req.PriorTitle,
		Content: "revised: " + req.PriorContent,
		Assessment: clause.Assessment{
			Owner:  clause.Evaluation{Level: clause.LevelSafe},
			Tenant: clause.Evaluation{Level: clause.LevelSafe},
		},
	}, nil
}

func newTestRouter() chi.Router {
	store := newMemStore()
	queue := nopQueue{}
	cfg := config.Negotiation{MaxRounds: 3, RevisionRetries: 1, RevisionBackoff: time.Millisecond, MaxParallelClauses: 2}

	final := service.NewFinalizationService(store, queue, nil)
	negSvc := service.NewNegotiationService(store, echoReviser{}, queue, nil, cfg, final)
	selSvc := service.NewSelectionService(store, queue)
	snapSvc := service.NewSnapshotService(store, nopCache{}, time.Hour)

	r := chi.NewRouter()
	ykhttp.MountRoutes(r, &ykhttp.Handlers{
		Negotiations: negSvc,
		Selections:   selSvc,
		Finals:       final,
		Snapshots:    snapSvc,
	})
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createNegotiation(t *testing.T, r chi.Router, contractID string) {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/api/v1/negotiations", negotiation.CreateRequest{
		ContractID: contractID,
		Clauses: []clause.Clause{
			{Order: 1, Title: "Deposit", Content: "deposit terms"},
			{Order: 2, Title: "Restoration", Content: "restore terms"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateAndGetNegotiation(t *testing.T) {
	r := newTestRouter()
	createNegotiation(t, r, "c1")

	rec := doJSON(t, r, http.MethodGet, "/api/v1/negotiations/c1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var neg negotiation.Negotiation
	if err := json.NewDecoder(rec.Body).Decode(&neg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if neg.ContractID != "c1" || neg.CurrentRound != 0 {
		t.Fatalf("unexpected negotiation: %+v", neg)
	}

	// Duplicate create conflicts.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/negotiations", negotiation.CreateRequest{
		ContractID: "c1",
		Clauses:    []clause.Clause{{Order: 1, Title: "A", Content: "a"}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}
}

func TestGetNegotiationNotFound(t *testing.T) {
	r := newTestRouter()

	rec := doJSON(t, r, http.MethodGet, "/api/v1/negotiations/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetRoundAndBadRoundParam(t *testing.T) {
	r := newTestRouter()
	createNegotiation(t, r, "c1")

	rec := doJSON(t, r, http.MethodGet, "/api/v1/negotiations/c1/rounds/0", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var round clause.Round
	if err := json.NewDecoder(rec.Body).Decode(&round); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(round.Clauses) != 2 {
		t.Fatalf("expected 2 clauses, got %d", len(round.Clauses))
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/negotiations/c1/rounds/xyz", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad round, got %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodGet, "/api/v1/negotiations/c1/rounds/9", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing round, got %d", rec.Code)
	}
}

func TestSubmitSelectionsFlow(t *testing.T) {
	r := newTestRouter()
	createNegotiation(t, r, "c1")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/negotiations/c1/selections", service.SubmitRequest{
		Round: 0, Party: negotiation.PartyOwner, Selections: map[int]bool{1: true},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("owner submit: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Unknown clause order is a 400.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/negotiations/c1/selections", service.SubmitRequest{
		Round: 0, Party: negotiation.PartyTenant, Selections: map[int]bool{99: true},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown clause, got %d", rec.Code)
	}

	// Stale round is a 409.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/negotiations/c1/selections", service.SubmitRequest{
		Round: 5, Party: negotiation.PartyTenant, Selections: map[int]bool{1: true},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for stale round, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/negotiations/c1/selections", service.SubmitRequest{
		Round: 0, Party: negotiation.PartyTenant, Selections: map[int]bool{},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("tenant submit: expected 200, got %d", rec.Code)
	}

	var st negotiation.SelectionState
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Processed {
		t.Fatal("expected the round to close on the second submission")
	}
}

func TestProcessRoundEndpointFinalizes(t *testing.T) {
	r := newTestRouter()
	createNegotiation(t, r, "c1")

	// Both parties accept everything.
	for _, p := range []negotiation.Party{negotiation.PartyOwner, negotiation.PartyTenant} {
		rec := doJSON(t, r, http.MethodPost, "/api/v1/negotiations/c1/selections", service.SubmitRequest{
			Round: 0, Party: p,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("submit %s: expected 200, got %d", p, rec.Code)
		}
	}

	rec := doJSON(t, r, http.MethodPost, "/api/v1/negotiations/c1/process", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("process: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/negotiations/c1/final", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("final: expected 200, got %d", rec.Code)
	}
	var fc clause.FinalContract
	if err := json.NewDecoder(rec.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.TotalFinalClauses != 2 {
		t.Fatalf("expected 2 final clauses, got %d", fc.TotalFinalClauses)
	}
}

func TestGetFinalBeforeFinalized(t *testing.T) {
	r := newTestRouter()
	createNegotiation(t, r, "c1")

	rec := doJSON(t, r, http.MethodGet, "/api/v1/negotiations/c1/final", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before finalization, got %d", rec.Code)
	}
}

func TestGetFixHistoryEmptyArray(t *testing.T) {
	r := newTestRouter()
	createNegotiation(t, r, "c1")

	rec := doJSON(t, r, http.MethodGet, "/api/v1/negotiations/c1/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Fatalf("expected an empty JSON array, got %q", body)
	}
}
