package service

import (
	"context"
	"errors"
	"testing"

	"github.com/nohjs/Yaksok/internal/domain"
	"github.com/nohjs/Yaksok/internal/domain/negotiation"
	"github.com/nohjs/Yaksok/internal/port/messagequeue"
)

func TestFinalizeStripsAssessments(t *testing.T) {
	store := newMockStore()
	queue := &mockQueue{}
	negSvc, _ := newTestEngine(store, &mockReviser{}, queue, testConfig())
	final := NewFinalizationService(store, queue, nil)
	mustCreate(t, negSvc, "c1", 2, 1)

	fc, err := final.Finalize(context.Background(), "c1", 0, false)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if fc.TotalFinalClauses != 2 {
		t.Fatalf("expected 2 clauses, got %d", fc.TotalFinalClauses)
	}
	// Clauses are ordered by their order field regardless of seed order.
	if fc.FinalClauses[0].Order != 1 || fc.FinalClauses[1].Order != 2 {
		t.Fatalf("clauses not sorted by order: %+v", fc.FinalClauses)
	}
	for _, c := range fc.FinalClauses {
		if c.Title == "" || c.Content == "" {
			t.Fatalf("final clause missing content: %+v", c)
		}
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	store := newMockStore()
	queue := &mockQueue{}
	negSvc, _ := newTestEngine(store, &mockReviser{}, queue, testConfig())
	final := NewFinalizationService(store, queue, nil)
	mustCreate(t, negSvc, "c1", 1)

	first, err := final.Finalize(context.Background(), "c1", 0, false)
	if err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	second, err := final.Finalize(context.Background(), "c1", 0, true)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Fatal("duplicate finalize must return the stored contract unchanged")
	}
	if got := queue.countSubject(messagequeue.SubjectFinalized); got != 1 {
		t.Fatalf("finalized event must fire once, got %d", got)
	}
}

func TestFinalizeMissingRound(t *testing.T) {
	store := newMockStore()
	final := NewFinalizationService(store, &mockQueue{}, nil)

	_, err := final.Finalize(context.Background(), "nope", 0, false)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetFinalBeforeFinalization(t *testing.T) {
	store := newMockStore()
	negSvc, _ := newTestEngine(store, &mockReviser{}, &mockQueue{}, testConfig())
	final := NewFinalizationService(store, &mockQueue{}, nil)
	mustCreate(t, negSvc, "c1", 1)

	_, err := final.Get(context.Background(), "c1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound while running, got %v", err)
	}
}

func TestFinalizeMarksStateFinalized(t *testing.T) {
	store := newMockStore()
	negSvc, _ := newTestEngine(store, &mockReviser{}, &mockQueue{}, testConfig())
	final := NewFinalizationService(store, &mockQueue{}, nil)
	mustCreate(t, negSvc, "c1", 1)

	if _, err := final.Finalize(context.Background(), "c1", 0, true); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	neg, _ := store.GetNegotiation(context.Background(), "c1")
	if neg.State != negotiation.StateFinalized {
		t.Fatalf("expected finalized state, got %q", neg.State)
	}
}
