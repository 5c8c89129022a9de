package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nohjs/Yaksok/internal/domain/clause"
	"github.com/nohjs/Yaksok/internal/port/cache"
	"github.com/nohjs/Yaksok/internal/port/clausestore"
)

// SnapshotService serves the read-heavy immutable artifacts (round
// snapshots and final contracts) through the in-process cache. Both are
// write-once, so cached copies never go stale.
type SnapshotService struct {
	store clausestore.Store
	cache cache.Cache
	ttl   time.Duration
}

// NewSnapshotService creates a new SnapshotService.
func NewSnapshotService(store clausestore.Store, c cache.Cache, ttl time.Duration) *SnapshotService {
	return &SnapshotService{store: store, cache: c, ttl: ttl}
}

// Round returns the clause snapshot for (contractID, round).
func (s *SnapshotService) Round(ctx context.Context, contractID string, round int) (*clause.Round, error) {
	key := fmt.Sprintf("round:%s:%d", contractID, round)

	var cached clause.Round
	if ok := s.lookup(ctx, key, &cached); ok {
		return &cached, nil
	}

	r, err := s.store.GetRound(ctx, contractID, round)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, r)
	return r, nil
}

// FinalContract returns the frozen final contract for the given contract.
func (s *SnapshotService) FinalContract(ctx context.Context, contractID string) (*clause.FinalContract, error) {
	key := "final:" + contractID

	var cached clause.FinalContract
	if ok := s.lookup(ctx, key, &cached); ok {
		return &cached, nil
	}

	fc, err := s.store.GetFinalContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, fc)
	return fc, nil
}

func (s *SnapshotService) lookup(ctx context.Context, key string, dst any) bool {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		slog.Warn("corrupt cache entry", "key", key, "error", err)
		_ = s.cache.Delete(ctx, key)
		return false
	}
	return true
}

func (s *SnapshotService) fill(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		slog.Debug("cache set failed", "key", key, "error", err)
	}
}
