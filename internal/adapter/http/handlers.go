// Package http provides the chi-based API surface for the negotiation core.
package http

import (
	"errors"
	"net/http"

	"github.com/nohjs/Yaksok/internal/domain/clause"
	"github.com/nohjs/Yaksok/internal/domain/negotiation"
	"github.com/nohjs/Yaksok/internal/service"
)

// Handlers holds service dependencies for all HTTP handlers.
type Handlers struct {
	Negotiations *service.NegotiationService
	Selections   *service.SelectionService
	Finals       *service.FinalizationService
	Snapshots    *service.SnapshotService
}

// CreateNegotiation handles POST /api/v1/negotiations
func (h *Handlers) CreateNegotiation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[negotiation.CreateRequest](w, r)
	if !ok {
		return
	}

	neg, err := h.Negotiations.Create(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "negotiation not found")
		return
	}
	writeJSON(w, http.StatusCreated, neg)
}

// GetNegotiation handles GET /api/v1/negotiations/{contractID}
func (h *Handlers) GetNegotiation(w http.ResponseWriter, r *http.Request) {
	neg, err := h.Negotiations.Get(r.Context(), urlParam(r, "contractID"))
	if err != nil {
		writeDomainError(w, err, "negotiation not found")
		return
	}
	writeJSON(w, http.StatusOK, neg)
}

// GetRound handles GET /api/v1/negotiations/{contractID}/rounds/{round}
func (h *Handlers) GetRound(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	snapshot, err := h.Snapshots.Round(r.Context(), urlParam(r, "contractID"), round)
	if err != nil {
		writeDomainError(w, err, "round not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// GetSelectionState handles GET /api/v1/negotiations/{contractID}/rounds/{round}/selections
func (h *Handlers) GetSelectionState(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	st, err := h.Selections.State(r.Context(), urlParam(r, "contractID"), round)
	if err != nil {
		writeDomainError(w, err, "selection state not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SubmitSelections handles POST /api/v1/negotiations/{contractID}/selections
func (h *Handlers) SubmitSelections(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.SubmitRequest](w, r)
	if !ok {
		return
	}
	req.ContractID = urlParam(r, "contractID")

	st, err := h.Selections.Submit(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "negotiation not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetFixHistory handles GET /api/v1/negotiations/{contractID}/history
func (h *Handlers) GetFixHistory(w http.ResponseWriter, r *http.Request) {
	histories, err := h.Negotiations.FixHistory(r.Context(), urlParam(r, "contractID"))
	if err != nil {
		writeDomainError(w, err, "negotiation not found")
		return
	}
	if histories == nil {
		histories = []clause.FixHistory{}
	}
	writeJSON(w, http.StatusOK, histories)
}

// GetFinalContract handles GET /api/v1/negotiations/{contractID}/final
func (h *Handlers) GetFinalContract(w http.ResponseWriter, r *http.Request) {
	fc, err := h.Snapshots.FinalContract(r.Context(), urlParam(r, "contractID"))
	if err != nil {
		writeDomainError(w, err, "negotiation not finalized yet")
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

// ProcessRound handles POST /api/v1/negotiations/{contractID}/process
// It re-drives a contract whose round-ready signal was lost.
func (h *Handlers) ProcessRound(w http.ResponseWriter, r *http.Request) {
	err := h.Negotiations.Kick(r.Context(), urlParam(r, "contractID"))
	if err != nil {
		var partial *negotiation.PartialRevisionError
		if errors.As(err, &partial) {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":        "advanced_with_failures",
				"failed_orders": partial.Orders,
			})
			return
		}
		writeDomainError(w, err, "negotiation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
