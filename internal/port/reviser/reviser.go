// Package reviser defines the port to the external AI clause revision
// service and its error taxonomy.
package reviser

import (
	"context"
	"errors"

	"github.com/nohjs/Yaksok/internal/domain/clause"
	"github.com/nohjs/Yaksok/internal/domain/precheck"
)

// ErrServiceUnavailable indicates a transient fault (connection refused,
// 5xx); the caller may retry with backoff.
var ErrServiceUnavailable = errors.New("revision service unavailable")

// ErrTimeout indicates the revision call exceeded its deadline; transient,
// retryable.
var ErrTimeout = errors.New("revision service timeout")

// ErrInvalidResponse indicates a malformed payload or missing required
// fields; permanent for this attempt, not retried.
var ErrInvalidResponse = errors.New("invalid revision response")

// Request carries one clause to revise plus the full context the AI needs:
// the OCR document, both parties' precheck data, and the accumulated
// revision history so the model sees prior attempts, not just the latest.
type Request struct {
	ContractID   string                   `json:"contract_id"`
	Round        int                      `json:"round"`
	Order        int                      `json:"order"`
	PriorTitle   string                   `json:"prior_title"`
	PriorContent string                   `json:"prior_content"`
	Document     precheck.DocumentData    `json:"ocr_data"`
	Owner        precheck.OwnerPrecheck   `json:"owner_precheck_data"`
	Tenant       precheck.TenantPrecheck  `json:"tenant_precheck_data"`
	History      []clause.ContentSnapshot `json:"revision_history,omitempty"`
}

// Result is a successfully revised clause with a fresh per-party risk
// assessment.
type Result struct {
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Assessment clause.Assessment `json:"assessment"`
}

// Client is the port interface to the clause revision service.
type Client interface {
	// Revise returns the revised clause, or one of the package sentinel
	// errors wrapped with call detail.
	Revise(ctx context.Context, req Request) (*Result, error)
}

// Retryable reports whether err is a transient revision fault worth
// retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrTimeout)
}
