package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nohjs/Yaksok/internal/domain"
	"github.com/nohjs/Yaksok/internal/domain/negotiation"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// scanSelectionState scans a selection_states row, decoding the JSONB
// selection maps.
func scanSelectionState(row scannable) (*negotiation.SelectionState, error) {
	var st negotiation.SelectionState
	var ownerJSON, tenantJSON []byte
	if err := row.Scan(&st.ContractID, &st.Round, &ownerJSON, &tenantJSON,
		&st.OwnerCompleted, &st.TenantCompleted, &st.Processed, &st.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ownerJSON, &st.OwnerSelections); err != nil {
		return nil, fmt.Errorf("unmarshal owner selections: %w", err)
	}
	if err := json.Unmarshal(tenantJSON, &st.TenantSelections); err != nil {
		return nil, fmt.Errorf("unmarshal tenant selections: %w", err)
	}
	return &st, nil
}

// orEmpty returns items unchanged if non-nil, or an empty slice if nil.
// Useful to ensure JSON serialization produces [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// notFoundWrap checks whether err is pgx.ErrNoRows and, if so, wraps
// domain.ErrNotFound with the given message. Otherwise it wraps the
// original error.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// execExpectOne verifies that an Exec affected exactly one row. If not
// (and err is nil), it returns domain.ErrNotFound with the given message.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err != nil {
		return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", domain.ErrNotFound)
	}
	return nil
}
