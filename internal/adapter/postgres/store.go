package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nohjs/Yaksok/internal/domain"
	"github.com/nohjs/Yaksok/internal/domain/clause"
	"github.com/nohjs/Yaksok/internal/domain/negotiation"
	"github.com/nohjs/Yaksok/internal/domain/precheck"
)

// Store implements clausestore.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Negotiations ---

func (s *Store) CreateNegotiation(ctx context.Context, req *negotiation.CreateRequest) (*negotiation.Negotiation, error) {
	docJSON, err := json.Marshal(req.Document)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	ownerJSON, err := json.Marshal(req.Owner)
	if err != nil {
		return nil, fmt.Errorf("marshal owner precheck: %w", err)
	}
	tenantJSON, err := json.Marshal(req.Tenant)
	if err != nil {
		return nil, fmt.Errorf("marshal tenant precheck: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var n negotiation.Negotiation
	row := tx.QueryRow(ctx,
		`INSERT INTO negotiations (contract_id, document, owner_precheck, tenant_precheck)
		 VALUES ($1, $2, $3, $4)
		 RETURNING contract_id, current_round, state, created_at, updated_at`,
		req.ContractID, docJSON, ownerJSON, tenantJSON)
	if err := row.Scan(&n.ContractID, &n.CurrentRound, &n.State, &n.CreatedAt, &n.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create negotiation %s: %w", req.ContractID, domain.ErrConflict)
		}
		return nil, fmt.Errorf("create negotiation %s: %w", req.ContractID, err)
	}

	if err := insertRoundClauses(ctx, tx, req.ContractID, 0, req.Clauses); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO selection_states (contract_id, round) VALUES ($1, 0)`, req.ContractID); err != nil {
		return nil, fmt.Errorf("seed selection state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create negotiation: %w", err)
	}
	return &n, nil
}

func (s *Store) GetNegotiation(ctx context.Context, contractID string) (*negotiation.Negotiation, error) {
	var n negotiation.Negotiation
	row := s.pool.QueryRow(ctx,
		`SELECT contract_id, current_round, state, created_at, updated_at
		 FROM negotiations WHERE contract_id = $1`, contractID)
	if err := row.Scan(&n.ContractID, &n.CurrentRound, &n.State, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, notFoundWrap(err, "get negotiation %s", contractID)
	}
	return &n, nil
}

func (s *Store) SetState(ctx context.Context, contractID string, state negotiation.State) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE negotiations SET state = $2, updated_at = now() WHERE contract_id = $1`,
		contractID, string(state))
	return execExpectOne(tag, err, "set state for %s", contractID)
}

// --- Rounds ---

func (s *Store) GetRound(ctx context.Context, contractID string, round int) (*clause.Round, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT clause_order, title, content, assessment, created_at
		 FROM clause_rounds WHERE contract_id = $1 AND round = $2 ORDER BY clause_order ASC`,
		contractID, round)
	if err != nil {
		return nil, fmt.Errorf("get round %d of %s: %w", round, contractID, err)
	}
	defer rows.Close()

	r := &clause.Round{ContractID: contractID, Number: round}
	for rows.Next() {
		var c clause.Clause
		var assessmentJSON []byte
		if err := rows.Scan(&c.Order, &c.Title, &c.Content, &assessmentJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan clause: %w", err)
		}
		if err := json.Unmarshal(assessmentJSON, &c.Assessment); err != nil {
			return nil, fmt.Errorf("unmarshal assessment for order %d: %w", c.Order, err)
		}
		r.Clauses = append(r.Clauses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(r.Clauses) == 0 {
		return nil, fmt.Errorf("get round %d of %s: %w", round, contractID, domain.ErrNotFound)
	}
	return r, nil
}

// --- Selection states ---

const selectionColumns = `contract_id, round, owner_selections, tenant_selections, owner_completed, tenant_completed, processed, updated_at`

func (s *Store) GetSelectionState(ctx context.Context, contractID string, round int) (*negotiation.SelectionState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectionColumns+` FROM selection_states WHERE contract_id = $1 AND round = $2`,
		contractID, round)
	st, err := scanSelectionState(row)
	if err != nil {
		return nil, notFoundWrap(err, "get selection state %s round %d", contractID, round)
	}
	return st, nil
}

func (s *Store) SaveSelections(ctx context.Context, contractID string, round int, party negotiation.Party, selections map[int]bool) (*negotiation.SelectionState, error) {
	selJSON, err := json.Marshal(selections)
	if err != nil {
		return nil, fmt.Errorf("marshal selections: %w", err)
	}

	// Column names cannot be parameterized; the party enum picks the query.
	var query string
	switch party {
	case negotiation.PartyOwner:
		query = `UPDATE selection_states
		         SET owner_selections = $3, owner_completed = TRUE, updated_at = now()
		         WHERE contract_id = $1 AND round = $2 AND NOT processed
		         RETURNING ` + selectionColumns
	case negotiation.PartyTenant:
		query = `UPDATE selection_states
		         SET tenant_selections = $3, tenant_completed = TRUE, updated_at = now()
		         WHERE contract_id = $1 AND round = $2 AND NOT processed
		         RETURNING ` + selectionColumns
	default:
		return nil, fmt.Errorf("save selections: unknown party %q", party)
	}

	row := s.pool.QueryRow(ctx, query, contractID, round, selJSON)
	st, err := scanSelectionState(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row missing or already processed: either way the round is gone.
			return nil, fmt.Errorf("save selections for %s round %d: %w", contractID, round, domain.ErrStaleRound)
		}
		return nil, fmt.Errorf("save selections for %s round %d: %w", contractID, round, err)
	}
	return st, nil
}

func (s *Store) MarkProcessed(ctx context.Context, contractID string, round int) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE selection_states SET processed = TRUE, updated_at = now()
		 WHERE contract_id = $1 AND round = $2
		   AND owner_completed AND tenant_completed AND NOT processed`,
		contractID, round)
	if err != nil {
		return false, fmt.Errorf("mark processed %s round %d: %w", contractID, round, err)
	}
	return tag.RowsAffected() == 1, nil
}

// --- Fix history ---

func (s *Store) ListFixHistory(ctx context.Context, contractID string) ([]clause.FixHistory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT contract_id, clause_order, round, is_passed, prev_data, recent_data
		 FROM clause_fix_history WHERE contract_id = $1 ORDER BY clause_order ASC`,
		contractID)
	if err != nil {
		return nil, fmt.Errorf("list fix history %s: %w", contractID, err)
	}
	defer rows.Close()

	var histories []clause.FixHistory
	for rows.Next() {
		var h clause.FixHistory
		var prevJSON, recentJSON []byte
		if err := rows.Scan(&h.ContractID, &h.Order, &h.Round, &h.IsPassed, &prevJSON, &recentJSON); err != nil {
			return nil, fmt.Errorf("scan fix history: %w", err)
		}
		if err := json.Unmarshal(prevJSON, &h.PrevData); err != nil {
			return nil, fmt.Errorf("unmarshal prev data for order %d: %w", h.Order, err)
		}
		if recentJSON != nil {
			h.RecentData = &clause.ContentSnapshot{}
			if err := json.Unmarshal(recentJSON, h.RecentData); err != nil {
				return nil, fmt.Errorf("unmarshal recent data for order %d: %w", h.Order, err)
			}
		}
		histories = append(histories, h)
	}
	return histories, rows.Err()
}

// --- Revision context ---

func (s *Store) GetRevisionContext(ctx context.Context, contractID string) (*precheck.RevisionContext, error) {
	var docJSON, ownerJSON, tenantJSON []byte
	row := s.pool.QueryRow(ctx,
		`SELECT document, owner_precheck, tenant_precheck FROM negotiations WHERE contract_id = $1`,
		contractID)
	if err := row.Scan(&docJSON, &ownerJSON, &tenantJSON); err != nil {
		return nil, notFoundWrap(err, "get revision context %s", contractID)
	}

	rc := &precheck.RevisionContext{ContractID: contractID}
	if err := json.Unmarshal(docJSON, &rc.Document); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	if err := json.Unmarshal(ownerJSON, &rc.Owner); err != nil {
		return nil, fmt.Errorf("unmarshal owner precheck: %w", err)
	}
	if err := json.Unmarshal(tenantJSON, &rc.Tenant); err != nil {
		return nil, fmt.Errorf("unmarshal tenant precheck: %w", err)
	}
	return rc, nil
}

// --- Round transition ---

func (s *Store) CommitRound(ctx context.Context, next *clause.Round, fixes []clause.FixHistory) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertRoundClauses(ctx, tx, next.ContractID, next.Number, next.Clauses); err != nil {
		return err
	}

	for _, h := range fixes {
		prevJSON, err := json.Marshal(orEmpty(h.PrevData))
		if err != nil {
			return fmt.Errorf("marshal prev data: %w", err)
		}
		var recentJSON []byte
		if h.RecentData != nil {
			if recentJSON, err = json.Marshal(h.RecentData); err != nil {
				return fmt.Errorf("marshal recent data: %w", err)
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO clause_fix_history (contract_id, clause_order, round, is_passed, prev_data, recent_data)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (contract_id, clause_order)
			 DO UPDATE SET round = EXCLUDED.round, is_passed = EXCLUDED.is_passed,
			               prev_data = EXCLUDED.prev_data, recent_data = EXCLUDED.recent_data,
			               updated_at = now()`,
			h.ContractID, h.Order, h.Round, h.IsPassed, prevJSON, recentJSON); err != nil {
			return fmt.Errorf("upsert fix history order %d: %w", h.Order, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO selection_states (contract_id, round) VALUES ($1, $2)`,
		next.ContractID, next.Number); err != nil {
		return fmt.Errorf("open selection state round %d: %w", next.Number, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE negotiations SET current_round = $2, state = $3, updated_at = now() WHERE contract_id = $1`,
		next.ContractID, next.Number, string(negotiation.StateAwaitingSelections)); err != nil {
		return fmt.Errorf("advance negotiation %s: %w", next.ContractID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit round %d: %w", next.Number, err)
	}
	return nil
}

// --- Final contracts ---

func (s *Store) SaveFinalContract(ctx context.Context, fc *clause.FinalContract) (*clause.FinalContract, bool, error) {
	clausesJSON, err := json.Marshal(fc.FinalClauses)
	if err != nil {
		return nil, false, fmt.Errorf("marshal final clauses: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO final_contracts (contract_id, total_final_clauses, final_clauses)
		 VALUES ($1, $2, $3) ON CONFLICT (contract_id) DO NOTHING`,
		fc.ContractID, fc.TotalFinalClauses, clausesJSON)
	if err != nil {
		return nil, false, fmt.Errorf("insert final contract %s: %w", fc.ContractID, err)
	}

	if tag.RowsAffected() == 0 {
		// Lost the write-once race or finalize was retried: return the
		// stored document unchanged.
		existing, err := s.GetFinalContract(ctx, fc.ContractID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE negotiations SET state = $2, updated_at = now() WHERE contract_id = $1`,
		fc.ContractID, string(negotiation.StateFinalized)); err != nil {
		return nil, false, fmt.Errorf("finalize negotiation %s: %w", fc.ContractID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit finalize %s: %w", fc.ContractID, err)
	}

	stored, err := s.GetFinalContract(ctx, fc.ContractID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (s *Store) GetFinalContract(ctx context.Context, contractID string) (*clause.FinalContract, error) {
	fc := &clause.FinalContract{ContractID: contractID}
	var clausesJSON []byte
	row := s.pool.QueryRow(ctx,
		`SELECT total_final_clauses, final_clauses, created_at FROM final_contracts WHERE contract_id = $1`,
		contractID)
	if err := row.Scan(&fc.TotalFinalClauses, &clausesJSON, &fc.CreatedAt); err != nil {
		return nil, notFoundWrap(err, "get final contract %s", contractID)
	}
	if err := json.Unmarshal(clausesJSON, &fc.FinalClauses); err != nil {
		return nil, fmt.Errorf("unmarshal final clauses: %w", err)
	}
	return fc, nil
}

// insertRoundClauses writes one immutable round snapshot inside tx.
func insertRoundClauses(ctx context.Context, tx pgx.Tx, contractID string, round int, clauses []clause.Clause) error {
	for _, c := range clauses {
		assessmentJSON, err := json.Marshal(c.Assessment)
		if err != nil {
			return fmt.Errorf("marshal assessment order %d: %w", c.Order, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO clause_rounds (contract_id, round, clause_order, title, content, assessment)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			contractID, round, c.Order, c.Title, c.Content, assessmentJSON); err != nil {
			return fmt.Errorf("insert clause %d round %d: %w", c.Order, round, err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
