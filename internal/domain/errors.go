// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrStaleRound indicates a submission referenced a round that is no longer
// the contract's active round. Callers should re-fetch the current round.
var ErrStaleRound = errors.New("stale round: negotiation has moved on, re-fetch current round")

// ErrUnknownClause indicates a selection referenced a clause order that does
// not exist in the referenced round.
var ErrUnknownClause = errors.New("unknown clause order")

// ErrAlreadyFinalized indicates the contract's negotiation has terminated
// and no further submissions or round transitions are possible.
var ErrAlreadyFinalized = errors.New("negotiation already finalized")
