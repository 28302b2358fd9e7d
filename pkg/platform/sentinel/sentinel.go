package sentinel

import "errors"

// Sentinel errors for storage facts. Store implementations return these
// (optionally wrapped) so the engine can translate them into domain errors
// without knowing driver internals.
//
// These represent factual states about rows, not validation failures:
// - ErrNotFound: row does not exist in the store
// - ErrConflict: unique constraint violated
// - ErrIntegrity: foreign-key constraint violated
// - ErrUnavailable: store cannot serve the request (outage, unsupported op)
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrIntegrity   = errors.New("integrity violation")
	ErrUnavailable = errors.New("unavailable")
)
