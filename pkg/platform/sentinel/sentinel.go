package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record, marker, or cache entry does not exist
// - ErrExpired: entry exists but its retention window has elapsed
// - ErrConflict: a concurrent writer won the upsert race
// - ErrUnavailable: backing store unreachable or timed out
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
