// Package dberrors collects the error-kind sentinels spec.md §7 names, so
// every layer (page, storage file, buffer pool, operators, optimizer) can
// wrap a shared sentinel with errors.Is-able context instead of minting one
// ad-hoc error type per package. Grounded on this module's existing
// per-package sentinel-error style (internal/bufferpool/pool.go,
// internal/storage/vars.go).
package dberrors

import "errors"

var (
	// ErrSchemaMismatch: a tuple's packed size does not match the target schema.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrInvalidPageId: read/write of a page out of range or file mismatch.
	ErrInvalidPageId = errors.New("invalid page id")
	// ErrPageFull: insert into a full page.
	ErrPageFull = errors.New("page full")
	// ErrPoolExhausted: every buffer-pool frame is pinned at eviction time.
	ErrPoolExhausted = errors.New("buffer pool exhausted")
	// ErrCorruptHeader: invalid length prefix or inconsistent numSlots/tupleSize.
	ErrCorruptHeader = errors.New("corrupt header")
	// ErrIOFailure: underlying file read/write failed.
	ErrIOFailure = errors.New("io failure")
	// ErrPlanInvalid: operator constructed with missing/invalid parameters.
	ErrPlanInvalid = errors.New("invalid plan")
	// ErrEvalError: expression references an unknown attribute.
	ErrEvalError = errors.New("evaluation error")
	// ErrBadSlot: a tuple id references an unallocated (or out-of-range) slot.
	ErrBadSlot = errors.New("bad slot")
)
