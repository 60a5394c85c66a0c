package store

import "errors"

// Sentinel errors the store surfaces, one per spec.md §7 error kind the
// core must be able to name precisely. Callers distinguish
// IllegalArgument-class mistakes from IllegalState-class ones by which
// sentinel they get back, the way the teacher's pkg/wal/errors.go names
// a small set of package-level values instead of an error-code field.
var (
	// IllegalArgument-class: caller-side contract violations.
	ErrUnknownVersion = errors.New("store: unknown version")
	ErrHeaderTooLarge = errors.New("store: file header exceeds block size")

	// IllegalState-class: invariants the store itself must protect.
	ErrClosed         = errors.New("store: already closed")
	ErrReadOnly       = errors.New("store: store is read-only")
	ErrHeaderCorrupt  = errors.New("store: file header is corrupt")
	ErrChunkNotFound  = errors.New("store: chunk not found")
	ErrNegativeLive   = errors.New("store: chunk maxLengthLive went negative")
	ErrUnsupportedFmt = errors.New("store: unsupported format version")
)
