// Package idgen generates the opaque identifiers used across the engine
// (run ids, operation ids, correlation ids, decision ids, proposal ids).
package idgen

import "github.com/google/uuid"

// New returns a fresh lowercase UUIDv4 string.
func New() string {
	return uuid.NewString()
}

// Prefixed returns prefix + "_" + a fresh UUIDv4, e.g. "run_...".
func Prefixed(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// CorrelationIDOrNew returns header if non-empty, otherwise a fresh id.
//
// spec.md §9 flags the legacy behavior of defaulting to the literal
// "c_none" when no header is supplied, and explicitly prefers generating a
// fresh id for new implementations; that is what this does.
func CorrelationIDOrNew(header string) string {
	if header != "" {
		return header
	}
	return Prefixed("corr")
}
