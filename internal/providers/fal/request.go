package fal

import "strings"

// RefKind distinguishes real provider request identifiers from the two
// flavors of locally synthesized ones. Keeping the distinction as a tagged
// value preserves an audit trail of *why* a job was simulated while letting
// downstream polling treat all three identically.
type RefKind int

const (
	RefReal RefKind = iota
	// RefSimulatedExplicit marks requests synthesized because simulation
	// mode was switched on for testing.
	RefSimulatedExplicit
	// RefSimulatedLimit marks requests synthesized because the local credit
	// limit was reached.
	RefSimulatedLimit
)

const (
	simPrefix   = "sim-"
	limitPrefix = "limit-"
)

// RequestRef is a provider request identifier plus its origin.
type RequestRef struct {
	Kind RefKind
	ID   string
}

// Simulated reports whether the request never reached the provider.
func (r RequestRef) Simulated() bool {
	return r.Kind != RefReal
}

// String serializes the ref to the wire/storage format. Synthetic refs carry
// a prefix so identifiers round-trip through plain string columns.
func (r RequestRef) String() string {
	switch r.Kind {
	case RefSimulatedExplicit:
		return simPrefix + r.ID
	case RefSimulatedLimit:
		return limitPrefix + r.ID
	default:
		return r.ID
	}
}

// ParseRequestID recovers a RequestRef from its serialized form.
func ParseRequestID(s string) RequestRef {
	switch {
	case strings.HasPrefix(s, simPrefix):
		return RequestRef{Kind: RefSimulatedExplicit, ID: strings.TrimPrefix(s, simPrefix)}
	case strings.HasPrefix(s, limitPrefix):
		return RequestRef{Kind: RefSimulatedLimit, ID: strings.TrimPrefix(s, limitPrefix)}
	default:
		return RequestRef{Kind: RefReal, ID: s}
	}
}
